package event

import (
	"encoding/json"
	"fmt"
)

// ToolCall is the tool-call payload of a session update.
type ToolCall struct {
	ID        string          `json:"toolCallId"`
	Title     string          `json:"title,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Status    string          `json:"status,omitempty"`
	Locations []Location      `json:"locations,omitempty"`
	RawInput  json.RawMessage `json:"rawInput,omitempty"`
	RawOutput json.RawMessage `json:"rawOutput,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// Location is a file a tool call touches.
type Location struct {
	Path string `json:"path"`
	Line *int   `json:"line,omitempty"`
}

// PlanEntry is one step of an agent plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Command is a protocol-advertised slash command.
type Command struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Input       *CommandInput `json:"input,omitempty"`
}

// CommandInput describes free-form command input.
type CommandInput struct {
	Hint string `json:"hint,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireUpdate struct {
	SessionUpdate     string          `json:"sessionUpdate"`
	Content           json.RawMessage `json:"content"`
	Entries           []PlanEntry     `json:"entries"`
	AvailableCommands []Command       `json:"availableCommands"`
	CurrentModeID     string          `json:"currentModeId"`
}

// Decode converts one session update, in its wire form, into an event. It
// returns nil for update kinds that have no event and for non-text message
// chunks.
func Decode(sessionID string, raw []byte) (Event, error) {
	var u wireUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode session update: %w", err)
	}

	switch u.SessionUpdate {
	case "agent_message_chunk", "agent_thought_chunk":
		var block contentBlock
		if len(u.Content) == 0 || json.Unmarshal(u.Content, &block) != nil || block.Type != "text" {
			return nil, nil
		}
		if u.SessionUpdate == "agent_thought_chunk" {
			return AgentThought{SessionID: sessionID, Content: block.Text}, nil
		}
		return AgentMessage{SessionID: sessionID, Content: block.Text}, nil

	case "tool_call", "tool_call_update":
		var tc ToolCall
		if err := json.Unmarshal(raw, &tc); err != nil {
			return nil, fmt.Errorf("failed to decode tool call: %w", err)
		}
		if u.SessionUpdate == "tool_call" {
			return ToolCallStarted{SessionID: sessionID, ToolCall: tc}, nil
		}
		return ToolCallUpdated{SessionID: sessionID, Update: tc}, nil

	case "plan":
		return PlanUpdated{SessionID: sessionID, Plan: u.Entries}, nil

	case "available_commands_update":
		return CommandsUpdated{SessionID: sessionID, Commands: u.AvailableCommands}, nil

	case "current_mode_update":
		return ModeChanged{SessionID: sessionID, ModeID: u.CurrentModeID}, nil
	}
	return nil, nil
}
