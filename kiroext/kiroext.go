// Package kiroext decodes the vendor extension notifications kiro-cli sends
// outside the standard protocol.
package kiroext

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Extension methods, as sent on the wire. Some agent builds prefix them
// with an underscore.
const (
	MethodCommandsAvailable = "kiro.dev/commands/available"
	MethodMetadata          = "kiro.dev/metadata"
	MethodPrefix            = "kiro.dev/"
)

// NormalizeMethod strips the optional leading underscore.
func NormalizeMethod(method string) string {
	return strings.TrimPrefix(method, "_")
}

// IsExtension reports whether method belongs to the vendor namespace.
func IsExtension(method string) bool {
	return strings.HasPrefix(NormalizeMethod(method), MethodPrefix)
}

// Command is one entry of the available-commands notification.
type Command struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputHint   string       `json:"inputHint,omitempty"`
	Meta        *CommandMeta `json:"meta,omitempty"`
}

// UnmarshalJSON accepts the hint as either inputHint or input_hint.
func (c *Command) UnmarshalJSON(data []byte) error {
	type plain Command
	var aux struct {
		plain
		SnakeHint string `json:"input_hint"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Command(aux.plain)
	if c.InputHint == "" {
		c.InputHint = aux.SnakeHint
	}
	return nil
}

// CommandMeta describes how a command is meant to be presented.
type CommandMeta struct {
	// InputType is "selection" for commands that need a picker and "panel"
	// for ones that render structured output.
	InputType     string `json:"inputType,omitempty"`
	OptionsMethod string `json:"optionsMethod,omitempty"`
	Local         bool   `json:"local,omitempty"`
}

// IsExecutable reports whether the command can be sent to the agent for
// execution. Local commands and commands that need a selection cannot.
func (c Command) IsExecutable() bool {
	if c.Meta == nil {
		return true
	}
	return !c.Meta.Local && c.Meta.InputType != "selection"
}

// ErrUnrecognizedPayload is returned when a commands payload has none of
// the known shapes.
var ErrUnrecognizedPayload = errors.New("unrecognized commands payload")

// ParseCommands decodes {"commands": [...]}, {"availableCommands": [...]}
// or a bare array.
func ParseCommands(raw json.RawMessage) ([]Command, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrUnrecognizedPayload
	}

	if trimmed[0] == '[' {
		var cmds []Command
		if err := json.Unmarshal(trimmed, &cmds); err != nil {
			return nil, fmt.Errorf("failed to decode commands: %w", err)
		}
		return cmds, nil
	}

	var wrapped struct {
		Commands          *[]Command `json:"commands"`
		AvailableCommands *[]Command `json:"availableCommands"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode commands: %w", err)
	}
	switch {
	case wrapped.Commands != nil:
		return *wrapped.Commands, nil
	case wrapped.AvailableCommands != nil:
		return *wrapped.AvailableCommands, nil
	}
	return nil, ErrUnrecognizedPayload
}

// Metadata is the payload of the metadata notification.
type Metadata struct {
	SessionID              string  `json:"sessionId"`
	ContextUsagePercentage float64 `json:"contextUsagePercentage"`
}

// ParseMetadata decodes a metadata notification.
func ParseMetadata(raw json.RawMessage) (Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return md, nil
}
