// Package event defines what the mediation layer reports to the front end
// and the channel it reports through.
package event

import (
	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/kiroext"
)

// Event is implemented by every event type in this package.
type Event interface {
	isEvent()
}

// AgentMessage is a streamed chunk of agent text.
type AgentMessage struct {
	SessionID string
	Content   string
}

// AgentThought is a streamed chunk of agent reasoning.
type AgentThought struct {
	SessionID string
	Content   string
}

// ToolCallStarted reports a new tool call.
type ToolCallStarted struct {
	SessionID string
	ToolCall  ToolCall
}

// ToolCallUpdated reports progress on a tool call. Only the fields the
// agent sent are set.
type ToolCallUpdated struct {
	SessionID string
	Update    ToolCall
}

// PlanUpdated carries the agent's full current plan.
type PlanUpdated struct {
	SessionID string
	Plan      []PlanEntry
}

// CommandsUpdated carries the commands advertised through the protocol.
type CommandsUpdated struct {
	SessionID string
	Commands  []Command
}

// ModeChanged reports the agent switching modes.
type ModeChanged struct {
	SessionID string
	ModeID    string
}

// Permission asks the front end to decide a permission request. The
// front end must call Respond or Dismiss on Reply exactly once; later
// calls are ignored.
type Permission struct {
	Request acp.RequestPermissionRequest
	Reply   *Reply
}

// KiroCommandsAvailable carries commands from the vendor extension.
type KiroCommandsAvailable struct {
	Commands []kiroext.Command
}

// KiroMetadata carries context usage from the vendor extension.
type KiroMetadata struct {
	SessionID       string
	ContextUsagePct float64
}

// HookFeedback is text produced by a hook that should be sent back to the
// agent as a follow-up prompt.
type HookFeedback struct {
	Text string
}

// AgentExited reports that the agent process ended.
type AgentExited struct {
	Err error
}

func (AgentMessage) isEvent()          {}
func (AgentThought) isEvent()          {}
func (ToolCallStarted) isEvent()       {}
func (ToolCallUpdated) isEvent()       {}
func (PlanUpdated) isEvent()           {}
func (CommandsUpdated) isEvent()       {}
func (ModeChanged) isEvent()           {}
func (Permission) isEvent()            {}
func (KiroCommandsAvailable) isEvent() {}
func (KiroMetadata) isEvent()          {}
func (HookFeedback) isEvent()          {}
func (AgentExited) isEvent()           {}
