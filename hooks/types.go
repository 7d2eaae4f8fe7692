// Package hooks runs user-configured policy around capability calls.
//
// A hook is bound to one (Timing, Target) pair. Before hooks may block or
// rewrite a call; After hooks observe a call that already happened and may
// hand feedback back to the agent. Hooks are held in a Registry whose order
// is the registration order.
package hooks

import (
	"context"
	"fmt"
)

// Timing says when a hook runs relative to the operation.
type Timing int

const (
	Before Timing = iota
	After
)

func (t Timing) String() string {
	switch t {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return fmt.Sprintf("Timing(%d)", int(t))
	}
}

// Target is the kind of operation a hook is attached to.
type Target int

const (
	FsRead Target = iota
	FsWrite
	Terminal
	TurnEnd
)

func (t Target) String() string {
	switch t {
	case FsRead:
		return "fs_read"
	case FsWrite:
		return "fs_write"
	case Terminal:
		return "terminal"
	case TurnEnd:
		return "turn_end"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// Context describes the operation a hook is asked about. It is built fresh
// for each phase of a call.
type Context struct {
	Target Target
	Timing Timing
	// Path is the host path involved in a filesystem call.
	Path *string
	// Content is the text being written.
	Content *string
	// Command is the terminal command line.
	Command *string
}

// ResultKind discriminates Result.
type ResultKind int

const (
	KindContinue ResultKind = iota
	KindModifiedArgs
	KindBlocked
	KindFeedbackPrompt
)

func (k ResultKind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindModifiedArgs:
		return "modified"
	case KindBlocked:
		return "blocked"
	case KindFeedbackPrompt:
		return "feedback"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the outcome of running a hook. Build values with Continue,
// ModifiedArgs, Blocked and FeedbackPrompt.
type Result struct {
	Kind ResultKind
	// Content replaces the write content (FsWrite) or the command line
	// (Terminal) when Kind is KindModifiedArgs. Nil keeps the original.
	Content *string
	// Reason is set for KindBlocked.
	Reason string
	// Text is set for KindFeedbackPrompt.
	Text string
}

func Continue() Result { return Result{Kind: KindContinue} }

func ModifiedArgs(content *string) Result {
	return Result{Kind: KindModifiedArgs, Content: content}
}

func Blocked(reason string) Result { return Result{Kind: KindBlocked, Reason: reason} }

func FeedbackPrompt(text string) Result {
	return Result{Kind: KindFeedbackPrompt, Text: text}
}

// Message returns the human-readable text carried by a Blocked or
// FeedbackPrompt result.
func (r Result) Message() string {
	switch r.Kind {
	case KindBlocked:
		return r.Reason
	case KindFeedbackPrompt:
		return r.Text
	default:
		return ""
	}
}

// Hook is a single policy action. Implementations must be safe for
// concurrent use; the registry may run the same hook for overlapping calls.
type Hook interface {
	Name() string
	Timing() Timing
	Target() Target
	Run(ctx context.Context, hc Context) Result
}

// Registry holds hooks in registration order. A Registry is not modified
// after it has been handed to a Source.
type Registry struct {
	hooks []Hook
}

// NewRegistry returns a registry containing hooks in the given order.
func NewRegistry(hooks ...Hook) *Registry {
	r := &Registry{}
	for _, h := range hooks {
		r.Register(h)
	}
	return r
}

// Register appends a hook.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Hooks returns a copy of the registered hooks.
func (r *Registry) Hooks() []Hook {
	if r == nil {
		return nil
	}
	out := make([]Hook, len(r.hooks))
	copy(out, r.hooks)
	return out
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.hooks)
}

// RunBefore runs the Before hooks for hc.Target in order and returns the
// first result that is not Continue. Remaining hooks are skipped.
func (r *Registry) RunBefore(ctx context.Context, hc Context) Result {
	if r == nil {
		return Continue()
	}
	hc.Timing = Before
	for _, h := range r.hooks {
		if h.Timing() != Before || h.Target() != hc.Target {
			continue
		}
		if res := h.Run(ctx, hc); res.Kind != KindContinue {
			return res
		}
	}
	return Continue()
}

// RunAfter runs every After hook for hc.Target and collects the results
// that are not Continue, in registration order.
func (r *Registry) RunAfter(ctx context.Context, hc Context) []Result {
	if r == nil {
		return nil
	}
	hc.Timing = After
	var results []Result
	for _, h := range r.hooks {
		if h.Timing() != After || h.Target() != hc.Target {
			continue
		}
		if res := h.Run(ctx, hc); res.Kind != KindContinue {
			results = append(results, res)
		}
	}
	return results
}
