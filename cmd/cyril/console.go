package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/event"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/session"
)

// errAgentExited ends the console when the agent process goes away.
var errAgentExited = errors.New("agent exited")

const cancelTimeout = 5 * time.Second

// turnDriver is the part of session.Driver the console uses.
type turnDriver interface {
	Prompt(ctx context.Context, text string) (acp.StopReason, error)
	Cancel(ctx context.Context) error
}

// decider answers a permission request.
type decider func(ctx context.Context, req acp.RequestPermissionRequest) acp.RequestPermissionResponse

// console renders events as text and feeds prompts to the driver.
type console struct {
	driver turnDriver
	state  *session.Context
	events <-chan event.Event
	out    io.Writer
	errOut io.Writer
	log    *slog.Logger

	// oneShot prints hook feedback instead of queueing it for the next
	// prompt.
	oneShot bool
	pending []string
	midLine bool
}

func newConsole(driver turnDriver, state *session.Context, events <-chan event.Event, out, errOut io.Writer, oneShot bool) *console {
	return &console{
		driver:  driver,
		state:   state,
		events:  events,
		out:     out,
		errOut:  errOut,
		log:     logger.WithComponent("console"),
		oneShot: oneShot,
	}
}

type turnResult struct {
	reason acp.StopReason
	err    error
}

// runOnce sends text as a single turn, approving permission requests with
// the agent's allow-once option.
func (c *console) runOnce(ctx context.Context, text string) error {
	return c.turn(ctx, text, autoApprove)
}

// runInteractive sends each line as a prompt until lines is closed or ctx
// is done.
func (c *console) runInteractive(ctx context.Context, lines <-chan string) error {
	ask := askUser(c.errOut, lines)
	fmt.Fprint(c.errOut, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			if err := c.handle(ctx, ev, nil); err != nil {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				fmt.Fprint(c.errOut, "> ")
				continue
			}
			err := c.turn(ctx, c.withFeedback(line), ask)
			if errors.Is(err, errAgentExited) || ctx.Err() != nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(c.errOut, "error: %v\n", err)
			}
			fmt.Fprint(c.errOut, "> ")
		}
	}
}

// turn runs one prompt while handling the events it produces.
func (c *console) turn(ctx context.Context, text string, decide decider) error {
	done := make(chan turnResult, 1)
	go func() {
		reason, err := c.driver.Prompt(ctx, text)
		done <- turnResult{reason: reason, err: err}
	}()

	ctxDone := ctx.Done()
	for {
		select {
		case ev := <-c.events:
			if err := c.handle(ctx, ev, decide); err != nil {
				return err
			}
		case <-ctxDone:
			ctxDone = nil
			cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
			_ = c.driver.Cancel(cctx)
			cancel()
		case res := <-done:
			if err := c.drainEvents(ctx, decide); err != nil {
				return err
			}
			c.endTurn(res.reason)
			if res.err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return res.err
		}
	}
}

// drainEvents handles whatever is already queued, such as feedback from
// turn-end hooks.
func (c *console) drainEvents(ctx context.Context, decide decider) error {
	for {
		select {
		case ev := <-c.events:
			if err := c.handle(ctx, ev, decide); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *console) endTurn(reason acp.StopReason) {
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
	if reason != "" && reason != acp.StopReasonEndTurn {
		fmt.Fprintf(c.errOut, "[stopped: %s]\n", reason)
	}
	if s := c.state.Snapshot(); s.HasContextUsage && !c.oneShot {
		fmt.Fprintf(c.errOut, "[context %.0f%%]\n", s.ContextUsagePct)
	}
}

// handle renders one event. A nil decide dismisses permission requests.
func (c *console) handle(ctx context.Context, ev event.Event, decide decider) error {
	c.state.Apply(ev)

	switch e := ev.(type) {
	case event.AgentMessage:
		if e.Content != "" {
			fmt.Fprint(c.out, e.Content)
			c.midLine = !strings.HasSuffix(e.Content, "\n")
		}
	case event.AgentThought:
		c.log.Debug("agent thought", "text", e.Content)
	case event.ToolCallStarted:
		c.breakLine()
		fmt.Fprintf(c.errOut, "[tool] %s\n", e.ToolCall.Title)
	case event.ToolCallUpdated:
		if e.Update.Status == "failed" {
			c.breakLine()
			fmt.Fprintf(c.errOut, "[tool failed] %s\n", orDefault(e.Update.Title, e.Update.ID))
		}
	case event.PlanUpdated:
		c.breakLine()
		for _, entry := range e.Plan {
			mark := " "
			if entry.Status == "completed" {
				mark = "x"
			}
			fmt.Fprintf(c.errOut, "[plan] [%s] %s\n", mark, entry.Content)
		}
	case event.Permission:
		if decide == nil {
			e.Reply.Dismiss()
			return nil
		}
		c.breakLine()
		e.Reply.Respond(decide(ctx, e.Request))
	case event.HookFeedback:
		if c.oneShot {
			c.breakLine()
			fmt.Fprintf(c.errOut, "[hook] %s\n", e.Text)
			return nil
		}
		c.pending = append(c.pending, e.Text)
		c.log.Debug("queued hook feedback", "pending", len(c.pending))
	case event.AgentExited:
		if e.Err != nil {
			return fmt.Errorf("%w: %v", errAgentExited, e.Err)
		}
		return errAgentExited
	default:
		c.log.Debug("event", "type", fmt.Sprintf("%T", ev))
	}
	return nil
}

func (c *console) breakLine() {
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}

// withFeedback prefixes line with queued hook feedback and clears the
// queue.
func (c *console) withFeedback(line string) string {
	if len(c.pending) == 0 {
		return line
	}
	var b strings.Builder
	b.WriteString("Hook feedback from the previous turn:\n")
	for _, p := range c.pending {
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(line)
	c.pending = nil
	return b.String()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func selectOption(options []acp.PermissionOption, kinds ...acp.PermissionOptionKind) (acp.PermissionOptionId, bool) {
	for _, kind := range kinds {
		for _, opt := range options {
			if opt.Kind == kind {
				return opt.OptionId, true
			}
		}
	}
	return "", false
}

func autoApprove(_ context.Context, req acp.RequestPermissionRequest) acp.RequestPermissionResponse {
	if id, ok := selectOption(req.Options, acp.PermissionOptionKindAllowOnce); ok {
		return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeSelected(id)}
	}
	return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}
}

func toolTitle(req acp.RequestPermissionRequest) string {
	if req.ToolCall.Title != nil && *req.ToolCall.Title != "" {
		return *req.ToolCall.Title
	}
	return string(req.ToolCall.ToolCallId)
}

// askUser asks on w and reads the answer from lines.
func askUser(w io.Writer, lines <-chan string) decider {
	return func(ctx context.Context, req acp.RequestPermissionRequest) acp.RequestPermissionResponse {
		fmt.Fprintf(w, "Permission requested: %s\nAllow? [y/N] ", toolTitle(req))

		var answer string
		select {
		case line, ok := <-lines:
			if !ok {
				return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}
			}
			answer = strings.ToLower(strings.TrimSpace(line))
		case <-ctx.Done():
			return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}
		}

		kinds := []acp.PermissionOptionKind{acp.PermissionOptionKindRejectOnce, acp.PermissionOptionKindRejectAlways}
		if answer == "y" || answer == "yes" {
			kinds = []acp.PermissionOptionKind{acp.PermissionOptionKindAllowOnce, acp.PermissionOptionKindAllowAlways}
		}
		if id, ok := selectOption(req.Options, kinds...); ok {
			return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeSelected(id)}
		}
		return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}
	}
}

// readLines streams lines from r. The channel is closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
