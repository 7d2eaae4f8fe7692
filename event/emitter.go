package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/logger"
)

// DefaultBuffer is the emitter channel capacity used when none is given.
const DefaultBuffer = 256

// Emitter delivers events to a single consumer.
type Emitter struct {
	ch  chan Event
	log *slog.Logger
}

// NewEmitter creates an Emitter with the given channel capacity.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Emitter{
		ch:  make(chan Event, buffer),
		log: logger.WithComponent("event"),
	}
}

// Events is the channel the consumer reads.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit delivers ev if there is room. A full channel drops the event.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.log.Warn("event channel full, dropping event", "type", fmt.Sprintf("%T", ev))
	}
}

// EmitInteraction delivers an event that needs an answer, waiting for room
// until ctx is done. It reports whether the event was delivered.
func (e *Emitter) EmitInteraction(ctx context.Context, ev Event) bool {
	if e == nil {
		return false
	}
	select {
	case e.ch <- ev:
		return true
	case <-ctx.Done():
		e.log.Warn("interaction not delivered", "type", fmt.Sprintf("%T", ev), "error", ctx.Err())
		return false
	}
}

// ErrDismissed is returned by Reply.Wait when the reply was dismissed.
var ErrDismissed = errors.New("permission reply dismissed")

// Reply carries one answer to a permission request.
type Reply struct {
	once sync.Once
	ch   chan acp.RequestPermissionResponse
}

// NewReply creates an unanswered Reply.
func NewReply() *Reply {
	return &Reply{ch: make(chan acp.RequestPermissionResponse, 1)}
}

// Respond answers the request. Only the first Respond or Dismiss counts.
func (r *Reply) Respond(resp acp.RequestPermissionResponse) {
	r.once.Do(func() {
		r.ch <- resp
		close(r.ch)
	})
}

// Dismiss drops the request without an answer.
func (r *Reply) Dismiss() {
	r.once.Do(func() { close(r.ch) })
}

// Wait blocks until the reply is answered or dismissed, or ctx is done.
func (r *Reply) Wait(ctx context.Context) (acp.RequestPermissionResponse, error) {
	select {
	case resp, ok := <-r.ch:
		if !ok {
			return acp.RequestPermissionResponse{}, ErrDismissed
		}
		return resp, nil
	case <-ctx.Done():
		return acp.RequestPermissionResponse{}, ctx.Err()
	}
}
