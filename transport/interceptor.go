package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/dwalleck/cyril/kiroext"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/pathmap"
)

// ExtHandler receives vendor extension notifications.
type ExtHandler interface {
	HandleExtNotification(method string, params json.RawMessage)
}

// MethodSessionUpdate is the notification that carries streamed updates.
const MethodSessionUpdate = "session/update"

// toolCallPathFields are the tool-call fields whose path strings are
// rewritten to host form.
var toolCallPathFields = []string{"rawInput", "locations", "content"}

// Interceptor filters the agent's stdout line by line before the protocol
// connection sees it. Extension notifications are handed to an ExtHandler
// and removed from the stream; with a bridged translator, agent paths in
// tool-call updates are rewritten to host paths. Every other line passes
// through unchanged.
type Interceptor struct {
	src     *bufio.Reader
	handler ExtHandler
	bridged bool
	log     *slog.Logger

	pending []byte
	err     error
}

// NewInterceptor wraps r.
func NewInterceptor(r io.Reader, handler ExtHandler, translator pathmap.Translator) *Interceptor {
	return &Interceptor{
		src:     bufio.NewReaderSize(r, 64*1024),
		handler: handler,
		bridged: translator != nil && pathmap.IsBridged(translator),
		log:     logger.WithComponent("transport"),
	}
}

func (i *Interceptor) Read(p []byte) (int, error) {
	for len(i.pending) == 0 {
		if i.err != nil {
			return 0, i.err
		}
		line, err := i.src.ReadBytes('\n')
		if len(line) > 0 {
			i.pending = i.filter(line)
		}
		if err != nil {
			i.err = err
		}
	}
	n := copy(p, i.pending)
	i.pending = i.pending[n:]
	return n, nil
}

func (i *Interceptor) filter(line []byte) []byte {
	msg, ok := ParseMessage(line)
	if !ok {
		return line
	}

	if msg.IsNotification() && kiroext.IsExtension(msg.Method) {
		i.log.Debug("extension notification", "method", msg.Method)
		if i.handler != nil {
			i.handler.HandleExtNotification(msg.Method, msg.Params)
		}
		return nil
	}

	if i.bridged && msg.Method == MethodSessionUpdate {
		if out, changed := rewriteToolCallPaths(line); changed {
			return out
		}
	}
	return line
}

// rewriteToolCallPaths converts agent paths in a tool-call session update
// to host paths. It reports false when the line is not a tool-call update
// or cannot be re-encoded.
func rewriteToolCallPaths(line []byte) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var msg map[string]any
	if err := dec.Decode(&msg); err != nil {
		return nil, false
	}

	params, _ := msg["params"].(map[string]any)
	update, _ := params["update"].(map[string]any)
	switch update["sessionUpdate"] {
	case "tool_call", "tool_call_update":
	default:
		return nil, false
	}

	for _, field := range toolCallPathFields {
		if v, ok := update[field]; ok {
			update[field] = pathmap.TranslateValue(v, pathmap.DirToHost)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
