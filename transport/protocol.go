package transport

import (
	"bytes"
	"encoding/json"
)

// Message is a JSON-RPC 2.0 message in any of its forms. Only the fields
// needed to route a line are decoded.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsNotification reports whether the message is a request without an id.
func (m Message) IsNotification() bool {
	if m.Method == "" {
		return false
	}
	id := bytes.TrimSpace(m.ID)
	return len(id) == 0 || bytes.Equal(id, []byte("null"))
}

// ParseMessage decodes one line. ok is false for anything that is not a
// JSON object.
func ParseMessage(line []byte) (Message, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Message{}, false
	}
	return msg, true
}
