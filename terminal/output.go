package terminal

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxOutput is the largest accumulated output kept per terminal.
	MaxOutput = 1024 * 1024
	// TruncationMarker prefixes output whose oldest part was discarded.
	TruncationMarker = "[output truncated]\n"

	chunkSize = 4096
)

// capOutput keeps the most recent bytes of s within max, prefixed with the
// truncation marker. The cut is moved forward to a rune start.
func capOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	tail := max - len(TruncationMarker)
	if tail < 0 {
		tail = 0
	}
	start := len(s) - tail
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return TruncationMarker + s[start:]
}

// decoder turns a byte stream into valid UTF-8 text chunk by chunk. A
// multi-byte sequence split across reads is held back until complete;
// invalid bytes become U+FFFD.
type decoder struct {
	pending []byte
}

func (d *decoder) decode(data []byte) string {
	b := append(d.pending, data...)
	cut := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	d.pending = append(d.pending[:0:0], b[cut:]...)
	return strings.ToValidUTF8(string(b[:cut]), "\uFFFD")
}

// flush returns whatever is still held back.
func (d *decoder) flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(d.pending), "\uFFFD")
	d.pending = nil
	return s
}
