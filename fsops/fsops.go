// Package fsops performs the file effects requested by the agent.
package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrBinary is returned when a text read targets a file that is not text.
var ErrBinary = errors.New("file is not a text file")

// isText reports whether the detected type is text/plain or derives from
// it (JSON, XML, source files, ...).
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") || strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

// ReadText reads the file at path. When line is set the result starts at
// that 1-based line; when limit is set at most that many lines are
// returned. Line terminators are preserved.
func ReadText(path string, line, limit *int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); !isText(mt) {
			return "", fmt.Errorf("%w: %s (%s)", ErrBinary, path, mt.String())
		}
	}
	content := strings.ToValidUTF8(string(data), "\uFFFD")
	if line == nil && limit == nil {
		return content, nil
	}
	return window(content, line, limit), nil
}

func window(content string, line, limit *int) string {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "")
}

// WriteText writes content to path, creating parent directories as needed.
func WriteText(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}
