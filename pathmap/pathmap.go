// Package pathmap maps filesystem paths between the host namespace and the
// agent's namespace.
//
// When the agent runs inside WSL and the host is Windows, host paths such as
// C:\src\app are seen by the agent as /mnt/c/src/app. On every other host the
// two namespaces are the same and the Identity translator is used.
package pathmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	extendedPrefix = `\\?\`
	mountPrefix    = "/mnt/"
)

// Direction selects which way TranslateValue rewrites paths.
type Direction int

const (
	// DirToAgent rewrites host paths (C:\...) into agent paths (/mnt/c/...).
	DirToAgent Direction = iota
	// DirToHost rewrites agent paths (/mnt/c/...) into host paths (C:\...).
	DirToHost
)

func (d Direction) String() string {
	switch d {
	case DirToAgent:
		return "host->agent"
	case DirToHost:
		return "agent->host"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func upperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// HostToAgent converts a Windows host path into its WSL mount form.
//
//	C:\Users\foo      -> /mnt/c/Users/foo
//	\\?\D:\project    -> /mnt/d/project
//	C:\               -> /mnt/c
//	\\server\share\f  -> //server/share/f
//
// Paths without a drive letter only have backslashes replaced.
func HostToAgent(path string) string {
	p := strings.TrimPrefix(path, extendedPrefix)
	if len(p) >= 2 && isASCIILetter(p[0]) && p[1] == ':' {
		drive := string(lowerASCII(p[0]))
		rest := strings.TrimLeft(strings.ReplaceAll(p[2:], `\`, "/"), "/")
		if rest == "" {
			return mountPrefix + drive
		}
		return mountPrefix + drive + "/" + rest
	}
	return strings.ReplaceAll(p, `\`, "/")
}

// AgentToHost converts a WSL mount path back into a Windows host path.
//
//	/mnt/c/Users/foo -> C:\Users\foo
//	/mnt/d           -> D:\
//
// Anything outside /mnt/<letter> is returned unchanged.
func AgentToHost(path string) string {
	rest, ok := strings.CutPrefix(path, mountPrefix)
	if !ok || len(rest) == 0 || !isASCIILetter(rest[0]) {
		return path
	}
	after := rest[1:]
	if after != "" && after[0] != '/' {
		return path
	}
	drive := string(upperASCII(rest[0]))
	suffix := strings.TrimPrefix(after, "/")
	return drive + `:\` + strings.ReplaceAll(suffix, "/", `\`)
}

// LooksLikeHostPath reports whether s is an absolute drive-letter path such
// as C:\x or C:/x, optionally carrying the \\?\ prefix.
func LooksLikeHostPath(s string) bool {
	s = strings.TrimPrefix(s, extendedPrefix)
	return len(s) >= 3 &&
		isASCIILetter(s[0]) &&
		s[1] == ':' &&
		(s[2] == '\\' || s[2] == '/')
}

// LooksLikeAgentPath reports whether s is /mnt/<letter> or lies beneath it.
func LooksLikeAgentPath(s string) bool {
	rest, ok := strings.CutPrefix(s, mountPrefix)
	if !ok || len(rest) == 0 || !isASCIILetter(rest[0]) {
		return false
	}
	return len(rest) == 1 || rest[1] == '/'
}

// TranslateValue walks a decoded JSON value (map[string]any, []any and
// scalars as produced by encoding/json) and returns a copy in which every
// string leaf that looks like a path of the source namespace is rewritten.
// Object keys and non-string leaves are left alone.
func TranslateValue(v any, dir Direction) any {
	switch t := v.(type) {
	case string:
		return translateString(t, dir)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = TranslateValue(item, dir)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = TranslateValue(item, dir)
		}
		return out
	default:
		return v
	}
}

func translateString(s string, dir Direction) string {
	switch dir {
	case DirToAgent:
		if LooksLikeHostPath(s) {
			return HostToAgent(s)
		}
	case DirToHost:
		if LooksLikeAgentPath(s) {
			return AgentToHost(s)
		}
	}
	return s
}

// TranslateJSON decodes raw, rewrites path strings with TranslateValue and
// re-encodes the result. Numbers keep their original textual form.
func TranslateJSON(raw []byte, dir Direction) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return marshalNoEscape(TranslateValue(v, dir))
}

// marshalNoEscape encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
