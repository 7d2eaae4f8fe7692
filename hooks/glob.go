package hooks

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

type globState int

const (
	globMatchAll globState = iota
	globPattern
	globInvalid
)

// globFilter scopes a hook to paths. `*` and `?` also match path
// separators, so "/repo/*" covers everything below /repo. An invalid
// pattern matches nothing.
type globFilter struct {
	state   globState
	pattern string
	glob    glob.Glob
}

func newGlobFilter(pattern *string) globFilter {
	if pattern == nil {
		return globFilter{state: globMatchAll}
	}
	if !doublestar.ValidatePattern(*pattern) {
		return globFilter{state: globInvalid, pattern: *pattern}
	}
	g, err := glob.Compile(*pattern)
	if err != nil {
		return globFilter{state: globInvalid, pattern: *pattern}
	}
	return globFilter{state: globPattern, pattern: *pattern, glob: g}
}

// matches tests the full path and the bare file name. Backslashes are
// treated as separators so Windows paths match slash patterns.
func (g globFilter) matches(path string) bool {
	switch g.state {
	case globMatchAll:
		return true
	case globInvalid:
		return false
	}

	slashed := strings.ReplaceAll(path, `\`, "/")
	if g.glob.Match(slashed) {
		return true
	}
	name := slashed
	if i := strings.LastIndexByte(slashed, '/'); i >= 0 {
		name = slashed[i+1:]
	}
	if name == "" {
		return false
	}
	return g.glob.Match(name)
}
