package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidationName is the name of the built-in write guard.
const PathValidationName = "path-validation"

// PathValidationHook blocks writes whose target lies outside the project
// root.
type PathValidationHook struct {
	root string
	// foldCase compares paths case-insensitively (Windows hosts).
	foldCase bool
}

// NewPathValidationHook guards writes under root.
func NewPathValidationHook(root, goos string) *PathValidationHook {
	return &PathValidationHook{
		root:     filepath.Clean(root),
		foldCase: goos == "windows",
	}
}

func (h *PathValidationHook) Name() string   { return PathValidationName }
func (h *PathValidationHook) Timing() Timing { return Before }
func (h *PathValidationHook) Target() Target { return FsWrite }

// Root returns the allowed root.
func (h *PathValidationHook) Root() string { return h.root }

func (h *PathValidationHook) Run(_ context.Context, hc Context) Result {
	if hc.Path == nil {
		return Continue()
	}
	if !h.within(*hc.Path) {
		return Blocked(fmt.Sprintf("Write blocked: %s is outside project root %s", *hc.Path, h.root))
	}
	return Continue()
}

func (h *PathValidationHook) within(path string) bool {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.root, p)
	}
	p = filepath.Clean(p)

	root := h.root
	if h.foldCase {
		p = strings.ToLower(p)
		root = strings.ToLower(root)
	}

	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
