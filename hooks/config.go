package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dwalleck/cyril/exec"
	"github.com/dwalleck/cyril/logger"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the hooks file looked up in the working directory.
const DefaultFileName = "hooks.json"

// File is the top-level hooks configuration document.
type File struct {
	Hooks []Def `json:"hooks" yaml:"hooks"`
}

// Def is one hook definition from the configuration file.
type Def struct {
	Name string `json:"name" yaml:"name"`
	// Event is one of beforeRead, afterRead, beforeWrite, afterWrite,
	// beforeTerminal, afterTerminal or turnEnd.
	Event   string  `json:"event" yaml:"event"`
	Pattern *string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// Command may contain the ${file} placeholder.
	Command  string `json:"command" yaml:"command"`
	Feedback bool   `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

var events = map[string]struct {
	timing Timing
	target Target
}{
	"beforeRead":     {Before, FsRead},
	"afterRead":      {After, FsRead},
	"beforeWrite":    {Before, FsWrite},
	"afterWrite":     {After, FsWrite},
	"beforeTerminal": {Before, Terminal},
	"afterTerminal":  {After, Terminal},
	"turnEnd":        {After, TurnEnd},
}

// ParseEvent maps an event name to its timing and target.
func ParseEvent(name string) (Timing, Target, bool) {
	e, ok := events[name]
	return e.timing, e.target, ok
}

// Options controls how hooks are built.
type Options struct {
	// ProjectRoot is the working directory for hook commands and the
	// allowed root for path validation.
	ProjectRoot string
	// ValidatePaths registers the built-in path-validation hook ahead of
	// configured hooks.
	ValidatePaths bool
	// Timeout bounds each hook command. Zero means no limit.
	Timeout time.Duration
	// Executor runs hook commands. Defaults to exec.GetDefaultExecutor().
	Executor exec.CommandExecutor
	// GOOS selects the shell. Defaults to runtime.GOOS.
	GOOS string
}

func (o Options) withDefaults() Options {
	if o.Executor == nil {
		o.Executor = exec.GetDefaultExecutor()
	}
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	return o
}

// ReadFile parses a hooks file. YAML is used for .yaml and .yml files,
// JSON otherwise. Returns nil, nil if the file does not exist.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks config %s: %w", path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse hooks config %s: %w", path, err)
	}
	return &f, nil
}

// Build creates a registry from definitions. Definitions with an unknown
// event are skipped with a warning.
func Build(defs []Def, opts Options) *Registry {
	opts = opts.withDefaults()
	log := logger.WithComponent("hooks")

	r := NewRegistry()
	if opts.ValidatePaths && opts.ProjectRoot != "" {
		r.Register(NewPathValidationHook(opts.ProjectRoot, opts.GOOS))
	}
	for _, def := range defs {
		hook, ok := NewShellHook(def, opts)
		if !ok {
			log.Warn("skipping hook with unknown event", "hook", def.Name, "event", def.Event)
			continue
		}
		log.Info("loaded hook", "hook", def.Name, "event", def.Event)
		r.Register(hook)
	}
	return r
}

// Load reads path and builds a registry. A missing file yields a registry
// holding only the built-in hooks.
func Load(path string, opts Options) (*Registry, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []Def
	if f != nil {
		defs = f.Hooks
	}
	return Build(defs, opts), nil
}

// ResolvePath returns the hooks file to use: file when set (relative paths
// are resolved against dir), otherwise hooks.json in dir.
func ResolvePath(dir, file string) string {
	if file == "" {
		return filepath.Join(dir, DefaultFileName)
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}
