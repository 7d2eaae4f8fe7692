package pathmap

import (
	"fmt"
	"runtime"
	"strings"
)

// Translator converts paths at the boundary between the front end and the
// agent. The implementation is chosen once at startup.
type Translator interface {
	// ToAgent maps a host path into the agent's namespace.
	ToAgent(path string) string
	// ToHost maps an agent path into the host namespace.
	ToHost(path string) string
}

// Bridged translates between Windows drive paths and WSL mount paths.
type Bridged struct{}

func (Bridged) ToAgent(path string) string { return HostToAgent(path) }
func (Bridged) ToHost(path string) string  { return AgentToHost(path) }

// Identity leaves paths untouched.
type Identity struct{}

func (Identity) ToAgent(path string) string { return path }
func (Identity) ToHost(path string) string  { return path }

// IsBridged reports whether t rewrites paths at all.
func IsBridged(t Translator) bool {
	_, ok := t.(Bridged)
	return ok
}

// ForPlatform returns Bridged for a Windows host and Identity otherwise.
func ForPlatform(goos string) Translator {
	if goos == "windows" {
		return Bridged{}
	}
	return Identity{}
}

// Mode is the translate_paths configuration value.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
)

// ParseMode validates a translate_paths value. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeOn, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid translate_paths value %q (want auto, on or off)", s)
	}
}

// New selects a Translator for mode on the running platform.
func New(mode Mode) Translator {
	return newFor(mode, runtime.GOOS)
}

func newFor(mode Mode, goos string) Translator {
	switch mode {
	case ModeOn:
		return Bridged{}
	case ModeOff:
		return Identity{}
	default:
		return ForPlatform(goos)
	}
}
