// Package paths locates cyril's config file and log directory.
//
// A ~/.cyril directory always wins. Otherwise the platform's per-user
// locations are used when the environment names them (XDG on Unix,
// %APPDATA% and %LOCALAPPDATA% on Windows), and ~/.cyril is the fallback.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const appDir = "cyril"

// Dirs is where cyril keeps its files. Config holds config.json; State
// holds logs.
type Dirs struct {
	Config string
	State  string
}

// ConfigFile is the path of config.json.
func (d Dirs) ConfigFile() string { return filepath.Join(d.Config, "config.json") }

// Logs is the log directory.
func (d Dirs) Logs() string { return filepath.Join(d.State, "logs") }

// env is the part of the process environment resolution reads.
type env struct {
	goos   string
	home   string
	getenv func(string) string
	isDir  func(string) bool
}

func resolveDirs(e env) Dirs {
	legacy := filepath.Join(e.home, "."+appDir)
	if e.isDir(legacy) {
		return Dirs{Config: legacy, State: legacy}
	}

	if e.goos == "windows" {
		roaming, local := e.getenv("APPDATA"), e.getenv("LOCALAPPDATA")
		if roaming == "" && local == "" {
			return Dirs{Config: legacy, State: legacy}
		}
		if roaming == "" {
			roaming = local
		}
		if local == "" {
			local = roaming
		}
		return Dirs{Config: filepath.Join(roaming, appDir), State: filepath.Join(local, appDir)}
	}

	config, state := e.getenv("XDG_CONFIG_HOME"), e.getenv("XDG_STATE_HOME")
	if config == "" && state == "" {
		return Dirs{Config: legacy, State: legacy}
	}
	if config == "" {
		config = filepath.Join(e.home, ".config")
	}
	if state == "" {
		state = filepath.Join(e.home, ".local", "state")
	}
	return Dirs{Config: filepath.Join(config, appDir), State: filepath.Join(state, appDir)}
}

var (
	mu     sync.Mutex
	cached *Dirs
)

// Resolve returns the directories for this process. The result is cached
// until Reset.
func Resolve() (Dirs, error) {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, err
	}
	d := resolveDirs(env{
		goos:   runtime.GOOS,
		home:   home,
		getenv: os.Getenv,
		isDir: func(p string) bool {
			info, err := os.Stat(p)
			return err == nil && info.IsDir()
		},
	})
	cached = &d
	return d, nil
}

// ConfigFilePath returns the path of config.json.
func ConfigFilePath() (string, error) {
	d, err := Resolve()
	if err != nil {
		return "", err
	}
	return d.ConfigFile(), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	d, err := Resolve()
	if err != nil {
		return "", err
	}
	return d.Logs(), nil
}

// Reset clears the cached resolution. For tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}
