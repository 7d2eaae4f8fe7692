// Package logger writes cyril's structured log to a file. The console owns
// stdout and stderr, so nothing is logged there once Init has run.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dwalleck/cyril/paths"
)

const (
	// MaxSize is the size at which an existing log is rotated on Init.
	MaxSize = 10 * 1024 * 1024
	// KeepRotated is how many rotated logs are kept next to the active one.
	KeepRotated = 3

	rotateStamp = "20060102-150405"
)

var (
	mu       sync.Mutex
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	logPath  string
	initDone bool

	now = time.Now
)

// DefaultLogPath returns cyril.log in the logs directory.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cyril.log"), nil
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init opens path for appending, rotating it first when it has grown past
// MaxSize. Later calls are no-ops until Reset. Loggers obtained before Init
// open the default path instead.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	return openLocked(path)
}

// rotatedPattern matches the rotated siblings of path.
func rotatedPattern(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-*" + ext
}

// rotate renames path aside when it is at least MaxSize and prunes old
// rotations. A missing file is not an error.
func rotate(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < MaxSize {
		return nil
	}
	ext := filepath.Ext(path)
	aside := strings.TrimSuffix(path, ext) + "-" + now().Format(rotateStamp) + ext
	if err := os.Rename(path, aside); err != nil {
		return fmt.Errorf("failed to rotate log %s: %w", path, err)
	}

	old, err := filepath.Glob(rotatedPattern(path))
	if err != nil || len(old) <= KeepRotated {
		return err
	}
	sort.Strings(old)
	for _, p := range old[:len(old)-KeepRotated] {
		_ = os.Remove(p)
	}
	return nil
}

// openLocked installs a file-backed root logger. Caller must hold mu.
func openLocked(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	if path != os.DevNull {
		if err := rotate(path); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logPath = path
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	root.Info("logger initialized", "path", path, "pid", os.Getpid())
	return nil
}

// base returns the root logger, opening the default file on first use.
// Caller must hold mu.
func base() *slog.Logger {
	if !initDone {
		path, err := DefaultLogPath()
		if err == nil {
			err = openLocked(path)
		}
		if err != nil {
			// Only reported once: the failed attempt still counts as init.
			initDone = true
			fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		}
	}
	if root == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return root
}

// Path returns the file the logger writes to, or "" before initialization.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// WithSession returns a logger tagged with the ACP session id.
func WithSession(sessionID string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base().With("sessionID", sessionID)
}

// WithComponent returns a logger tagged with a component name.
//
//	log := logger.WithComponent("terminal")
//	log.Info("terminal created", "id", id)
//	// level=INFO msg="terminal created" component=terminal id=term-0
func WithComponent(component string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base().With("component", component)
}

// Close closes the log file. Loggers handed out earlier go quiet.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization. For tests.
func Reset() {
	Close()

	mu.Lock()
	defer mu.Unlock()
	initDone = false
	logPath = ""
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes the log at path and its rotated siblings and returns the
// number removed. The log should be closed first.
func ClearLogs(path string) (int, error) {
	if path == os.DevNull {
		return 0, nil
	}
	targets, err := filepath.Glob(rotatedPattern(path))
	if err != nil {
		return 0, err
	}
	targets = append(targets, path)

	count := 0
	for _, p := range targets {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}
