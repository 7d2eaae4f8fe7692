// Package transport runs the agent process and filters its output stream
// before the protocol connection reads it.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dwalleck/cyril/logger"
)

const (
	// DefaultStartupGrace is how long CheckStartup watches a new agent.
	DefaultStartupGrace = 500 * time.Millisecond
	stopTimeout         = 2 * time.Second
	maxStderr           = 64 * 1024
	// waitDelay bounds how long Wait blocks on stderr held open by
	// descendants after the agent exits.
	waitDelay = time.Second
)

var (
	// ErrStartupExit is returned by CheckStartup when the agent exited.
	ErrStartupExit = errors.New("agent exited during startup")
	// ErrNotLoggedIn is returned by CheckStartup when the agent reports
	// missing credentials.
	ErrNotLoggedIn = errors.New("agent is not logged in; run 'kiro-cli login'")
	// ErrAlreadyRunning is returned by Start on a running process.
	ErrAlreadyRunning = errors.New("agent process already running")
)

// DefaultCommand returns the agent invocation for goos. On Windows the
// agent runs inside WSL.
func DefaultCommand(goos string) (string, []string) {
	if goos == "windows" {
		return "wsl", []string{"kiro-cli", "acp"}
	}
	return "kiro-cli", []string{"acp"}
}

// Config describes how to start the agent.
type Config struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the inherited environment.
	Env []string
	// StartupGrace overrides DefaultStartupGrace.
	StartupGrace time.Duration
}

// AgentProcess owns the agent subprocess and its pipes.
type AgentProcess struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   *stderrBuffer
	running  bool
	waitDone chan struct{}
	waitErr  error

	wg sync.WaitGroup
}

// NewAgentProcess creates an unstarted AgentProcess. An empty command
// selects DefaultCommand for this platform.
func NewAgentProcess(cfg Config) *AgentProcess {
	if cfg.Command == "" {
		cfg.Command, cfg.Args = DefaultCommand(runtime.GOOS)
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = DefaultStartupGrace
	}
	return &AgentProcess{
		cfg: cfg,
		log: logger.WithComponent("transport"),
	}
}

// Start launches the agent.
func (a *AgentProcess) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAlreadyRunning
	}

	cmd := exec.Command(a.cfg.Command, a.cfg.Args...)
	cmd.Dir = a.cfg.Dir
	if len(a.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), a.cfg.Env...)
	}
	stderr := &stderrBuffer{log: a.log}
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	a.log.Info("starting agent", "command", a.cfg.Command, "args", strings.Join(a.cfg.Args, " "), "dir", a.cfg.Dir)
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to start agent %q: %w", a.cfg.Command, err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stdout = stdout
	a.stderr = stderr
	a.running = true
	a.waitDone = make(chan struct{})
	a.waitErr = nil

	a.wg.Add(1)
	go a.monitorExit(cmd, a.waitDone)

	a.log.Info("agent started", "pid", cmd.Process.Pid)
	return nil
}

// monitorExit is the only caller of cmd.Wait.
func (a *AgentProcess) monitorExit(cmd *exec.Cmd, waitDone chan struct{}) {
	defer a.wg.Done()
	err := cmd.Wait()

	a.mu.Lock()
	a.waitErr = err
	a.running = false
	a.mu.Unlock()
	close(waitDone)

	if err != nil {
		a.log.Warn("agent exited", "error", err, "stderr", a.Stderr())
	} else {
		a.log.Info("agent exited")
	}
}

// Stdin is the agent's input stream.
func (a *AgentProcess) Stdin() io.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stdin
}

// Stdout is the agent's output stream.
func (a *AgentProcess) Stdout() io.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stdout
}

// Stderr returns what the agent wrote to stderr so far, up to 64 KiB.
func (a *AgentProcess) Stderr() string {
	a.mu.Lock()
	buf := a.stderr
	a.mu.Unlock()
	if buf == nil {
		return ""
	}
	return buf.String()
}

// Done is closed once the agent has exited. It is nil before Start.
func (a *AgentProcess) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitDone
}

// Err returns the agent's exit error once Done is closed.
func (a *AgentProcess) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitErr
}

// IsRunning reports whether the agent is running.
func (a *AgentProcess) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// CheckStartup watches the agent for the startup grace period and reports
// an early exit or a login failure.
func (a *AgentProcess) CheckStartup(ctx context.Context) error {
	done := a.Done()
	if done == nil {
		return errors.New("agent process not started")
	}

	timer := time.NewTimer(a.cfg.StartupGrace)
	defer timer.Stop()

	select {
	case <-done:
		return fmt.Errorf("%w: %s", ErrStartupExit, a.Stderr())
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if strings.Contains(strings.ToLower(a.Stderr()), "not logged in") {
		return ErrNotLoggedIn
	}
	return nil
}

// Stop closes the agent's stdin and waits for it to exit, killing it after
// two seconds.
func (a *AgentProcess) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.wg.Wait()
		return
	}
	a.log.Debug("stopping agent")
	if a.stdin != nil {
		a.stdin.Close()
	}
	cmd := a.cmd
	waitDone := a.waitDone
	a.mu.Unlock()

	select {
	case <-waitDone:
		a.log.Debug("agent exited gracefully")
	case <-time.After(stopTimeout):
		a.log.Debug("force killing agent")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			a.log.Warn("failed to kill agent", "error", err)
		}
		<-waitDone
	}
	a.wg.Wait()
}

// stderrBuffer keeps the head of the agent's stderr and logs it line by
// line.
type stderrBuffer struct {
	log *slog.Logger

	mu      sync.Mutex
	buf     []byte
	partial []byte
}

func (s *stderrBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room := maxStderr - len(s.buf); room > 0 {
		s.buf = append(s.buf, p[:min(room, len(p))]...)
	}

	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(s.partial[:i], "\r"); len(line) > 0 {
			s.log.Debug("agent stderr", "line", string(line))
		}
		s.partial = s.partial[:copy(s.partial, s.partial[i+1:])]
	}
	if len(s.partial) > maxStderr {
		s.partial = s.partial[:0]
	}
	return len(p), nil
}

func (s *stderrBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(string(s.buf))
}
