// Package terminal runs agent-requested commands in child shells and keeps
// their output in bounded per-terminal buffers.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	osexec "os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dwalleck/cyril/exec"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownTerminal is returned for ids that were never issued or were
// released.
var ErrUnknownTerminal = errors.New("unknown terminal")

// drainDelay bounds how long an exited terminal waits for its output
// streams to reach EOF before reporting the exit. Background children that
// inherited the streams keep them open past that.
const drainDelay = 250 * time.Millisecond

// EnvVar is one environment entry added to a terminal's environment.
type EnvVar struct {
	Name  string
	Value string
}

// CreateOptions carries the optional parts of a create request.
type CreateOptions struct {
	// Args are quoted for the shell and appended to the command.
	Args []string
	// Env is appended to the inherited environment.
	Env []EnvVar
	// Cwd defaults to the manager's working directory.
	Cwd string
}

// ExitStatus describes how a terminal's process ended. Code is -1 when the
// process did not exit normally.
type ExitStatus struct {
	Code   int
	Signal string
}

type options struct {
	shell    *Shell
	executor exec.CommandExecutor
	goos     string
	workDir  string
	metrics  *metrics.Recorder
}

// Option configures a Manager.
type Option func(*options)

// WithShell skips shell detection.
func WithShell(s Shell) Option {
	return func(o *options) { o.shell = &s }
}

// WithExecutor sets the executor used for shell probes.
func WithExecutor(e exec.CommandExecutor) Option {
	return func(o *options) { o.executor = e }
}

// WithWorkDir sets the default working directory for terminals.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

// WithMetrics records terminal activity.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// withGOOS overrides the platform used for shell detection.
func withGOOS(goos string) Option {
	return func(o *options) { o.goos = goos }
}

// Manager owns the terminals created for one agent connection.
type Manager struct {
	shell   Shell
	workDir string
	metrics *metrics.Recorder
	log     *slog.Logger

	mu        sync.Mutex
	terminals map[string]*process
	nextID    uint64

	// wg tracks reaper goroutines.
	wg sync.WaitGroup
}

// New creates a Manager, resolving the shell once.
func New(opts ...Option) *Manager {
	o := options{
		executor: exec.GetDefaultExecutor(),
		goos:     runtime.GOOS,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.WithComponent("terminal")
	var shell Shell
	if o.shell != nil {
		shell = *o.shell
	} else {
		shell = DetectShell(context.Background(), o.executor, o.goos)
	}
	log.Info("using shell", "shell", shell.String())

	return &Manager{
		shell:     shell,
		workDir:   o.workDir,
		metrics:   o.metrics,
		log:       log,
		terminals: make(map[string]*process),
	}
}

// Shell returns the resolved shell.
func (m *Manager) Shell() Shell { return m.shell }

type process struct {
	id  string
	cmd *osexec.Cmd

	mu     sync.Mutex
	queue  []string
	queued int

	// streams are the read ends of the stdout and stderr pipes.
	streams []*os.File

	done   chan struct{}
	status ExitStatus // valid once done is closed
}

// closeStreams unblocks pumps still reading from pipes held open by
// background children.
func (p *process) closeStreams() {
	for _, f := range p.streams {
		_ = f.Close()
	}
}

// stop kills the process group, including children left behind by an
// exited shell, and closes the streams.
func (p *process) stop() error {
	err := killProcess(p.cmd)
	p.closeStreams()
	return err
}

// push appends a chunk. When far more than MaxOutput is waiting the queue
// is collapsed to its capped form so an unpolled terminal stays bounded.
func (p *process) push(chunk string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, chunk)
	p.queued += len(chunk)
	if p.queued > 2*MaxOutput {
		joined := capOutput(strings.Join(p.queue, ""), MaxOutput)
		p.queue = []string{joined}
		p.queued = len(joined)
	}
}

func (p *process) drain() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := capOutput(strings.Join(p.queue, ""), MaxOutput)
	p.queue = nil
	p.queued = 0
	return out
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *process) pump(r io.Reader) error {
	var dec decoder
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if s := dec.decode(buf[:n]); s != "" {
				p.push(s)
			}
		}
		if err != nil {
			if s := dec.flush(); s != "" {
				p.push(s)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Create spawns command in the shell and returns its terminal id.
func (m *Manager) Create(ctx context.Context, command string, opts CreateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	id := fmt.Sprintf("term-%d", m.nextID)
	m.nextID++
	m.mu.Unlock()

	line := m.shell.CommandLine(command, opts.Args)
	cmd := shellCommand(m.shell, line)
	cmd.Dir = m.workDir
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	if len(opts.Env) > 0 {
		env := os.Environ()
		for _, e := range opts.Env {
			env = append(env, e.Name+"="+e.Value)
		}
		cmd.Env = env
	}

	// The pipes are created here rather than with StdoutPipe so the exit
	// can be observed without waiting for every holder of the write ends.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return "", fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdout.Close()
		stderr.Close()
		m.log.Error("failed to spawn terminal", "id", id, "error", err)
		return "", fmt.Errorf("failed to spawn terminal command %q: %w", command, err)
	}

	p := &process{id: id, cmd: cmd, streams: []*os.File{stdout, stderr}, done: make(chan struct{})}
	m.mu.Lock()
	m.terminals[id] = p
	m.mu.Unlock()
	m.metrics.TerminalStarted()

	var g errgroup.Group
	g.Go(func() error { return p.pump(stdout) })
	g.Go(func() error { return p.pump(stderr) })

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reap(p, &g)
	}()

	m.log.Info("terminal created", "id", id, "pid", cmd.Process.Pid, "command", line, "cwd", cmd.Dir)
	return id, nil
}

// reap waits for the process, gives the pumps drainDelay to catch up, then
// publishes the exit. It is the only caller of Process.Wait and returns once
// both pumps have finished.
func (m *Manager) reap(p *process, g *errgroup.Group) {
	pumped := make(chan error, 1)
	go func() { pumped <- g.Wait() }()

	state, err := p.cmd.Process.Wait()

	var pumpErr error
	drained := true
	select {
	case pumpErr = <-pumped:
	case <-time.After(drainDelay):
		drained = false
	}

	status := ExitStatus{Code: -1}
	if state != nil {
		status.Code = state.ExitCode()
		status.Signal = exitSignal(state)
	}
	p.status = status
	close(p.done)
	m.log.Debug("terminal exited", "id", p.id, "code", status.Code, "signal", status.Signal, "error", err)

	if !drained {
		m.log.Debug("terminal streams still open after exit", "id", p.id)
		pumpErr = <-pumped
	}
	if pumpErr != nil {
		m.log.Warn("terminal stream read error", "id", p.id, "error", pumpErr)
	}
	p.closeStreams()
}

func (m *Manager) get(id string) (*process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.terminals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTerminal, id)
	}
	return p, nil
}

// Output returns what the terminal produced since the previous call. It
// never waits for new data.
func (m *Manager) Output(id string) (string, error) {
	p, err := m.get(id)
	if err != nil {
		return "", err
	}
	return p.drain(), nil
}

// ExitStatus reports how the terminal ended, or nil while it is running.
func (m *Manager) ExitStatus(id string) (*ExitStatus, error) {
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !p.exited() {
		return nil, nil
	}
	s := p.status
	return &s, nil
}

// WaitForExit blocks until the terminal's process exits or ctx is done and
// returns the exit code, -1 when none is available.
func (m *Manager) WaitForExit(ctx context.Context, id string) (int, error) {
	p, err := m.get(id)
	if err != nil {
		return 0, err
	}
	select {
	case <-p.done:
		return p.status.Code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Kill terminates the terminal's process. The terminal stays known until
// Release.
func (m *Manager) Kill(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	if p.exited() {
		return nil
	}
	if err := killProcess(p.cmd); err != nil {
		return fmt.Errorf("failed to kill terminal %s: %w", id, err)
	}
	m.log.Info("terminal killed", "id", id)
	return nil
}

// Release forgets the terminal, killing its process if still running.
func (m *Manager) Release(id string) error {
	m.mu.Lock()
	p, ok := m.terminals[id]
	delete(m.terminals, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTerminal, id)
	}

	m.metrics.TerminalReleased()
	if err := p.stop(); err != nil {
		m.log.Warn("failed to kill released terminal", "id", id, "error", err)
	}
	m.log.Info("terminal released", "id", id)
	return nil
}

// Close kills every remaining terminal and waits for them to be reaped.
func (m *Manager) Close() {
	m.mu.Lock()
	remaining := m.terminals
	m.terminals = make(map[string]*process)
	m.mu.Unlock()

	for id, p := range remaining {
		m.metrics.TerminalReleased()
		if err := p.stop(); err != nil {
			m.log.Warn("failed to kill terminal on close", "id", id, "error", err)
		}
	}
	m.wg.Wait()
}
