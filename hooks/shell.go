package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dwalleck/cyril/exec"
	"github.com/dwalleck/cyril/logger"
)

// FilePlaceholder is replaced with the operation's path in a hook command.
const FilePlaceholder = "${file}"

// ShellHook runs a configured command through the platform shell.
type ShellHook struct {
	def      Def
	timing   Timing
	target   Target
	glob     globFilter
	executor exec.CommandExecutor
	dir      string
	timeout  time.Duration
	goos     string
}

// NewShellHook builds a hook from a definition. ok is false when the
// definition's event name is not recognized.
func NewShellHook(def Def, opts Options) (hook *ShellHook, ok bool) {
	timing, target, ok := ParseEvent(def.Event)
	if !ok {
		return nil, false
	}
	opts = opts.withDefaults()

	glob := newGlobFilter(def.Pattern)
	if glob.state == globInvalid {
		logger.WithComponent("hooks").Warn("invalid glob pattern, hook will not match any files",
			"hook", def.Name, "pattern", *def.Pattern)
	}

	return &ShellHook{
		def:      def,
		timing:   timing,
		target:   target,
		glob:     glob,
		executor: opts.Executor,
		dir:      opts.ProjectRoot,
		timeout:  opts.Timeout,
		goos:     opts.GOOS,
	}, true
}

func (h *ShellHook) Name() string   { return h.def.Name }
func (h *ShellHook) Timing() Timing { return h.timing }
func (h *ShellHook) Target() Target { return h.target }

// Pattern returns the configured glob, or "" when the hook matches all paths.
func (h *ShellHook) Pattern() string {
	if h.def.Pattern == nil {
		return ""
	}
	return *h.def.Pattern
}

// Command returns the unexpanded command template.
func (h *ShellHook) Command() string { return h.def.Command }

func (h *ShellHook) expand(hc Context) string {
	if hc.Path == nil {
		return h.def.Command
	}
	return strings.ReplaceAll(h.def.Command, FilePlaceholder, *hc.Path)
}

// shellInvocation returns the interpreter and arguments that run command.
func shellInvocation(goos, command string) (string, []string) {
	if goos == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

func lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// Run filters by path, executes the command and interprets its outcome.
// A context without a path skips the glob filter.
func (h *ShellHook) Run(ctx context.Context, hc Context) Result {
	if hc.Path != nil && !h.glob.matches(*hc.Path) {
		return Continue()
	}

	log := logger.WithComponent("hooks").With("hook", h.def.Name)
	command := h.expand(hc)
	log.Info("running hook", "command", command)

	runCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	name, args := shellInvocation(h.goos, command)
	stdout, stderr, err := h.executor.Run(runCtx, h.dir, name, args...)
	if err != nil {
		code, exited := exec.ExitCode(err)
		if !exited || runCtx.Err() != nil {
			log.Error("failed to run hook", "error", err)
			if h.timing == Before {
				return Blocked(fmt.Sprintf("Hook '%s' failed to execute: %v", h.def.Name, err))
			}
			return Continue()
		}

		msg := fmt.Sprintf("Hook '%s' failed (exit %d):\n%s%s", h.def.Name, code, lossy(stdout), lossy(stderr))
		log.Warn("hook failed", "exit", code)
		if h.def.Feedback {
			return FeedbackPrompt(msg)
		}
		if h.timing == Before {
			return Blocked(msg)
		}
		return Continue()
	}

	if h.def.Feedback {
		combined := lossy(stdout) + lossy(stderr)
		if strings.TrimSpace(combined) != "" {
			return FeedbackPrompt(fmt.Sprintf("Hook '%s' output:\n%s", h.def.Name, combined))
		}
	}
	return Continue()
}
