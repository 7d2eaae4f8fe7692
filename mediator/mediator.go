// Package mediator answers the agent's capability calls. Every filesystem
// and terminal call passes through path translation and the hook phases
// before it touches the host.
package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/event"
	"github.com/dwalleck/cyril/fsops"
	"github.com/dwalleck/cyril/hooks"
	"github.com/dwalleck/cyril/kiroext"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/metrics"
	"github.com/dwalleck/cyril/pathmap"
	"github.com/dwalleck/cyril/terminal"
)

// Capability method names, used for logs and metrics.
const (
	MethodReadTextFile      = "fs/read_text_file"
	MethodWriteTextFile     = "fs/write_text_file"
	MethodCreateTerminal    = "terminal/create"
	MethodTerminalOutput    = "terminal/output"
	MethodWaitForExit       = "terminal/wait_for_exit"
	MethodKillTerminal      = "terminal/kill"
	MethodReleaseTerminal   = "terminal/release"
	MethodRequestPermission = "session/request_permission"
)

const internalErrorCode = -32603

// PermissionClosedMessage is the error text when a permission request goes
// unanswered.
const PermissionClosedMessage = "Permission request channel closed"

func requestError(msg string) *acp.RequestError {
	return &acp.RequestError{Code: internalErrorCode, Message: msg}
}

// Options configures a Mediator.
type Options struct {
	Hooks      hooks.Source
	Terminals  *terminal.Manager
	Translator pathmap.Translator
	Events     *event.Emitter
	Metrics    *metrics.Recorder
	// AfterReadHooks runs After hooks for file reads.
	AfterReadHooks bool
}

// Mediator implements acp.Client.
type Mediator struct {
	hooks      hooks.Source
	terminals  *terminal.Manager
	translator pathmap.Translator
	events     *event.Emitter
	metrics    *metrics.Recorder
	afterRead  bool
	log        *slog.Logger
}

var _ acp.Client = (*Mediator)(nil)

// New creates a Mediator. Missing hooks mean an empty registry and a missing
// translator means paths pass through unchanged.
func New(opts Options) *Mediator {
	m := &Mediator{
		hooks:      opts.Hooks,
		terminals:  opts.Terminals,
		translator: opts.Translator,
		events:     opts.Events,
		metrics:    opts.Metrics,
		afterRead:  opts.AfterReadHooks,
		log:        logger.WithComponent("mediator"),
	}
	if m.hooks == nil {
		m.hooks = hooks.NewStatic(hooks.NewRegistry())
	}
	if m.translator == nil {
		m.translator = pathmap.Identity{}
	}
	return m
}

func (m *Mediator) recordHook(timing hooks.Timing, target hooks.Target, res hooks.Result) {
	if res.Kind == hooks.KindContinue {
		return
	}
	m.metrics.RecordHookResult(timing.String(), target.String(), res.Kind.String())
}

// before runs the Before phase. It reports false when the call must not
// proceed.
func (m *Mediator) before(ctx context.Context, reg *hooks.Registry, hc hooks.Context) (hooks.Result, bool) {
	res := reg.RunBefore(ctx, hc)
	m.recordHook(hooks.Before, hc.Target, res)
	switch res.Kind {
	case hooks.KindBlocked, hooks.KindFeedbackPrompt:
		return res, false
	}
	return res, true
}

// after runs the After phase and forwards feedback to the consumer.
func (m *Mediator) after(ctx context.Context, reg *hooks.Registry, hc hooks.Context) {
	for _, res := range reg.RunAfter(ctx, hc) {
		m.recordHook(hooks.After, hc.Target, res)
		if res.Kind == hooks.KindFeedbackPrompt {
			m.events.Emit(event.HookFeedback{Text: res.Text})
		}
	}
}

func (m *Mediator) reject(method string, res hooks.Result) error {
	m.metrics.RecordCapabilityCall(method, metrics.OutcomeBlocked)
	m.log.Info("call stopped by hook", "method", method, "result", res.Kind.String(), "message", res.Message())
	return requestError(res.Message())
}

func (m *Mediator) fail(method string, err error) error {
	m.metrics.RecordCapabilityCall(method, metrics.OutcomeError)
	m.log.Warn("capability call failed", "method", method, "error", err)
	return requestError(err.Error())
}

func (m *Mediator) ok(method string) {
	m.metrics.RecordCapabilityCall(method, metrics.OutcomeOK)
}

var errEmptyPath = errors.New("path is required")

// ReadTextFile reads a host file on the agent's behalf.
func (m *Mediator) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	if params.Path == "" {
		return acp.ReadTextFileResponse{}, m.fail(MethodReadTextFile, errEmptyPath)
	}
	path := m.translator.ToHost(params.Path)
	m.log.Info("read text file", "path", params.Path, "hostPath", path)

	reg := m.hooks.Registry()
	beforePath := path
	if res, ok := m.before(ctx, reg, hooks.Context{Target: hooks.FsRead, Path: &beforePath}); !ok {
		return acp.ReadTextFileResponse{}, m.reject(MethodReadTextFile, res)
	}

	content, err := fsops.ReadText(path, params.Line, params.Limit)
	if err != nil {
		return acp.ReadTextFileResponse{}, m.fail(MethodReadTextFile, err)
	}

	if m.afterRead {
		afterPath, afterContent := path, content
		m.after(ctx, reg, hooks.Context{Target: hooks.FsRead, Path: &afterPath, Content: &afterContent})
	}
	m.ok(MethodReadTextFile)
	return acp.ReadTextFileResponse{Content: content}, nil
}

// WriteTextFile writes a host file on the agent's behalf. A Before hook may
// replace the content.
func (m *Mediator) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	if params.Path == "" {
		return acp.WriteTextFileResponse{}, m.fail(MethodWriteTextFile, errEmptyPath)
	}
	path := m.translator.ToHost(params.Path)
	content := params.Content
	m.log.Info("write text file", "path", params.Path, "hostPath", path, "bytes", len(content))

	reg := m.hooks.Registry()
	beforePath, beforeContent := path, content
	res, ok := m.before(ctx, reg, hooks.Context{Target: hooks.FsWrite, Path: &beforePath, Content: &beforeContent})
	if !ok {
		return acp.WriteTextFileResponse{}, m.reject(MethodWriteTextFile, res)
	}
	if res.Kind == hooks.KindModifiedArgs && res.Content != nil {
		content = *res.Content
	}

	if err := fsops.WriteText(path, content); err != nil {
		return acp.WriteTextFileResponse{}, m.fail(MethodWriteTextFile, err)
	}

	afterPath, afterContent := path, content
	m.after(ctx, reg, hooks.Context{Target: hooks.FsWrite, Path: &afterPath, Content: &afterContent})
	m.ok(MethodWriteTextFile)
	return acp.WriteTextFileResponse{}, nil
}

// CreateTerminal starts a command. Hooks see the full command line and a
// Before hook may replace it.
func (m *Mediator) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	if params.Command == "" {
		return acp.CreateTerminalResponse{}, m.fail(MethodCreateTerminal, errors.New("command is required"))
	}
	line := m.terminals.Shell().CommandLine(params.Command, params.Args)
	m.log.Info("create terminal", "command", line)

	reg := m.hooks.Registry()
	beforeLine := line
	res, ok := m.before(ctx, reg, hooks.Context{Target: hooks.Terminal, Command: &beforeLine})
	if !ok {
		return acp.CreateTerminalResponse{}, m.reject(MethodCreateTerminal, res)
	}
	if res.Kind == hooks.KindModifiedArgs && res.Content != nil {
		line = *res.Content
	}

	opts := terminal.CreateOptions{}
	if params.Cwd != nil && *params.Cwd != "" {
		opts.Cwd = m.translator.ToHost(*params.Cwd)
	}
	for _, e := range params.Env {
		opts.Env = append(opts.Env, terminal.EnvVar{Name: e.Name, Value: e.Value})
	}

	id, err := m.terminals.Create(ctx, line, opts)
	if err != nil {
		return acp.CreateTerminalResponse{}, m.fail(MethodCreateTerminal, err)
	}

	afterLine := line
	m.after(ctx, reg, hooks.Context{Target: hooks.Terminal, Command: &afterLine})
	m.ok(MethodCreateTerminal)
	return acp.CreateTerminalResponse{TerminalId: id}, nil
}

func toExitStatus(s *terminal.ExitStatus) *acp.TerminalExitStatus {
	out := &acp.TerminalExitStatus{}
	if s.Code >= 0 {
		code := s.Code
		out.ExitCode = &code
	}
	if s.Signal != "" {
		sig := s.Signal
		out.Signal = &sig
	}
	return out
}

// TerminalOutput returns output produced since the last poll.
func (m *Mediator) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	out, err := m.terminals.Output(params.TerminalId)
	if err != nil {
		return acp.TerminalOutputResponse{}, m.fail(MethodTerminalOutput, err)
	}
	resp := acp.TerminalOutputResponse{Output: out, Truncated: false}
	if status, err := m.terminals.ExitStatus(params.TerminalId); err == nil && status != nil {
		resp.ExitStatus = toExitStatus(status)
	}
	m.ok(MethodTerminalOutput)
	return resp, nil
}

// WaitForTerminalExit blocks until the terminal's process exits.
func (m *Mediator) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	if _, err := m.terminals.WaitForExit(ctx, params.TerminalId); err != nil {
		return acp.WaitForTerminalExitResponse{}, m.fail(MethodWaitForExit, err)
	}
	status, err := m.terminals.ExitStatus(params.TerminalId)
	if err != nil {
		return acp.WaitForTerminalExitResponse{}, m.fail(MethodWaitForExit, err)
	}
	es := toExitStatus(status)
	m.ok(MethodWaitForExit)
	return acp.WaitForTerminalExitResponse{ExitCode: es.ExitCode, Signal: es.Signal}, nil
}

// KillTerminalCommand kills the terminal's process but keeps its output.
func (m *Mediator) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	if err := m.terminals.Kill(params.TerminalId); err != nil {
		return acp.KillTerminalCommandResponse{}, m.fail(MethodKillTerminal, err)
	}
	m.ok(MethodKillTerminal)
	return acp.KillTerminalCommandResponse{}, nil
}

// ReleaseTerminal forgets the terminal.
func (m *Mediator) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	if err := m.terminals.Release(params.TerminalId); err != nil {
		return acp.ReleaseTerminalResponse{}, m.fail(MethodReleaseTerminal, err)
	}
	m.ok(MethodReleaseTerminal)
	return acp.ReleaseTerminalResponse{}, nil
}

// RequestPermission hands the request to the consumer and waits for its
// answer.
func (m *Mediator) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	reply := event.NewReply()
	if !m.events.EmitInteraction(ctx, event.Permission{Request: params, Reply: reply}) {
		return acp.RequestPermissionResponse{}, m.fail(MethodRequestPermission, errors.New(PermissionClosedMessage))
	}

	resp, err := reply.Wait(ctx)
	if errors.Is(err, event.ErrDismissed) {
		return acp.RequestPermissionResponse{}, m.fail(MethodRequestPermission, errors.New(PermissionClosedMessage))
	}
	if err != nil {
		return acp.RequestPermissionResponse{}, m.fail(MethodRequestPermission, err)
	}
	m.ok(MethodRequestPermission)
	return resp, nil
}

// SessionUpdate forwards streamed session updates as events.
func (m *Mediator) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	raw, err := json.Marshal(params.Update)
	if err != nil {
		m.log.Debug("failed to encode session update", "error", err)
		return nil
	}
	ev, err := event.Decode(string(params.SessionId), raw)
	if err != nil {
		m.log.Debug("failed to decode session update", "error", err)
		return nil
	}
	if ev == nil {
		m.log.Debug("unhandled session update", "update", string(raw))
		return nil
	}
	m.events.Emit(ev)
	return nil
}

// HandleExtNotification routes vendor extension notifications to events.
func (m *Mediator) HandleExtNotification(method string, params json.RawMessage) {
	switch kiroext.NormalizeMethod(method) {
	case kiroext.MethodCommandsAvailable:
		cmds, err := kiroext.ParseCommands(params)
		if err != nil {
			m.log.Warn("failed to parse extension commands", "method", method, "error", err)
			return
		}
		m.log.Debug("extension commands received", "count", len(cmds))
		m.events.Emit(event.KiroCommandsAvailable{Commands: cmds})
	case kiroext.MethodMetadata:
		md, err := kiroext.ParseMetadata(params)
		if err != nil {
			m.log.Warn("failed to parse extension metadata", "method", method, "error", err)
			return
		}
		m.events.Emit(event.KiroMetadata{SessionID: md.SessionID, ContextUsagePct: md.ContextUsagePercentage})
	default:
		m.log.Debug("ignoring extension notification", "method", method)
	}
}

// EndTurn runs the turn-end hooks after a prompt completes.
func (m *Mediator) EndTurn(ctx context.Context) {
	m.after(ctx, m.hooks.Registry(), hooks.Context{Target: hooks.TurnEnd})
}
