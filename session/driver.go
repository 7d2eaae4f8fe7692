package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/pathmap"
	"github.com/google/uuid"
)

var (
	// ErrNotStarted is returned by session calls made before Start.
	ErrNotStarted = errors.New("session not started")
	// ErrUnknownMode is returned when the agent did not advertise a mode.
	ErrUnknownMode = errors.New("unknown agent mode")
	// ErrUnknownModel is returned when the agent did not advertise a model.
	ErrUnknownModel = errors.New("unknown model")
)

// Conn is the agent-facing half of an ACP connection.
type Conn interface {
	Initialize(ctx context.Context, params acp.InitializeRequest) (acp.InitializeResponse, error)
	NewSession(ctx context.Context, params acp.NewSessionRequest) (acp.NewSessionResponse, error)
	Prompt(ctx context.Context, params acp.PromptRequest) (acp.PromptResponse, error)
	Cancel(ctx context.Context, params acp.CancelNotification) error
	SetSessionMode(ctx context.Context, params acp.SetSessionModeRequest) (acp.SetSessionModeResponse, error)
	SetSessionModel(ctx context.Context, params acp.SetSessionModelRequest) (acp.SetSessionModelResponse, error)
}

var _ Conn = (*acp.ClientSideConnection)(nil)

// TurnEnder is told when a prompt turn finishes.
type TurnEnder interface {
	EndTurn(ctx context.Context)
}

// Options configures a Driver.
type Options struct {
	Conn       Conn
	TurnEnder  TurnEnder
	Translator pathmap.Translator
}

// Driver issues session requests over one connection.
type Driver struct {
	conn       Conn
	turns      TurnEnder
	translator pathmap.Translator
	state      *Context
	runID      string
	log        *slog.Logger
}

// NewDriver creates a Driver. A nil Translator means paths are passed
// through unchanged.
func NewDriver(opts Options) *Driver {
	tr := opts.Translator
	if tr == nil {
		tr = pathmap.Identity{}
	}
	runID := uuid.NewString()
	return &Driver{
		conn:       opts.Conn,
		turns:      opts.TurnEnder,
		translator: tr,
		state:      NewContext(""),
		runID:      runID,
		log:        logger.WithComponent("session").With("run", runID),
	}
}

// Context returns the live session state.
func (d *Driver) Context() *Context { return d.state }

// RunID identifies this driver in logs.
func (d *Driver) RunID() string { return d.runID }

// Start initializes the connection and opens a session rooted at cwd.
func (d *Driver) Start(ctx context.Context, cwd string) error {
	initResp, err := d.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientCapabilities: acp.ClientCapabilities{
			Fs: acp.FileSystemCapability{
				ReadTextFile:  true,
				WriteTextFile: true,
			},
			Terminal: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	d.log.Debug("agent initialized", "protocolVersion", initResp.ProtocolVersion)

	resp, err := d.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        d.translator.ToAgent(cwd),
		McpServers: []acp.McpServer{},
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.state.started(cwd, resp)
	d.log = logger.WithSession(string(resp.SessionId)).With("run", d.runID)

	s := d.state.Snapshot()
	d.log.Info("session started", "cwd", cwd, "modes", len(s.Modes), "mode", s.CurrentModeID, "model", s.CurrentModel)
	return nil
}

func (d *Driver) sessionID() (acp.SessionId, error) {
	id := d.state.ID()
	if id == "" {
		return "", ErrNotStarted
	}
	return acp.SessionId(id), nil
}

// Prompt sends text as one turn and blocks until the agent ends it. The
// turn-end hooks run once the agent has answered.
func (d *Driver) Prompt(ctx context.Context, text string) (acp.StopReason, error) {
	id, err := d.sessionID()
	if err != nil {
		return "", err
	}
	resp, err := d.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: id,
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	d.log.Debug("turn ended", "stopReason", resp.StopReason)
	if d.turns != nil {
		d.turns.EndTurn(ctx)
	}
	return resp.StopReason, nil
}

// Cancel asks the agent to stop the current turn. Failures are logged and
// returned but leave the session usable.
func (d *Driver) Cancel(ctx context.Context) error {
	id, err := d.sessionID()
	if err != nil {
		return err
	}
	if err := d.conn.Cancel(ctx, acp.CancelNotification{SessionId: id}); err != nil {
		d.log.Warn("cancel failed", "error", err)
		return fmt.Errorf("cancel failed: %w", err)
	}
	return nil
}

// SetMode switches the agent mode.
func (d *Driver) SetMode(ctx context.Context, modeID string) error {
	id, err := d.sessionID()
	if err != nil {
		return err
	}
	if !d.state.HasMode(modeID) {
		return fmt.Errorf("%w: %s", ErrUnknownMode, modeID)
	}
	if _, err := d.conn.SetSessionMode(ctx, acp.SetSessionModeRequest{
		SessionId: id,
		ModeId:    acp.SessionModeId(modeID),
	}); err != nil {
		return fmt.Errorf("failed to set mode %s: %w", modeID, err)
	}
	d.state.setMode(modeID)
	d.log.Info("mode set", "mode", modeID)
	return nil
}

// SetModel switches the model used by the session.
func (d *Driver) SetModel(ctx context.Context, modelID string) error {
	id, err := d.sessionID()
	if err != nil {
		return err
	}
	if !d.state.HasModel(modelID) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if _, err := d.conn.SetSessionModel(ctx, acp.SetSessionModelRequest{
		SessionId: id,
		ModelId:   acp.ModelId(modelID),
	}); err != nil {
		return fmt.Errorf("failed to set model %s: %w", modelID, err)
	}
	d.state.setModel(modelID)
	d.log.Info("model set", "model", modelID)
	return nil
}
