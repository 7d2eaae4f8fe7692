// Package session drives one ACP session with the agent and tracks the
// state the front end shows about it.
package session

import (
	"slices"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/event"
	"github.com/dwalleck/cyril/kiroext"
)

// Mode is an agent mode offered by the session.
type Mode struct {
	ID   string
	Name string
}

// State is a copy of the session's observable state.
type State struct {
	ID            string
	Cwd           string
	Modes         []Mode
	CurrentModeID string
	Models        []string
	CurrentModel  string
	// ContextUsagePct is meaningful only when HasContextUsage is set.
	ContextUsagePct float64
	HasContextUsage bool
	Commands        []kiroext.Command
}

// Context holds session state. It is updated by the driver and by events
// and is safe for concurrent use.
type Context struct {
	mu    sync.RWMutex
	state State
}

// NewContext returns an empty context for cwd.
func NewContext(cwd string) *Context {
	return &Context{state: State{Cwd: cwd}}
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.Modes = slices.Clone(s.Modes)
	s.Models = slices.Clone(s.Models)
	s.Commands = slices.Clone(s.Commands)
	return s
}

// ID returns the session id, empty before the session starts.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.ID
}

// HasMode reports whether id is one of the advertised modes. An empty mode
// list accepts any id.
func (c *Context) HasMode(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.state.Modes) == 0 {
		return true
	}
	return slices.ContainsFunc(c.state.Modes, func(m Mode) bool { return m.ID == id })
}

// HasModel reports whether id is one of the advertised models. An empty
// model list accepts any id.
func (c *Context) HasModel(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.state.Models) == 0 || slices.Contains(c.state.Models, id)
}

// Apply folds an event into the state. Events for other sessions and
// events that carry no session state are ignored.
func (c *Context) Apply(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e := ev.(type) {
	case event.ModeChanged:
		if c.matches(e.SessionID) {
			c.state.CurrentModeID = e.ModeID
		}
	case event.KiroMetadata:
		if c.matches(e.SessionID) {
			c.state.ContextUsagePct = e.ContextUsagePct
			c.state.HasContextUsage = true
		}
	case event.KiroCommandsAvailable:
		c.state.Commands = slices.Clone(e.Commands)
	}
}

// matches treats an empty id as addressed to this session.
func (c *Context) matches(id string) bool {
	return id == "" || c.state.ID == "" || id == c.state.ID
}

func (c *Context) started(cwd string, resp acp.NewSessionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Cwd = cwd
	c.state.ID = string(resp.SessionId)
	c.state.Modes = nil
	c.state.Models = nil
	if resp.Modes != nil {
		for _, m := range resp.Modes.AvailableModes {
			c.state.Modes = append(c.state.Modes, Mode{ID: string(m.Id), Name: m.Name})
		}
		c.state.CurrentModeID = string(resp.Modes.CurrentModeId)
	}
	if resp.Models != nil {
		for _, m := range resp.Models.AvailableModels {
			c.state.Models = append(c.state.Models, string(m.ModelId))
		}
		c.state.CurrentModel = string(resp.Models.CurrentModelId)
	}
}

func (c *Context) setMode(id string) {
	c.mu.Lock()
	c.state.CurrentModeID = id
	c.mu.Unlock()
}

func (c *Context) setModel(id string) {
	c.mu.Lock()
	c.state.CurrentModel = id
	c.mu.Unlock()
}
