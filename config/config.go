// Package config loads cyril's settings from config.json and CYRIL_*
// environment variables. Environment values win over the file; command-line
// flags are applied on top by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dwalleck/cyril/event"
	"github.com/dwalleck/cyril/pathmap"
	"github.com/dwalleck/cyril/paths"
	"github.com/dwalleck/cyril/transport"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "CYRIL"

const (
	DefaultEventBuffer    = event.DefaultBuffer
	DefaultHookTimeoutSec = 30
)

// Config holds the application configuration
type Config struct {
	AgentCommand   string   `json:"agent_command,omitempty" envconfig:"AGENT_COMMAND"`
	AgentArgs      []string `json:"agent_args,omitempty" envconfig:"AGENT_ARGS"`
	HooksFile      string   `json:"hooks_file,omitempty" envconfig:"HOOKS_FILE"`
	ValidatePaths  bool     `json:"validate_paths" envconfig:"VALIDATE_PATHS"`
	AfterReadHooks bool     `json:"after_read_hooks,omitempty" envconfig:"AFTER_READ_HOOKS"`
	TranslatePaths string   `json:"translate_paths,omitempty" envconfig:"TRANSLATE_PATHS"` // auto, on or off
	EventBuffer    int      `json:"event_buffer,omitempty" envconfig:"EVENT_BUFFER"`
	HookTimeoutSec int      `json:"hook_timeout_sec,omitempty" envconfig:"HOOK_TIMEOUT_SEC"`
	MetricsAddr    string   `json:"metrics_addr,omitempty" envconfig:"METRICS_ADDR"` // e.g. "127.0.0.1:9464"
	Debug          bool     `json:"debug,omitempty" envconfig:"DEBUG"`

	filePath string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ValidatePaths:  true,
		TranslatePaths: string(pathmap.ModeAuto),
		EventBuffer:    DefaultEventBuffer,
		HookTimeoutSec: DefaultHookTimeoutSec,
	}
}

// Load reads config.json from the config directory, then applies
// environment overrides.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, then applies environment overrides.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// Fields without a matching variable keep their file or default value.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config values are usable.
func (c *Config) Validate() error {
	if _, err := pathmap.ParseMode(c.TranslatePaths); err != nil {
		return err
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must not be negative, got %d", c.EventBuffer)
	}
	if c.HookTimeoutSec < 0 {
		return fmt.Errorf("hook_timeout_sec must not be negative, got %d", c.HookTimeoutSec)
	}
	if c.AgentCommand == "" && len(c.AgentArgs) > 0 {
		return fmt.Errorf("agent_args set without agent_command")
	}
	return nil
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// FilePath returns where the config was loaded from.
func (c *Config) FilePath() string { return c.filePath }

// Agent returns the agent command line, falling back to the platform
// default when none is configured.
func (c *Config) Agent(goos string) (string, []string) {
	if c.AgentCommand == "" {
		return transport.DefaultCommand(goos)
	}
	return c.AgentCommand, c.AgentArgs
}

// Translator returns the path translator selected by translate_paths.
// Validate has already rejected unknown modes.
func (c *Config) Translator() pathmap.Translator {
	mode, err := pathmap.ParseMode(c.TranslatePaths)
	if err != nil {
		mode = pathmap.ModeAuto
	}
	return pathmap.New(mode)
}

// HookTimeout returns the per-hook command timeout. Zero means no limit.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutSec) * time.Second
}
