// Command cyril runs an ACP agent with mediated file and terminal access.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dwalleck/cyril/config"
	"github.com/dwalleck/cyril/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	workDir   string
	prompt    string
	agentMode string
	hooksFile string
	debug     bool
	logFile   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cyril",
	Short: "Run a Kiro ACP agent with hook-mediated file and terminal access",
	Long: `cyril starts the agent over the Agent Client Protocol and serves its
file and terminal requests on this machine. Every request passes through the
hooks configured in hooks.json (or the file named by --hooks).

With -p the prompt is sent once, permission requests are approved with the
agent's "allow once" option, and cyril exits when the turn ends. Without -p
each line read from stdin is sent as a prompt.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	RunE: runSession,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "d", "", "working directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&hooksFile, "hooks", "", "hooks file (default: hooks.json in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (default: <state dir>/logs/cyril.log)")

	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "send one prompt and exit")
	rootCmd.Flags().StringVarP(&agentMode, "agent", "a", "", "agent mode to select after the session starts")

	rootCmd.AddCommand(doctorCmd, hooksCmd, logsCmd)
}

// setup loads the config, applies flag overrides and opens the log file.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if hooksFile != "" {
		loaded.HooksFile = hooksFile
	}
	if debug {
		loaded.Debug = true
	}
	cfg = loaded

	path, err := logPath()
	if err != nil {
		return err
	}
	logger.SetDebug(cfg.Debug)
	if err := logger.Init(path); err != nil {
		return err
	}
	return nil
}

// resolveDir returns the absolute working directory for dir.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("invalid working directory: %s is not a directory", dir)
	}
	return filepath.Abs(dir)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
