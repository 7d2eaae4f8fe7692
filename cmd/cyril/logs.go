package main

import (
	"fmt"

	"github.com/dwalleck/cyril/logger"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show or clear the log file",
}

var logsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the log file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := logPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the log file and its rotations",
	Args:  cobra.NoArgs,
	RunE:  runLogsClear,
}

func init() {
	logsCmd.AddCommand(logsPathCmd, logsClearCmd)
}

// logPath is --log-file, or the default location.
func logPath() (string, error) {
	if logFile != "" {
		return logFile, nil
	}
	return logger.DefaultLogPath()
}

func runLogsClear(cmd *cobra.Command, args []string) error {
	path, err := logPath()
	if err != nil {
		return err
	}
	// The file was opened by setup; Windows will not delete it while open.
	if logger.Path() == path {
		logger.Close()
	}
	n, err := logger.ClearLogs(path)
	if err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log file(s).\n", n)
	return nil
}
