package main

import (
	"fmt"
	"runtime"

	"github.com/dwalleck/cyril/cli"
	"github.com/dwalleck/cyril/hooks"
	"github.com/dwalleck/cyril/logger"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the agent and its prerequisites are installed",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func prerequisites(goos string) []cli.Prerequisite {
	if cfg.AgentCommand == "" {
		return cli.DefaultPrerequisites(goos)
	}
	return []cli.Prerequisite{{
		Name:        cfg.AgentCommand,
		Required:    true,
		Description: "configured agent command",
	}}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	prereqs := prerequisites(runtime.GOOS)

	results := cli.NewChecker(nil).CheckAll(cmd.Context(), prereqs)
	fmt.Fprint(out, cli.FormatCheckResults(results))

	command, agentArgs := cfg.Agent(runtime.GOOS)
	fmt.Fprintf(out, "\nAgent:   %s %v\n", command, agentArgs)
	if cfg.FilePath() != "" {
		fmt.Fprintf(out, "Config:  %s\n", cfg.FilePath())
	}
	if p := logger.Path(); p != "" {
		fmt.Fprintf(out, "Log:     %s\n", p)
	}
	if dir, err := resolveDir(workDir); err == nil {
		fmt.Fprintf(out, "Hooks:   %s\n", hooks.ResolvePath(dir, cfg.HooksFile))
	}

	for _, r := range results {
		if r.Prerequisite.Required && !r.Found {
			return fmt.Errorf("required tool %s is missing", r.Prerequisite.Name)
		}
	}
	return nil
}
