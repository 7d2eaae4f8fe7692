package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dwalleck/cyril/hooks"
	"github.com/spf13/cobra"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect configured hooks",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the hooks that would run in a directory",
	Args:  cobra.NoArgs,
	RunE:  runHooksList,
}

func init() {
	hooksCmd.AddCommand(hooksListCmd)
}

func runHooksList(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(workDir)
	if err != nil {
		return err
	}
	path := hooks.ResolvePath(dir, cfg.HooksFile)
	reg, err := hooks.Load(path, hooks.Options{
		ProjectRoot:   dir,
		ValidatePaths: cfg.ValidatePaths,
		Timeout:       cfg.HookTimeout(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hooks file: %s\n\n", path)
	printHooks(out, reg)
	return nil
}

func printHooks(w io.Writer, reg *hooks.Registry) {
	if reg.Len() == 0 {
		fmt.Fprintln(w, "No hooks configured.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIMING\tTARGET\tPATTERN\tCOMMAND")
	for _, h := range reg.Hooks() {
		pattern, command := "*", ""
		switch hk := h.(type) {
		case *hooks.ShellHook:
			if p := hk.Pattern(); p != "" {
				pattern = p
			}
			command = hk.Command()
		case *hooks.PathValidationHook:
			pattern = hk.Root()
			command = "(built-in)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.Name(), h.Timing(), h.Target(), pattern, command)
	}
	tw.Flush()
}
