package terminal

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dwalleck/cyril/exec"
)

// Shell is an interpreter that runs one command string.
type Shell struct {
	Program string
	Flag    string
}

var (
	Pwsh       = Shell{Program: "pwsh", Flag: "-Command"}
	PowerShell = Shell{Program: "powershell", Flag: "-Command"}
	Cmd        = Shell{Program: "cmd.exe", Flag: "/C"}
	Bash       = Shell{Program: "bash", Flag: "-c"}
	Sh         = Shell{Program: "sh", Flag: "-c"}
)

func (s Shell) String() string { return s.Program + " " + s.Flag }

type probe struct {
	shell Shell
	args  []string
}

// candidates lists shells in preference order with the invocation used to
// check each one; the last entry is the fallback and is never probed.
func candidates(goos string) ([]probe, Shell) {
	if goos == "windows" {
		return []probe{
			{Pwsh, []string{"--version"}},
			{PowerShell, []string{"-Command", "$PSVersionTable"}},
		}, Cmd
	}
	return []probe{
		{Bash, []string{"--version"}},
	}, Sh
}

const probeTimeout = 5 * time.Second

// DetectShell returns the first candidate whose probe runs successfully.
func DetectShell(ctx context.Context, executor exec.CommandExecutor, goos string) Shell {
	probes, fallback := candidates(goos)
	for _, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		_, _, err := executor.Run(pctx, "", p.shell.Program, p.args...)
		cancel()
		if err == nil {
			return p.shell
		}
	}
	return fallback
}

var (
	posixSafe   = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)
	windowsSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./\\-]+$`)
)

// Quote renders arg as a single word for this shell.
func (s Shell) Quote(arg string) string {
	switch s.Program {
	case Cmd.Program:
		if windowsSafe.MatchString(arg) {
			return arg
		}
		return `"` + strings.ReplaceAll(arg, `"`, `""`) + `"`
	case Pwsh.Program, PowerShell.Program:
		if windowsSafe.MatchString(arg) {
			return arg
		}
		return "'" + strings.ReplaceAll(arg, "'", "''") + "'"
	default:
		if posixSafe.MatchString(arg) {
			return arg
		}
		return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
}

// CommandLine joins command and quoted args into the string handed to the
// shell.
func (s Shell) CommandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	var b strings.Builder
	b.WriteString(command)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(s.Quote(a))
	}
	return b.String()
}
