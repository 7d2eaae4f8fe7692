//go:build windows

package terminal

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// shellCommand builds the shell invocation. cmd.exe does not follow the
// argv quoting rules os/exec applies, so its command line is passed raw.
func shellCommand(shell Shell, line string) *exec.Cmd {
	if shell.Program != Cmd.Program {
		return exec.Command(shell.Program, shell.Flag, line)
	}
	cmd := exec.Command(shell.Program)
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: shell.Program + " " + shell.Flag + " " + line}
	return cmd
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitSignal(state *os.ProcessState) string { return "" }
