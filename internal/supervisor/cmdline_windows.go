//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// applyCmdLine passes line to CreateProcess untouched
func applyCmdLine(cmd *exec.Cmd, line string) {
	if line == "" {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CmdLine = line
}
