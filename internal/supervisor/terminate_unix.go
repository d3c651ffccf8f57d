//go:build unix

package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// killsDescendants reports whether terminate reaches the whole process tree
const killsDescendants = true

// prepareCommand makes the child the leader of its own process group so
// signals sent to -pid reach every descendant.
func prepareCommand(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminate sends SIGTERM to the process group, waits grace, then sends
// SIGKILL to the same group. A group that is already gone is not an error.
func terminate(cmd *exec.Cmd, grace time.Duration) error {
	pgid := cmd.Process.Pid

	termErr := signalGroup(pgid, unix.SIGTERM)
	time.Sleep(grace)
	killErr := signalGroup(pgid, unix.SIGKILL)

	return errors.Join(termErr, killErr)
}

func signalGroup(pgid int, sig unix.Signal) error {
	err := unix.Kill(-pgid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("signal %s to process group %d: %w", unix.SignalName(sig), pgid, err)
}
