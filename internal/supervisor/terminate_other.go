//go:build !unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"time"
)

// killsDescendants is false: only the direct child is killed and
// its descendants may keep running.
const killsDescendants = false

// prepareCommand is a no-op without Unix process groups.
func prepareCommand(cmd *exec.Cmd) {}

// terminate kills the direct child. grace is unused.
func terminate(cmd *exec.Cmd, _ time.Duration) error {
	err := cmd.Process.Kill()
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
