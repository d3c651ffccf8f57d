//go:build !windows

package supervisor

import "os/exec"

// applyCmdLine is a no-op; argv is passed through as a vector
func applyCmdLine(cmd *exec.Cmd, line string) {}
