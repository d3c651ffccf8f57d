// Package shell turns a raw command string into the platform-specific
// interpreter invocation used to launch it.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rama-kairi/devrunner/internal/errors"
)

// DefaultFallbackShell is used when $SHELL is unset
const DefaultFallbackShell = "/bin/bash"

// loginProfile is sourced by every shell so PATH matches a terminal session
const loginProfile = "~/.profile"

// rcFiles maps a shell name to the rc file it reads interactively. Other
// shells only get the login profile.
var rcFiles = map[string]string{
	"bash": "~/.bashrc",
	"zsh":  "~/.zshrc",
}

// Platform describes the target the launch spec is built for
type Platform struct {
	GOOS          string
	Shell         string // value of $SHELL, may be empty
	FallbackShell string
}

// LaunchSpec is a resolved invocation: Path is run with Args in Dir.
// CmdLine, when set, is handed to the OS as the complete command line
// instead of a line quoted from Args (Windows only).
type LaunchSpec struct {
	Dir     string
	Path    string
	Args    []string
	CmdLine string
}

// CurrentPlatform describes the running host. An empty fallback selects
// DefaultFallbackShell.
func CurrentPlatform(fallback string) Platform {
	if fallback == "" {
		fallback = DefaultFallbackShell
	}
	return Platform{
		GOOS:          runtime.GOOS,
		Shell:         os.Getenv("SHELL"),
		FallbackShell: fallback,
	}
}

// Build returns the launch spec for raw on platform p. It does not touch the
// filesystem or environment.
func Build(p Platform, dir, raw string) (LaunchSpec, error) {
	if raw == "" {
		return LaunchSpec{}, errors.InvalidCommand()
	}

	if p.GOOS == "windows" {
		return LaunchSpec{
			Dir:     dir,
			Path:    "cmd",
			Args:    []string{"/C", raw},
			CmdLine: WindowsCommandLine(raw),
		}, nil
	}

	shell := p.Shell
	if shell == "" {
		shell = p.FallbackShell
	}
	if shell == "" {
		shell = DefaultFallbackShell
	}

	return LaunchSpec{
		Dir:  dir,
		Path: shell,
		Args: []string{"-c", WrapWithProfiles(shell, raw)},
	}, nil
}

// WindowsCommandLine wraps raw for cmd.exe. With /S cmd strips exactly the
// outer quotes and runs the rest as typed, so quotes inside raw survive.
// The argv quoting of Go's exec package is not understood by cmd.
func WindowsCommandLine(raw string) string {
	return `cmd /S /C "` + raw + `"`
}

// ProfileFiles returns the profiles sourced for shell, in order
func ProfileFiles(shell string) []string {
	files := []string{loginProfile}
	if rc, ok := rcFiles[filepath.Base(shell)]; ok {
		files = append(files, rc)
	}
	return files
}

// sourceCommand returns the builtin that reads a profile into shell.
// In POSIX shells "." is a special builtin whose errors exit the shell;
// prefixing it with "command" makes a broken profile a plain failure.
// zsh's "command" only runs external programs, so it gets a bare ".".
func sourceCommand(shell string) string {
	if filepath.Base(shell) == "zsh" {
		return "."
	}
	return "command ."
}

// WrapWithProfiles prefixes raw with guarded sourcing of the profiles of
// shell. A missing or failing profile never aborts raw.
func WrapWithProfiles(shell, raw string) string {
	source := sourceCommand(shell)

	var b strings.Builder
	for _, f := range ProfileFiles(shell) {
		fmt.Fprintf(&b, "if [ -f %s ]; then %s %s 2>/dev/null || true; fi; ", f, source, f)
	}
	b.WriteString(raw)
	return b.String()
}
