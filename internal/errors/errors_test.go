package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestSupervisorErrorFormatting(t *testing.T) {
	err := InvalidCommand()
	if !strings.Contains(err.Error(), "[INVALID_COMMAND]") {
		t.Errorf("Expected code in message, got %q", err.Error())
	}

	cause := fmt.Errorf("exec: no such file")
	spawn := SpawnFailed(cause, "/bin/zsh")
	if !strings.Contains(spawn.Error(), "exec: no such file") {
		t.Errorf("Expected cause text to be propagated, got %q", spawn.Error())
	}
	if spawn.Context["shell"] != "/bin/zsh" {
		t.Errorf("Expected shell in context, got %v", spawn.Context["shell"])
	}
}

func TestIsAndGetCode(t *testing.T) {
	wrapped := fmt.Errorf("start slot 3: %w", InvalidPackageManager("pnpm"))

	if !Is(wrapped, ErrCodeInvalidPackageManager) {
		t.Error("Expected Is to find INVALID_PACKAGE_MANAGER through wrapping")
	}
	if Is(wrapped, ErrCodeSpawnFailed) {
		t.Error("Expected Is to reject a different code")
	}
	if GetCode(wrapped) != ErrCodeInvalidPackageManager {
		t.Errorf("Expected INVALID_PACKAGE_MANAGER, got %s", GetCode(wrapped))
	}
	if GetCode(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("Expected plain errors to map to INTERNAL_ERROR")
	}
}

func TestUnwrap(t *testing.T) {
	err := WaitFailed(os.ErrPermission, 1)
	if !errors.Is(err, os.ErrPermission) {
		t.Error("Expected errors.Is to reach the wrapped cause")
	}
}
