package utils

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDetectNodePackageManager tests lock-file based detection
func TestDetectNodePackageManager(t *testing.T) {
	tests := []struct {
		name      string
		lockFiles []string
		expected  string
	}{
		{"YarnLockOnly", []string{"yarn.lock"}, "yarn"},
		{"NpmLockOnly", []string{"package-lock.json"}, "npm"},
		{"NoLockFile", nil, "npm"},
		{"BothLockFiles", []string{"yarn.lock", "package-lock.json"}, "yarn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			for _, name := range tt.lockFiles {
				if err := os.WriteFile(filepath.Join(tempDir, name), []byte("{}"), 0o644); err != nil {
					t.Fatalf("Failed to create %s: %v", name, err)
				}
			}

			if got := DetectNodePackageManager(tempDir); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDetectMissingDirectory(t *testing.T) {
	if got := DetectNodePackageManager(filepath.Join(t.TempDir(), "missing")); got != DefaultPackageManager {
		t.Errorf("Expected default package manager for missing dir, got %s", got)
	}
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		manager  string
		command  string
		expectOK bool
	}{
		{"npm", "npm install", true},
		{"yarn", "yarn install", true},
		{"pnpm", "", false},
		{"", "", false},
		{"NPM", "", false},
	}

	for _, tt := range tests {
		command, ok := InstallCommand(tt.manager)
		if ok != tt.expectOK || command != tt.command {
			t.Errorf("InstallCommand(%q) = %q, %v; want %q, %v", tt.manager, command, ok, tt.command, tt.expectOK)
		}
	}
}

func TestSupportedPackageManagers(t *testing.T) {
	names := SupportedPackageManagers()
	if len(names) != 2 || names[0] != "yarn" || names[1] != "npm" {
		t.Errorf("Expected [yarn npm], got %v", names)
	}
}
