package utils

import (
	"os"
	"path/filepath"
)

// DefaultPackageManager is reported when no lock file is present
const DefaultPackageManager = "npm"

// PackageManager describes a Node.js package manager the supervisor can run
type PackageManager struct {
	Name           string
	LockFile       string
	InstallCommand string
}

// nodePackageManagers is ordered by detection precedence
var nodePackageManagers = []PackageManager{
	{
		Name:           "yarn",
		LockFile:       "yarn.lock",
		InstallCommand: "yarn install",
	},
	{
		Name:           "npm",
		LockFile:       "package-lock.json",
		InstallCommand: "npm install",
	},
}

// DetectNodePackageManager inspects dir for lock files. yarn.lock wins over
// package-lock.json; with neither present the result is npm.
func DetectNodePackageManager(dir string) string {
	for _, manager := range nodePackageManagers {
		if fileExists(filepath.Join(dir, manager.LockFile)) {
			return manager.Name
		}
	}
	return DefaultPackageManager
}

// LookupPackageManager returns the supported manager called name
func LookupPackageManager(name string) (PackageManager, bool) {
	for _, manager := range nodePackageManagers {
		if manager.Name == name {
			return manager, true
		}
	}
	return PackageManager{}, false
}

// InstallCommand returns the fixed install command for name
func InstallCommand(name string) (string, bool) {
	manager, ok := LookupPackageManager(name)
	if !ok {
		return "", false
	}
	return manager.InstallCommand, true
}

// SupportedPackageManagers lists manager names in detection order
func SupportedPackageManagers() []string {
	names := make([]string, 0, len(nodePackageManagers))
	for _, manager := range nodePackageManagers {
		names = append(names, manager.Name)
	}
	return names
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
