package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rama-kairi/devrunner/internal/config"
	"github.com/rama-kairi/devrunner/internal/database"
	"github.com/rama-kairi/devrunner/internal/logger"
	"github.com/rama-kairi/devrunner/internal/monitoring"
	"github.com/rama-kairi/devrunner/internal/supervisor"
	"github.com/rama-kairi/devrunner/internal/utils"
)

// ProjectTools contains all MCP tools for running and inspecting projects
type ProjectTools struct {
	supervisor *supervisor.Supervisor
	config     *config.Config
	logger     *logger.Logger
	database   *database.DB
	monitor    *monitoring.ResourceMonitor
}

// NewProjectTools creates the tool handlers. db may be nil when persistence
// is disabled; the store tools then return errors.
func NewProjectTools(sup *supervisor.Supervisor, cfg *config.Config, log *logger.Logger, db *database.DB) *ProjectTools {
	return &ProjectTools{
		supervisor: sup,
		config:     cfg,
		logger:     log.WithComponent("tools"),
		database:   db,
	}
}

// WithMonitor attaches the resource monitor reported by server_status
func (t *ProjectTools) WithMonitor(m *monitoring.ResourceMonitor) *ProjectTools {
	t.monitor = m
	return t
}

// StartProjectArgs represents arguments for starting a project command
type StartProjectArgs struct {
	Slot    int    `json:"slot" jsonschema:"Slot number that identifies the project. Starting an occupied slot replaces its process."`
	Path    string `json:"path" jsonschema:"Working directory of the project"`
	Command string `json:"command" jsonschema:"Shell command to run, e.g. 'npm run dev'"`
}

// StartProjectResult represents the result of starting a project
type StartProjectResult struct {
	Slot    int    `json:"slot"`
	Running bool   `json:"running"`
	Message string `json:"message"`
}

// StartProject launches a command under a slot, replacing its output buffer
func (t *ProjectTools) StartProject(ctx context.Context, req *mcp.CallToolRequest, args StartProjectArgs) (*mcp.CallToolResult, StartProjectResult, error) {
	if err := validateSlot(args.Slot); err != nil {
		return createErrorResult(errorMessage(err)), StartProjectResult{}, nil
	}
	if err := validatePath(args.Path); err != nil {
		return createErrorResult(errorMessage(err)), StartProjectResult{}, nil
	}

	if err := t.supervisor.Start(args.Slot, args.Path, args.Command); err != nil {
		t.logger.Error("Failed to start project", err, map[string]interface{}{
			"slot":    args.Slot,
			"path":    args.Path,
			"command": args.Command,
		})
		return createErrorResult(errorMessage(err)), StartProjectResult{}, nil
	}

	result := StartProjectResult{
		Slot:    args.Slot,
		Running: true,
		Message: fmt.Sprintf("Started '%s' in slot %d", args.Command, args.Slot),
	}
	return createJSONResult(result), result, nil
}

// StartSavedProjectArgs represents arguments for starting a stored project
type StartSavedProjectArgs struct {
	Slot int `json:"slot" jsonschema:"Position of the project in the saved project list"`
}

// StartSavedProject starts the project saved at a slot with its stored path
// and command
func (t *ProjectTools) StartSavedProject(ctx context.Context, req *mcp.CallToolRequest, args StartSavedProjectArgs) (*mcp.CallToolResult, StartProjectResult, error) {
	if err := validateSlot(args.Slot); err != nil {
		return createErrorResult(errorMessage(err)), StartProjectResult{}, nil
	}

	project, err := t.savedProject(args.Slot)
	if err != nil {
		return createErrorResult(errorMessage(err)), StartProjectResult{}, nil
	}

	return t.StartProject(ctx, req, StartProjectArgs{
		Slot:    args.Slot,
		Path:    project.Path,
		Command: project.Command,
	})
}

// InstallPackagesArgs represents arguments for installing dependencies
type InstallPackagesArgs struct {
	Slot           int    `json:"slot" jsonschema:"Slot number whose output buffer receives the install output"`
	Path           string `json:"path" jsonschema:"Project directory"`
	PackageManager string `json:"package_manager" jsonschema:"Either npm or yarn"`
}

// InstallPackagesResult represents the result of launching an install
type InstallPackagesResult struct {
	Slot           int    `json:"slot"`
	PackageManager string `json:"package_manager"`
	Command        string `json:"command"`
	Message        string `json:"message"`
}

// InstallPackages runs '<manager> install' under a slot, appending to its output
func (t *ProjectTools) InstallPackages(ctx context.Context, req *mcp.CallToolRequest, args InstallPackagesArgs) (*mcp.CallToolResult, InstallPackagesResult, error) {
	if err := validateSlot(args.Slot); err != nil {
		return createErrorResult(errorMessage(err)), InstallPackagesResult{}, nil
	}
	if err := validatePath(args.Path); err != nil {
		return createErrorResult(errorMessage(err)), InstallPackagesResult{}, nil
	}

	if err := t.supervisor.InstallPackages(args.Slot, args.Path, args.PackageManager); err != nil {
		t.logger.Error("Failed to install packages", err, map[string]interface{}{
			"slot":            args.Slot,
			"path":            args.Path,
			"package_manager": args.PackageManager,
		})
		return createErrorResult(errorMessage(err)), InstallPackagesResult{}, nil
	}

	command, _ := utils.InstallCommand(args.PackageManager)
	result := InstallPackagesResult{
		Slot:           args.Slot,
		PackageManager: args.PackageManager,
		Command:        command,
		Message:        fmt.Sprintf("Running %s install in slot %d", args.PackageManager, args.Slot),
	}
	return createJSONResult(result), result, nil
}

// SlotArgs represents arguments that only name a slot
type SlotArgs struct {
	Slot int `json:"slot" jsonschema:"Slot number of the project"`
}

// StopProjectResult represents the result of stopping a project
type StopProjectResult struct {
	Slot    int    `json:"slot"`
	Message string `json:"message"`
}

// StopProject terminates the process in a slot together with its descendants
func (t *ProjectTools) StopProject(ctx context.Context, req *mcp.CallToolRequest, args SlotArgs) (*mcp.CallToolResult, StopProjectResult, error) {
	if err := validateSlot(args.Slot); err != nil {
		return createErrorResult(errorMessage(err)), StopProjectResult{}, nil
	}

	wasRunning := t.supervisor.IsRunning(args.Slot)
	if err := t.supervisor.Stop(args.Slot); err != nil {
		t.logger.Error("Failed to stop project", err, map[string]interface{}{
			"slot": args.Slot,
		})
		return createErrorResult(errorMessage(err)), StopProjectResult{}, nil
	}

	message := fmt.Sprintf("Stopped slot %d", args.Slot)
	if !wasRunning {
		message = fmt.Sprintf("Slot %d was not running", args.Slot)
	}

	result := StopProjectResult{Slot: args.Slot, Message: message}
	return createJSONResult(result), result, nil
}

// ProjectOutputResult represents the accumulated output of a slot
type ProjectOutputResult struct {
	Slot    int    `json:"slot"`
	Output  string `json:"output"`
	Running bool   `json:"running"`
}

// GetProjectOutput returns everything a slot's processes have printed since
// the last start
func (t *ProjectTools) GetProjectOutput(ctx context.Context, req *mcp.CallToolRequest, args SlotArgs) (*mcp.CallToolResult, ProjectOutputResult, error) {
	if err := validateSlot(args.Slot); err != nil {
		return createErrorResult(errorMessage(err)), ProjectOutputResult{}, nil
	}

	result := ProjectOutputResult{
		Slot:    args.Slot,
		Output:  t.supervisor.Output(args.Slot),
		Running: t.supervisor.IsRunning(args.Slot),
	}
	return createJSONResult(result), result, nil
}

// DetectPackageManagerArgs represents arguments for package manager detection
type DetectPackageManagerArgs struct {
	Path string `json:"path" jsonschema:"Project directory to inspect for lock files"`
}

// DetectPackageManagerResult represents the detected package manager
type DetectPackageManagerResult struct {
	Path           string `json:"path"`
	PackageManager string `json:"package_manager"`
	InstallCommand string `json:"install_command"`
}

// DetectPackageManager reports yarn or npm based on the lock files in a directory
func (t *ProjectTools) DetectPackageManager(ctx context.Context, req *mcp.CallToolRequest, args DetectPackageManagerArgs) (*mcp.CallToolResult, DetectPackageManagerResult, error) {
	if err := validatePath(args.Path); err != nil {
		return createErrorResult(errorMessage(err)), DetectPackageManagerResult{}, nil
	}

	manager := t.supervisor.DetectPackageManager(args.Path)
	command, _ := utils.InstallCommand(manager)

	result := DetectPackageManagerResult{
		Path:           args.Path,
		PackageManager: manager,
		InstallCommand: command,
	}
	return createJSONResult(result), result, nil
}
