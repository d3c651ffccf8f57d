//go:build unix

package tools

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rama-kairi/devrunner/internal/config"
	"github.com/rama-kairi/devrunner/internal/database"
	"github.com/rama-kairi/devrunner/internal/logger"
	"github.com/rama-kairi/devrunner/internal/monitoring"
	"github.com/rama-kairi/devrunner/internal/supervisor"
)

// setupTestEnvironment creates project tools backed by a temporary database
func setupTestEnvironment(t *testing.T) (*ProjectTools, *supervisor.Supervisor, *database.DB) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHELL", "/bin/sh")

	cfg := config.DefaultConfig()
	cfg.Database.DataDir = t.TempDir()
	cfg.Database.Path = cfg.Database.DataDir

	testLogger := logger.NewWithWriter(io.Discard, "debug", "json", "test")

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sup := supervisor.NewSupervisor(cfg.Supervisor, testLogger, db)
	t.Cleanup(sup.Shutdown)

	return NewProjectTools(sup, cfg, testLogger, db), sup, db
}

func resultText(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func expectError(t *testing.T, res *mcp.CallToolResult, err error, code string) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected tool errors in the result, got Go error %v", err)
	}
	if !res.IsError {
		t.Fatalf("Expected error result, got %q", resultText(res))
	}
	if !strings.Contains(resultText(res), code) {
		t.Errorf("Expected %s in %q", code, resultText(res))
	}
}

func waitForToolOutput(t *testing.T, tools *ProjectTools, slot int, want string) ProjectOutputResult {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, out, err := tools.GetProjectOutput(ctx, nil, SlotArgs{Slot: slot})
		if err != nil {
			t.Fatalf("GetProjectOutput failed: %v", err)
		}
		if strings.Contains(out.Output, want) {
			return out
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %q, output %q", want, out.Output)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartProjectValidation(t *testing.T) {
	tools, sup, _ := setupTestEnvironment(t)
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		args StartProjectArgs
		code string
	}{
		{"negative_slot", StartProjectArgs{Slot: -1, Path: dir, Command: "echo hi"}, "INVALID_INPUT"},
		{"empty_path", StartProjectArgs{Slot: 0, Path: "", Command: "echo hi"}, "INVALID_INPUT"},
		{"empty_command", StartProjectArgs{Slot: 0, Path: dir, Command: ""}, "INVALID_COMMAND"},
		{"missing_dir", StartProjectArgs{Slot: 0, Path: filepath.Join(dir, "nope"), Command: "echo hi"}, "SPAWN_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := tools.StartProject(ctx, nil, tt.args)
			expectError(t, res, err, tt.code)
			if sup.IsRunning(0) {
				t.Error("Expected no process to be registered")
			}
		})
	}
}

func TestStartStopProject(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)
	ctx := context.Background()

	res, started, err := tools.StartProject(ctx, nil, StartProjectArgs{Slot: 2, Path: t.TempDir(), Command: "echo hello; sleep 30"})
	if err != nil || res.IsError {
		t.Fatalf("Failed to start project: %v %s", err, resultText(res))
	}
	if started.Slot != 2 || !started.Running {
		t.Errorf("Unexpected start result %+v", started)
	}

	out := waitForToolOutput(t, tools, 2, "hello\n")
	if !out.Running {
		t.Error("Expected slot to report running")
	}

	res, stopped, err := tools.StopProject(ctx, nil, SlotArgs{Slot: 2})
	if err != nil || res.IsError {
		t.Fatalf("Failed to stop project: %v %s", err, resultText(res))
	}
	if stopped.Message != "Stopped slot 2" {
		t.Errorf("Unexpected stop message %q", stopped.Message)
	}

	_, out, _ = tools.GetProjectOutput(ctx, nil, SlotArgs{Slot: 2})
	if out.Running {
		t.Error("Expected slot to be idle after stop")
	}
	if out.Output != "hello\n" {
		t.Errorf("Expected output to survive stop, got %q", out.Output)
	}

	_, stopped, _ = tools.StopProject(ctx, nil, SlotArgs{Slot: 2})
	if stopped.Message != "Slot 2 was not running" {
		t.Errorf("Unexpected idle stop message %q", stopped.Message)
	}
}

func TestGetProjectOutputUnknownSlot(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)

	res, out, err := tools.GetProjectOutput(context.Background(), nil, SlotArgs{Slot: 99})
	if err != nil || res.IsError {
		t.Fatalf("Expected unknown slot to succeed: %v %s", err, resultText(res))
	}
	if out.Output != "" || out.Running {
		t.Errorf("Expected empty idle output, got %+v", out)
	}

	res, _, err = tools.GetProjectOutput(context.Background(), nil, SlotArgs{Slot: -3})
	expectError(t, res, err, "INVALID_INPUT")
}

func TestInstallPackagesTool(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)
	ctx := context.Background()

	res, _, err := tools.InstallPackages(ctx, nil, InstallPackagesArgs{Slot: 0, Path: t.TempDir(), PackageManager: "pnpm"})
	expectError(t, res, err, "INVALID_PACKAGE_MANAGER")

	bin := t.TempDir()
	if err := os.WriteFile(filepath.Join(bin, "npm"), []byte("#!/bin/sh\necho \"fake npm $1\"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write fake npm: %v", err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	res, installed, err := tools.InstallPackages(ctx, nil, InstallPackagesArgs{Slot: 0, Path: t.TempDir(), PackageManager: "npm"})
	if err != nil || res.IsError {
		t.Fatalf("Failed to install: %v %s", err, resultText(res))
	}
	if installed.Command != "npm install" {
		t.Errorf("Expected 'npm install', got %q", installed.Command)
	}

	out := waitForToolOutput(t, tools, 0, "fake npm install\n")
	if !strings.HasPrefix(out.Output, "Running npm install...\n") {
		t.Errorf("Expected install marker first, got %q", out.Output)
	}
}

func TestDetectPackageManagerTool(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, result, _ := tools.DetectPackageManager(ctx, nil, DetectPackageManagerArgs{Path: dir})
	if result.PackageManager != "npm" || result.InstallCommand != "npm install" {
		t.Errorf("Expected npm default, got %+v", result)
	}

	if err := os.WriteFile(filepath.Join(dir, "yarn.lock"), nil, 0o644); err != nil {
		t.Fatalf("Failed to write yarn.lock: %v", err)
	}
	_, result, _ = tools.DetectPackageManager(ctx, nil, DetectPackageManagerArgs{Path: dir})
	if result.PackageManager != "yarn" || result.InstallCommand != "yarn install" {
		t.Errorf("Expected yarn, got %+v", result)
	}

	res, _, err := tools.DetectPackageManager(ctx, nil, DetectPackageManagerArgs{})
	expectError(t, res, err, "INVALID_INPUT")
}

func TestSaveProjectsDiscardsDroppedSlots(t *testing.T) {
	tools, sup, _ := setupTestEnvironment(t)
	ctx := context.Background()
	dir := t.TempDir()

	projects := []database.ProjectRecord{
		{Name: "web", Path: dir, Command: "echo web; sleep 30"},
		{Name: "api", Path: dir, Command: "echo api"},
		{Name: "docs", Path: dir, Command: "echo docs; sleep 30"},
	}
	if res, _, err := tools.SaveProjects(ctx, nil, SaveProjectsArgs{Projects: projects}); err != nil || res.IsError {
		t.Fatalf("Failed to save projects: %v %s", err, resultText(res))
	}

	for slot := range projects {
		if res, _, _ := tools.StartSavedProject(ctx, nil, StartSavedProjectArgs{Slot: slot}); res.IsError {
			t.Fatalf("Failed to start slot %d: %s", slot, resultText(res))
		}
	}
	waitForToolOutput(t, tools, 0, "web\n")
	waitForToolOutput(t, tools, 1, "api\n")
	waitForToolOutput(t, tools, 2, "docs\n")

	if res, _, _ := tools.StopProject(ctx, nil, SlotArgs{Slot: 1}); res.IsError {
		t.Fatalf("Failed to stop slot 1: %s", resultText(res))
	}

	res, _, err := tools.SaveProjects(ctx, nil, SaveProjectsArgs{Projects: projects[:1]})
	if err != nil || res.IsError {
		t.Fatalf("Failed to save projects: %v %s", err, resultText(res))
	}

	if got := sup.Output(1); got != "" {
		t.Errorf("Expected output of dropped idle slot to be discarded, got %q", got)
	}
	if got := sup.Output(2); got != "docs\n" {
		t.Errorf("Expected output of dropped running slot to be kept, got %q", got)
	}
	if got := sup.Output(0); got != "web\n" {
		t.Errorf("Expected output of kept slot to be untouched, got %q", got)
	}
}

func TestCreateJSONResultEncodeFailure(t *testing.T) {
	res := createJSONResult(map[string]interface{}{"ch": make(chan int)})
	if !res.IsError {
		t.Fatalf("Expected error result, got %q", resultText(res))
	}
	if !strings.Contains(resultText(res), "INTERNAL_ERROR") {
		t.Errorf("Expected INTERNAL_ERROR in %q", resultText(res))
	}
}

func TestSaveAndGetProjects(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, got, _ := tools.GetProjects(ctx, nil, GetProjectsArgs{})
	if got.Count != 0 {
		t.Errorf("Expected no saved projects, got %d", got.Count)
	}

	projects := []database.ProjectRecord{
		{Name: "web", Type: "node", Path: dir, Command: "echo web; sleep 30", Running: true},
		{Name: "api", Type: "node", Path: dir, Command: "echo api; sleep 30"},
	}
	res, saved, err := tools.SaveProjects(ctx, nil, SaveProjectsArgs{Projects: projects})
	if err != nil || res.IsError {
		t.Fatalf("Failed to save projects: %v %s", err, resultText(res))
	}
	if saved.Count != 2 {
		t.Errorf("Expected 2 saved projects, got %d", saved.Count)
	}

	_, got, _ = tools.GetProjects(ctx, nil, GetProjectsArgs{})
	if got.Count != 2 || got.Projects[0].Name != "web" || got.Projects[1].Name != "api" {
		t.Fatalf("Unexpected project list %+v", got.Projects)
	}
	if got.Projects[0].Running {
		t.Error("Expected the stored running flag to be replaced by live state")
	}

	res, _, err = tools.StartSavedProject(ctx, nil, StartSavedProjectArgs{Slot: 1})
	if err != nil || res.IsError {
		t.Fatalf("Failed to start saved project: %v %s", err, resultText(res))
	}
	waitForToolOutput(t, tools, 1, "api\n")

	_, got, _ = tools.GetProjects(ctx, nil, GetProjectsArgs{})
	if got.Projects[0].Running || !got.Projects[1].Running {
		t.Errorf("Expected only slot 1 running, got %+v", got.Projects)
	}

	res, _, err = tools.StartSavedProject(ctx, nil, StartSavedProjectArgs{Slot: 5})
	expectError(t, res, err, "PROJECT_NOT_FOUND")
}

func TestSaveProjectsRejectsEmptyName(t *testing.T) {
	tools, _, db := setupTestEnvironment(t)

	res, _, err := tools.SaveProjects(context.Background(), nil, SaveProjectsArgs{
		Projects: []database.ProjectRecord{{Name: "ok", Path: "/"}, {Path: "/"}},
	})
	expectError(t, res, err, "INVALID_INPUT")

	projects, err := db.ListProjects()
	if err != nil {
		t.Fatalf("Failed to list projects: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("Expected nothing saved, got %d", len(projects))
	}
}

func TestListRunsTool(t *testing.T) {
	tools, _, _ := setupTestEnvironment(t)
	ctx := context.Background()
	dir := t.TempDir()

	for slot := 0; slot < 2; slot++ {
		if res, _, _ := tools.StartProject(ctx, nil, StartProjectArgs{Slot: slot, Path: dir, Command: "sleep 30"}); res.IsError {
			t.Fatalf("Failed to start slot %d: %s", slot, resultText(res))
		}
	}
	if res, _, _ := tools.StopProject(ctx, nil, SlotArgs{Slot: 0}); res.IsError {
		t.Fatalf("Failed to stop slot 0: %s", resultText(res))
	}

	_, runs, err := tools.ListRuns(ctx, nil, ListRunsArgs{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if runs.Count != 2 {
		t.Fatalf("Expected 2 runs, got %d", runs.Count)
	}

	slot := 0
	_, runs, _ = tools.ListRuns(ctx, nil, ListRunsArgs{Slot: &slot})
	if runs.Count != 1 {
		t.Fatalf("Expected 1 run for slot 0, got %d", runs.Count)
	}
	run := runs.Runs[0]
	if run.Kind != supervisor.RunKindStart || run.Command != "sleep 30" || run.StoppedAt == "" || run.Duration == "" {
		t.Errorf("Unexpected run %+v", run)
	}

	neg := -1
	res, _, err := tools.ListRuns(ctx, nil, ListRunsArgs{Slot: &neg})
	expectError(t, res, err, "INVALID_INPUT")
}

func TestStoreToolsDisabled(t *testing.T) {
	_, sup, _ := setupTestEnvironment(t)
	tools := NewProjectTools(sup, config.DefaultConfig(), logger.NewWithWriter(io.Discard, "info", "json", "test"), nil)
	ctx := context.Background()

	res, _, err := tools.GetProjects(ctx, nil, GetProjectsArgs{})
	expectError(t, res, err, "DATABASE_ERROR")

	res, _, err = tools.SaveProjects(ctx, nil, SaveProjectsArgs{})
	expectError(t, res, err, "DATABASE_ERROR")

	res, _, err = tools.ListRuns(ctx, nil, ListRunsArgs{})
	expectError(t, res, err, "DATABASE_ERROR")

	res, _, err = tools.StartSavedProject(ctx, nil, StartSavedProjectArgs{Slot: 0})
	expectError(t, res, err, "DATABASE_ERROR")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultRunsLimit},
		{-5, DefaultRunsLimit},
		{10, 10},
		{MaxRunsLimit + 1, MaxRunsLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in, DefaultRunsLimit, MaxRunsLimit); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestServerStatus(t *testing.T) {
	tools, sup, _ := setupTestEnvironment(t)
	ctx := context.Background()

	if res, _, _ := tools.StartProject(ctx, nil, StartProjectArgs{Slot: 0, Path: t.TempDir(), Command: "echo status; sleep 30"}); res.IsError {
		t.Fatalf("Failed to start: %s", resultText(res))
	}
	waitForToolOutput(t, tools, 0, "status\n")

	_, status, err := tools.ServerStatus(ctx, nil, ServerStatusArgs{})
	if err != nil {
		t.Fatalf("ServerStatus failed: %v", err)
	}
	if status.RunningProjects != 1 || status.BufferedBytes != len("status\n") {
		t.Errorf("Unexpected status %+v", status)
	}
	if !status.KillsDescendants || !status.DatabaseEnabled || status.Name != "devrunner" {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Resources != nil {
		t.Error("Expected no resource figures without a monitor")
	}

	cfg := config.DefaultConfig().Monitoring
	monitor := monitoring.NewResourceMonitor(logger.NewWithWriter(io.Discard, "info", "json", "test"), sup, cfg)
	_, status, _ = tools.WithMonitor(monitor).ServerStatus(ctx, nil, ServerStatusArgs{})
	if status.Resources["processes"] != 1 {
		t.Errorf("Expected monitor to see 1 process, got %v", status.Resources["processes"])
	}
}
