package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rama-kairi/devrunner/internal/config"
	"github.com/rama-kairi/devrunner/internal/database"
	"github.com/rama-kairi/devrunner/internal/logger"
	"github.com/rama-kairi/devrunner/internal/monitoring"
	"github.com/rama-kairi/devrunner/internal/supervisor"
	"github.com/rama-kairi/devrunner/internal/tools"
	"github.com/rama-kairi/devrunner/internal/utils"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file")
	debugMode := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *debugMode {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}

	// stdout carries JSON-RPC
	log.SetOutput(os.Stderr)

	appLogger, err := logger.NewLogger(&cfg.Logging, "devrunner")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting devrunner MCP server", map[string]interface{}{
		"version":  cfg.Server.Version,
		"debug":    cfg.Server.Debug,
		"data_dir": cfg.Database.DataDir,
	})

	// Initialize database if enabled
	var db *database.DB
	var recorder supervisor.RunRecorder
	if cfg.Database.Enable {
		db, err = database.NewDB(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		recorder = db

		if closed, err := db.CloseOpenRuns(time.Now()); err != nil {
			appLogger.Warn("Failed to close stale runs", map[string]interface{}{
				"error": err.Error(),
			})
		} else if closed > 0 {
			appLogger.Info("Closed runs left open by a previous server", map[string]interface{}{
				"count": closed,
			})
		}

		appLogger.Info("Database initialized successfully", map[string]interface{}{
			"driver": cfg.Database.Driver,
			"path":   db.Path(),
		})
	}

	sup := supervisor.NewSupervisor(cfg.Supervisor, appLogger, recorder)
	if !sup.KillsDescendants() {
		appLogger.Warn("Stopping a project only kills its direct child on this platform")
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	projectTools := tools.NewProjectTools(sup, cfg, appLogger, db)

	if cfg.Monitoring.Enable {
		monitor := monitoring.NewResourceMonitor(appLogger, sup, cfg.Monitoring)
		monitor.Start(ctx)
		defer monitor.Stop()
		projectTools.WithMonitor(monitor)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	var managerEnum []any
	for _, name := range utils.SupportedPackageManagers() {
		managerEnum = append(managerEnum, name)
	}

	slotSchema := &jsonschema.Schema{
		Type:        "integer",
		Description: "Slot number identifying the project (non-negative). In a saved project list the slot is the project's position.",
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_project",
		Description: "Start a long-running project command (dev server, watcher, build) in the background. The command runs through the user's shell with their profile sourced, in its own process group. Starting a slot that is already running stops the old process first. The slot's output buffer is cleared; read it with get_project_output.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
				"path": {
					Type:        "string",
					Description: "Absolute path of the project directory. Used as the working directory.",
				},
				"command": {
					Type:        "string",
					Description: "Shell command to run, e.g. 'npm run dev' or 'yarn start'.",
				},
			},
			Required: []string{"slot", "path", "command"},
		},
	}, projectTools.StartProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_saved_project",
		Description: "Start the project saved at a slot using its stored path and command. See get_projects for the saved list.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
			},
			Required: []string{"slot"},
		},
	}, projectTools.StartSavedProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "install_packages",
		Description: "Run 'npm install' or 'yarn install' for a project. Output is appended to the slot's existing buffer after a 'Running <manager> install...' line. Use detect_package_manager to pick the manager.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
				"path": {
					Type:        "string",
					Description: "Absolute path of the project directory.",
				},
				"package_manager": {
					Type:        "string",
					Description: "Package manager to use.",
					Enum:        managerEnum,
				},
			},
			Required: []string{"slot", "path", "package_manager"},
		},
	}, projectTools.InstallPackages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop_project",
		Description: "Stop the process running in a slot together with every process it spawned (SIGTERM to the process group, then SIGKILL). Stopping an idle slot succeeds. Captured output is kept.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
			},
			Required: []string{"slot"},
		},
	}, projectTools.StopProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_project_output",
		Description: "Return all stdout and stderr lines captured for a slot since its last start, and whether a process is running there. Reading does not consume the output.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
			},
			Required: []string{"slot"},
		},
	}, projectTools.GetProjectOutput)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_package_manager",
		Description: "Detect the Node package manager of a project from its lock files: yarn.lock means yarn, otherwise npm.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Project directory to inspect.",
				},
			},
			Required: []string{"path"},
		},
	}, projectTools.DetectPackageManager)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_projects",
		Description: "Return the saved project list. Each project's running flag reflects the live state of the slot at its position.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, projectTools.GetProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_projects",
		Description: "Replace the saved project list. The position of a project in the list is its slot.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projects": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"name":    {Type: "string"},
							"type":    {Type: "string"},
							"path":    {Type: "string"},
							"command": {Type: "string"},
							"running": {Type: "boolean"},
							"output":  {Type: "string"},
						},
						Required: []string{"name", "path"},
					},
					Description: "Complete project list.",
				},
			},
			Required: []string{"projects"},
		},
	}, projectTools.SaveProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent start and install runs, newest first, with pids and start/stop times.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slot": slotSchema,
				"limit": {
					Type:        "integer",
					Description: "Maximum number of runs. Default 50, maximum 500.",
				},
			},
		},
	}, projectTools.ListRuns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "server_status",
		Description: "Report how many projects are running, how much output is buffered, whether stop reaches descendant processes on this platform, and runtime resource figures.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, projectTools.ServerStatus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, stopping projects...")
		sup.Shutdown()
		cancel()
	}()

	appLogger.Info("devrunner MCP server is running on stdio", map[string]interface{}{
		"grace_period": cfg.Supervisor.GracePeriod.String(),
		"database":     cfg.Database.Enable,
	})

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		appLogger.Error("Server error", err)
		sup.Shutdown()
		os.Exit(1)
	}

	// The client went away; nothing may outlive the server
	sup.Shutdown()
	appLogger.Info("devrunner MCP server shutdown completed")
}
