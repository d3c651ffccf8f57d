package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rama-kairi/devrunner/internal/database"
	superr "github.com/rama-kairi/devrunner/internal/errors"
)

func errStoreDisabled() error {
	return superr.New(superr.ErrCodeDatabaseError, "project store is disabled").
		WithSuggestion("Set database.enable to true or DEVRUNNER_DB_ENABLE=true")
}

// GetProjectsArgs represents arguments for listing saved projects (no args needed)
type GetProjectsArgs struct{}

// GetProjectsResult represents the saved project list
type GetProjectsResult struct {
	Projects []database.ProjectRecord `json:"projects"`
	Count    int                      `json:"count"`
}

// GetProjects returns the saved project list. The running flag of each entry
// reflects the process registry, not the stored value.
func (t *ProjectTools) GetProjects(ctx context.Context, req *mcp.CallToolRequest, args GetProjectsArgs) (*mcp.CallToolResult, GetProjectsResult, error) {
	if t.database == nil {
		return createErrorResult(errorMessage(errStoreDisabled())), GetProjectsResult{}, nil
	}

	projects, err := t.database.ListProjects()
	if err != nil {
		dbErr := superr.DatabaseError(err, "list projects")
		t.logger.Error("Failed to load projects", dbErr)
		return createErrorResult(errorMessage(dbErr)), GetProjectsResult{}, nil
	}

	for i := range projects {
		projects[i].Running = t.supervisor.IsRunning(i)
	}

	result := GetProjectsResult{Projects: projects, Count: len(projects)}
	return createJSONResult(result), result, nil
}

// SaveProjectsArgs represents the full project list to persist
type SaveProjectsArgs struct {
	Projects []database.ProjectRecord `json:"projects" jsonschema:"Complete project list; replaces whatever was saved before"`
}

// SaveProjectsResult represents the result of saving the project list
type SaveProjectsResult struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// SaveProjects replaces the saved project list
func (t *ProjectTools) SaveProjects(ctx context.Context, req *mcp.CallToolRequest, args SaveProjectsArgs) (*mcp.CallToolResult, SaveProjectsResult, error) {
	if t.database == nil {
		return createErrorResult(errorMessage(errStoreDisabled())), SaveProjectsResult{}, nil
	}

	for i, p := range args.Projects {
		if p.Name == "" {
			err := superr.InvalidInput(fmt.Sprintf("projects[%d].name", i), "cannot be empty")
			return createErrorResult(errorMessage(err)), SaveProjectsResult{}, nil
		}
	}

	previous, err := t.database.ListProjects()
	if err != nil {
		dbErr := superr.DatabaseError(err, "list projects")
		t.logger.Error("Failed to read saved projects", dbErr)
		return createErrorResult(errorMessage(dbErr)), SaveProjectsResult{}, nil
	}

	if err := t.database.ReplaceProjects(args.Projects); err != nil {
		dbErr := superr.DatabaseError(err, "save projects")
		t.logger.Error("Failed to save projects", dbErr, map[string]interface{}{
			"count": len(args.Projects),
		})
		return createErrorResult(errorMessage(dbErr)), SaveProjectsResult{}, nil
	}

	// Slots that dropped off the end of the list lose their output unless a
	// process still runs there.
	discarded := 0
	for slot := len(args.Projects); slot < len(previous); slot++ {
		if t.supervisor.DiscardOutput(slot) {
			discarded++
		}
	}

	t.logger.Info("Projects saved", map[string]interface{}{
		"count":             len(args.Projects),
		"discarded_outputs": discarded,
	})

	result := SaveProjectsResult{
		Count:   len(args.Projects),
		Message: fmt.Sprintf("Saved %d projects", len(args.Projects)),
	}
	return createJSONResult(result), result, nil
}

// savedProject returns the project stored at slot
func (t *ProjectTools) savedProject(slot int) (database.ProjectRecord, error) {
	if t.database == nil {
		return database.ProjectRecord{}, errStoreDisabled()
	}

	projects, err := t.database.ListProjects()
	if err != nil {
		return database.ProjectRecord{}, superr.DatabaseError(err, "list projects")
	}
	if slot >= len(projects) {
		return database.ProjectRecord{}, superr.ProjectNotFound(slot)
	}
	return projects[slot], nil
}

// ListRunsArgs represents arguments for reading the run history
type ListRunsArgs struct {
	Slot  *int `json:"slot,omitempty" jsonschema:"Optional slot to filter by"`
	Limit int  `json:"limit,omitempty" jsonschema:"Maximum number of runs to return"`
}

// RunInfo represents one run in the history
type RunInfo struct {
	ID         string `json:"id"`
	Slot       int    `json:"slot"`
	Kind       string `json:"kind"`
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	PID        int    `json:"pid"`
	StartedAt  string `json:"started_at"`
	StoppedAt  string `json:"stopped_at,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// ListRunsResult represents the run history
type ListRunsResult struct {
	Runs  []RunInfo `json:"runs"`
	Count int       `json:"count"`
}

// ListRuns returns the most recent runs, newest first
func (t *ProjectTools) ListRuns(ctx context.Context, req *mcp.CallToolRequest, args ListRunsArgs) (*mcp.CallToolResult, ListRunsResult, error) {
	if t.database == nil {
		return createErrorResult(errorMessage(errStoreDisabled())), ListRunsResult{}, nil
	}
	if args.Slot != nil {
		if err := validateSlot(*args.Slot); err != nil {
			return createErrorResult(errorMessage(err)), ListRunsResult{}, nil
		}
	}

	records, err := t.database.ListRuns(args.Slot, clampLimit(args.Limit, DefaultRunsLimit, MaxRunsLimit))
	if err != nil {
		dbErr := superr.DatabaseError(err, "list runs")
		t.logger.Error("Failed to list runs", dbErr)
		return createErrorResult(errorMessage(dbErr)), ListRunsResult{}, nil
	}

	runs := make([]RunInfo, 0, len(records))
	for _, r := range records {
		info := RunInfo{
			ID:         r.ID,
			Slot:       r.Slot,
			Kind:       r.Kind,
			Command:    r.Command,
			WorkingDir: r.WorkingDir,
			PID:        r.PID,
			StartedAt:  formatTime(r.StartedAt),
		}
		if r.StoppedAt != nil {
			info.StoppedAt = formatTime(*r.StoppedAt)
			info.Duration = r.StoppedAt.Sub(r.StartedAt).String()
		}
		runs = append(runs, info)
	}

	result := ListRunsResult{Runs: runs, Count: len(runs)}
	return createJSONResult(result), result, nil
}
