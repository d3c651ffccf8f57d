package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerStatusArgs represents arguments for the status tool (no args needed)
type ServerStatusArgs struct{}

// ServerStatusResult describes the supervisor and its resource usage
type ServerStatusResult struct {
	Name             string                 `json:"name"`
	Version          string                 `json:"version"`
	RunningProjects  int                    `json:"running_projects"`
	BufferedBytes    int                    `json:"buffered_bytes"`
	KillsDescendants bool                   `json:"kills_descendants"`
	GracePeriod      string                 `json:"grace_period"`
	DatabaseEnabled  bool                   `json:"database_enabled"`
	Resources        map[string]interface{} `json:"resources,omitempty"`
}

// ServerStatus reports tracked processes, buffered output and, when the
// monitor runs, runtime resource figures
func (t *ProjectTools) ServerStatus(ctx context.Context, req *mcp.CallToolRequest, args ServerStatusArgs) (*mcp.CallToolResult, ServerStatusResult, error) {
	result := ServerStatusResult{
		Name:             t.config.Server.Name,
		Version:          t.config.Server.Version,
		RunningProjects:  t.supervisor.RunningCount(),
		BufferedBytes:    t.supervisor.BufferedBytes(),
		KillsDescendants: t.supervisor.KillsDescendants(),
		GracePeriod:      t.config.Supervisor.GracePeriod.String(),
		DatabaseEnabled:  t.database != nil,
	}

	if t.monitor != nil {
		result.Resources = t.monitor.GetResourceSummary()
	}

	return createJSONResult(result), result, nil
}
