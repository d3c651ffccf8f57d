package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	superr "github.com/rama-kairi/devrunner/internal/errors"
)

// Helper functions for validation and result creation

// validateSlot rejects negative slots
func validateSlot(slot int) error {
	if slot < 0 {
		return superr.InvalidInput("slot", "must be a non-negative integer")
	}
	return nil
}

// validatePath rejects an empty working directory
func validatePath(path string) error {
	if path == "" {
		return superr.InvalidInput("path", "working directory cannot be empty").
			WithSuggestion("Pass the absolute path of the project directory")
	}
	return nil
}

// clampLimit applies the default and maximum to a caller supplied limit
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// createJSONResult creates a JSON result for tool responses
func createJSONResult(data interface{}) *mcp.CallToolResult {
	resultJSON, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return createErrorResult(errorMessage(superr.InternalError(err, "encode tool result")))
	}
	content := []mcp.Content{
		&mcp.TextContent{
			Text: string(resultJSON),
		},
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: false,
	}
}

// createErrorResult creates an error result for tool responses
func createErrorResult(message string) *mcp.CallToolResult {
	content := []mcp.Content{
		&mcp.TextContent{
			Text: fmt.Sprintf("Error: %s", message),
		},
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: true,
	}
}

// errorMessage renders err for a tool result, with the suggestion of a coded
// error appended
func errorMessage(err error) string {
	var supErr *superr.SupervisorError
	if errors.As(err, &supErr) && supErr.Suggestion != "" {
		return fmt.Sprintf("%v (%s)", err, supErr.Suggestion)
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
