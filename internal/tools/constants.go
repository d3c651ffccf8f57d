package tools

const (
	// Run history limits
	DefaultRunsLimit = 50
	MaxRunsLimit     = 500
)
