package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the devrunner MCP server
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Process supervision configuration
	Supervisor SupervisorConfig `json:"supervisor"`

	// Project store configuration
	Database DatabaseConfig `json:"database"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Resource monitoring configuration
	Monitoring MonitoringConfig `json:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

// SupervisorConfig controls how child processes are launched and stopped
type SupervisorConfig struct {
	// GracePeriod is the pause between SIGTERM and SIGKILL on stop
	GracePeriod time.Duration `json:"grace_period"`
	// Shell overrides $SHELL when non-empty
	Shell string `json:"shell"`
	// FallbackShell is used when neither Shell nor $SHELL is set
	FallbackShell string `json:"fallback_shell"`
}

// DatabaseConfig holds the SQLite project store configuration
type DatabaseConfig struct {
	Enable  bool   `json:"enable"`
	Driver  string `json:"driver"`
	DataDir string `json:"data_dir"`
	Path    string `json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
	Output string `json:"output"` // "stderr", "stdout", "file", or file path
}

// MonitoringConfig controls the periodic resource monitor
type MonitoringConfig struct {
	Enable   bool          `json:"enable"`
	Interval time.Duration `json:"interval"`
	// GoroutineThreshold is the growth over baseline, beyond the two readers
	// per tracked process, that is reported as a leak
	GoroutineThreshold int `json:"goroutine_threshold"`
	// OutputThresholdMB is the total buffered output reported as excessive
	OutputThresholdMB int `json:"output_threshold_mb"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	dataDir, err := GetConfigDir()
	if err != nil {
		dataDir = filepath.Join(os.TempDir(), "devrunner")
	}

	return &Config{
		Server: ServerConfig{
			Name:    "devrunner",
			Version: "1.0.0",
			Debug:   false,
		},
		Supervisor: SupervisorConfig{
			GracePeriod:   100 * time.Millisecond,
			Shell:         "",
			FallbackShell: "/bin/bash",
		},
		Database: DatabaseConfig{
			Enable:  true,
			Driver:  "sqlite3",
			DataDir: dataDir,
			Path:    dataDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Monitoring: MonitoringConfig{
			Enable:             true,
			Interval:           30 * time.Second,
			GoroutineThreshold: 100,
			OutputThresholdMB:  64,
		},
	}
}

// GetConfigDir returns ~/.config/devrunner
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "devrunner"), nil
}

// GetDefaultConfigPath returns the config file looked up when -config is not given
func GetDefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadConfig loads configuration from an optional file and the environment.
// With an empty configFile the default path is used if it exists.
func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile == "" {
		if path, err := GetDefaultConfigPath(); err == nil && fileExists(path) {
			configFile = path
		}
	}

	if configFile != "" {
		if err := loadFromFile(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, config)
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *Config) {
	if val := os.Getenv("DEVRUNNER_DEBUG"); val != "" {
		config.Server.Debug = parseBool(val)
	}

	if val := os.Getenv("DEVRUNNER_GRACE_PERIOD"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Supervisor.GracePeriod = duration
		}
	}
	if val := os.Getenv("DEVRUNNER_SHELL"); val != "" {
		config.Supervisor.Shell = val
	}
	if val := os.Getenv("DEVRUNNER_FALLBACK_SHELL"); val != "" {
		config.Supervisor.FallbackShell = val
	}

	if val := os.Getenv("DEVRUNNER_DB_ENABLE"); val != "" {
		config.Database.Enable = parseBool(val)
	}
	if val := os.Getenv("DEVRUNNER_DATA_DIR"); val != "" {
		config.Database.DataDir = val
		config.Database.Path = val
	}

	if val := os.Getenv("DEVRUNNER_MONITOR_ENABLE"); val != "" {
		config.Monitoring.Enable = parseBool(val)
	}
	if val := os.Getenv("DEVRUNNER_MONITOR_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Monitoring.Interval = duration
		}
	}

	if val := os.Getenv("DEVRUNNER_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("DEVRUNNER_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("DEVRUNNER_LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if config.Supervisor.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}

	if config.Supervisor.FallbackShell == "" {
		return fmt.Errorf("fallback_shell must not be empty")
	}

	if config.Database.Enable && config.Database.Path == "" {
		return fmt.Errorf("database path is required when the database is enabled")
	}

	if config.Monitoring.Enable && config.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring interval must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// Helper functions for parsing environment variables
func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveToFile saves the current configuration to a file
func (c *Config) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0o644)
}
