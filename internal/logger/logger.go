package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rama-kairi/devrunner/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Slot      *int                   `json:"slot,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Command   string                 `json:"command,omitempty"`
	Error     string                 `json:"error,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger provides structured logging capabilities
type Logger struct {
	level      LogLevel
	format     string
	output     io.Writer
	mu         *sync.RWMutex
	component  string
	baseFields map[string]interface{}
	fileHandle *os.File
}

// NewLogger creates a new logger instance
func NewLogger(cfg *config.LoggingConfig, component string) (*Logger, error) {
	output, fileHandle, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return &Logger{
		level:      parseLogLevel(cfg.Level),
		format:     strings.ToLower(cfg.Format),
		output:     output,
		mu:         &sync.RWMutex{},
		component:  component,
		baseFields: make(map[string]interface{}),
		fileHandle: fileHandle,
	}, nil
}

// NewWithWriter creates a logger writing to w, mostly for tests
func NewWithWriter(w io.Writer, level, format, component string) *Logger {
	return &Logger{
		level:      parseLogLevel(level),
		format:     strings.ToLower(format),
		output:     w,
		mu:         &sync.RWMutex{},
		component:  component,
		baseFields: make(map[string]interface{}),
	}
}

func openOutput(output string) (io.Writer, *os.File, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	case "file":
		output = "devrunner.log"
	}

	if !strings.HasPrefix(output, "/") && !strings.HasSuffix(output, ".log") {
		return os.Stderr, nil, nil
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return file, file, nil
}

// Close closes the log file if the logger opened one
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileHandle != nil {
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLogLevel(level)
}

// WithFields returns a child logger that adds fields to every entry.
// The child shares the parent's writer and lock.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	child := &Logger{
		level:      l.level,
		format:     l.format,
		output:     l.output,
		mu:         l.mu,
		component:  l.component,
		baseFields: make(map[string]interface{}, len(l.baseFields)+len(fields)),
	}

	for k, v := range l.baseFields {
		child.baseFields[k] = v
	}
	for k, v := range fields {
		child.baseFields[k] = v
	}

	return child
}

// WithSlot returns a logger tagged with a process slot
func (l *Logger) WithSlot(slot int) *Logger {
	return l.WithFields(map[string]interface{}{
		"slot": slot,
	})
}

// WithComponent returns a logger with component name
func (l *Logger) WithComponent(component string) *Logger {
	child := l.WithFields(nil)
	child.component = component
	return child
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, "", fields...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, "", fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, "", fields...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, fields ...map[string]interface{}) {
	errorStr := ""
	if err != nil {
		errorStr = err.Error()
	}
	l.log(ERROR, message, errorStr, fields...)
}

// LogProcessEvent logs a lifecycle transition of the process in a slot
func (l *Logger) LogProcessEvent(event string, slot int, fields ...map[string]interface{}) {
	eventFields := map[string]interface{}{
		"event": event,
		"slot":  slot,
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			eventFields[k] = v
		}
	}

	l.Info(fmt.Sprintf("Process %s", event), eventFields)
}

// log holds the write lock so entries from concurrent readers never interleave
func (l *Logger) log(level LogLevel, message, errorStr string, fields ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = file[strings.LastIndex(file, "/")+1:]
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   message,
		Component: l.component,
		Error:     errorStr,
		File:      file,
		Line:      line,
		Fields:    make(map[string]interface{}),
	}

	entry.apply(l.baseFields)
	if len(fields) > 0 {
		entry.apply(fields[0])
	}

	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	var out string
	if l.format == "json" {
		data, _ := json.Marshal(entry)
		out = string(data) + "\n"
	} else {
		out = l.formatTextEntry(entry)
	}

	l.output.Write([]byte(out))
}

// apply promotes well-known keys to top-level entry fields
func (e *LogEntry) apply(fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "slot":
			if slot, ok := v.(int); ok {
				e.Slot = &slot
			} else {
				e.Fields[k] = v
			}
		case "run_id":
			e.RunID = fmt.Sprintf("%v", v)
		case "command":
			e.Command = fmt.Sprintf("%v", v)
		default:
			e.Fields[k] = v
		}
	}
}

// formatTextEntry formats a log entry as human-readable text
func (l *Logger) formatTextEntry(entry LogEntry) string {
	parts := []string{fmt.Sprintf("[%s] %s", entry.Timestamp[:19], entry.Level)}

	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Component))
	}

	if entry.Slot != nil {
		parts = append(parts, fmt.Sprintf("[slot:%d]", *entry.Slot))
	}

	parts = append(parts, entry.Message)

	if entry.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%s", entry.Error))
	}

	if entry.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", entry.RunID))
	}

	if entry.Command != "" {
		parts = append(parts, fmt.Sprintf("cmd=%q", entry.Command))
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
	}

	if l.level == DEBUG && entry.File != "" {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	return strings.Join(parts, " ") + "\n"
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// GetDefaultLogger creates a JSON logger on stderr
func GetDefaultLogger() *Logger {
	logger, _ := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}, "devrunner")
	return logger
}
