package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New builds the process logger. Output goes to stdout so container
// runtimes do not flag every line as an error.
func New(appName, level string) *log.Logger {
	return NewWithWriter(os.Stdout, appName, level)
}

func NewWithWriter(w io.Writer, appName, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		ReportCaller:    true,
	})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard is for tests and tools that need a logger but no output.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
