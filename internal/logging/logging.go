// Package logging builds the charmbracelet logger used by the command line.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

const levelEnv = "REGSCOPE_LOG_LEVEL"

// New returns a logger writing to w at the given level. REGSCOPE_LOG_LEVEL
// overrides level when set.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           log.InfoLevel,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if env := os.Getenv(levelEnv); env != "" {
		level = env
	}
	SetLogLevel(logger, level)
	return logger
}

// ParseLevel maps a level name to a log.Level. Unknown names are info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func SetLogLevel(logger *log.Logger, level string) {
	logger.SetLevel(ParseLevel(level))
	logger.Debug("Log level set", "level", level)
}
