package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		" INFO ":  log.InfoLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"bogus":   log.InfoLevel,
		"":        log.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), "level %q", input)
	}
}

func TestNewHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("REGSCOPE_LOG_LEVEL", "error")
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Error("shown", "key", "value")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "key=value")
}

func TestNewUsesConfiguredLevel(t *testing.T) {
	t.Setenv("REGSCOPE_LOG_LEVEL", "")
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
}
