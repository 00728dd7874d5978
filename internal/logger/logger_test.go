package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.InfoLevel).WithComponent("crawl")

	log.Info().Str("entity", "widget").Int("observed", 3).Msg("cycle finished")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "crawl", line["component"])
	assert.Equal(t, "widget", line["entity"])
	assert.Equal(t, float64(3), line["observed"])
	assert.Equal(t, "cycle finished", line["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.WarnLevel)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel).WithFields(map[string]any{"cluster": "prod"})

	log.Debug().Msg("x")
	assert.Contains(t, buf.String(), `"cluster":"prod"`)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Level: "debug", Output: "stdout", Format: "console"})
	require.NoError(t, err)

	_, err = New(DefaultConfig())
	require.NoError(t, err)

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Output: "syslog"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewTestLoggerDiscards(t *testing.T) {
	log := NewTestLogger()
	log.Error().Msg("ignored")
	log.WithComponent("x").Info().Msg("ignored")
}
