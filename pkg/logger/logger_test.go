package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_StructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("ledger_id", "abc").Msg("person created")

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output), "logger output should be valid JSON")

	assert.Equal(t, "person created", output["message"])
	assert.Equal(t, "abc", output["ledger_id"])
	assert.Equal(t, "info", output["level"])
	assert.Contains(t, output, "time", "should include timestamp")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		emit      func(zerolog.Logger)
		wantEmpty bool
	}{
		{"debug", func(l zerolog.Logger) { l.Debug().Msg("x") }, false},
		{"info", func(l zerolog.Logger) { l.Debug().Msg("x") }, true},
		{"warn", func(l zerolog.Logger) { l.Info().Msg("x") }, true},
		{"warning", func(l zerolog.Logger) { l.Warn().Msg("x") }, false},
		{"error", func(l zerolog.Logger) { l.Warn().Msg("x") }, true},
		{"error", func(l zerolog.Logger) { l.Error().Msg("x") }, false},
		{"bogus", func(l zerolog.Logger) { l.Debug().Msg("x") }, true},
		{"bogus", func(l zerolog.Logger) { l.Info().Msg("x") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(NewWithWriter(tt.level, &buf))
			assert.Equal(t, tt.wantEmpty, buf.Len() == 0)
		})
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter("info", &buf), "registry")

	log.Info().Msg("hello")

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, "registry", output["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestNew_PrettyMode(t *testing.T) {
	// Writes to stdout; only checks it does not panic.
	log := New("info", true)
	log.Info().Msg("pretty mode test")
}
