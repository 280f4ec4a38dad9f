package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, false)
	l.Debug().Msg("hidden")
	l.Info().Msg("playback: started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "playback: started", line["message"])
	assert.Contains(t, line, "time")
	assert.NotContains(t, line, "caller")
}

func TestNew_DebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, false)
	l.Debug().Msg("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Contains(t, line["caller"], "logger/logger_test.go:")
}

func TestInit_File(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	closer, err := Init(Config{Output: path, Level: "warn"})
	require.NoError(t, err)
	zlog.Info().Msg("dropped")
	zlog.Warn().Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"message":"kept"`)
}
