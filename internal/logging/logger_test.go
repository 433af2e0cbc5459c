package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Warn(ctx, nil, "visible warn")
	logger.Error(ctx, errors.New("boom"), "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "visible error")
	assert.Contains(t, out, "error=boom")
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("rebuild").With("source", "App.svelte").Info(context.Background(), "rebuilt", "duration_ms", 12)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "rebuilt", entry["msg"])
	assert.Equal(t, "rebuild", entry["component"])
	assert.Equal(t, "App.svelte", entry["source"])
	assert.Equal(t, float64(12), entry["duration_ms"])
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})
	_ = parent.With("child", true)

	parent.Info(context.Background(), "parent line")
	assert.NotContains(t, buf.String(), "child=true")
}

func TestFatalDoesNotExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelError, Output: &buf})

	logger.Fatal(context.Background(), errors.New("no browser"), "bootstrap failed")
	assert.True(t, strings.Contains(buf.String(), "fatal=true"))
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Output: &buf})

	op := StartOperation(logger, "compile")
	d := op.End(context.Background())
	assert.GreaterOrEqual(t, int64(d), int64(0))
	assert.Contains(t, buf.String(), "operation=compile")

	buf.Reset()
	op = StartOperation(logger, "compile")
	op.EndWithError(context.Background(), errors.New("syntax"))
	assert.Contains(t, buf.String(), "Operation failed")
}
