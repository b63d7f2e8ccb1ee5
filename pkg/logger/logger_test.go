package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer, cfg Config) *Logger {
	return &Logger{config: cfg, logger: log.New(buf, "", 0)}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{TraceLevel, "TRACE"},
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", TraceLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warning", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInitializeDefaultsComponent(t *testing.T) {
	require.NoError(t, Initialize(Config{Level: InfoLevel}))
	require.NotNil(t, defaultLogger)
	assert.Equal(t, "folio", defaultLogger.config.Component)
}

func TestPrettyFormattingSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, Component: "test"})

	entry := LogEntry{
		Time:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Message:   "built target",
		Component: "test",
		Fields:    map[string]interface{}{"zeta": 1, "alpha": "a", "mid": true},
	}

	out := l.formatPretty(entry)
	assert.Equal(t, "2025-01-01 12:00:00 [INFO] test: built target {alpha=a, mid=true, zeta=1}", out)
}

func TestPrettyFormattingNoOpMarker(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, Component: "folio", NoOp: true})
	l.Log(InfoLevel, "would run pandoc")
	assert.Contains(t, buf.String(), "[NO-OP] would run pandoc")
}

func TestJSONFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, JSON: true, Component: "test"})

	l.Log(InfoLevel, "test message", String("key", "value"), Strings("files", []string{"a.md", "b.md"}))

	var parsed LogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed))
	assert.Equal(t, "test message", parsed.Message)
	assert.Equal(t, "INFO", parsed.Level)
	assert.Equal(t, "value", parsed.Fields["key"])
	assert.Equal(t, []interface{}{"a.md", "b.md"}, parsed.Fields["files"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: WarnLevel, Component: "test"})

	l.Log(InfoLevel, "info message")
	l.Log(DebugLevel, "debug message")
	l.Log(WarnLevel, "warn message")
	l.Log(ErrorLevel, "error message")

	out := buf.String()
	assert.NotContains(t, out, "info message")
	assert.NotContains(t, out, "debug message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "key", Value: "value"}, String("key", "value"))
	assert.Equal(t, Field{Key: "count", Value: 42}, Int("count", 42))
	assert.Equal(t, Field{Key: "enabled", Value: true}, Bool("enabled", true))
	assert.Equal(t, Field{Key: "took", Value: "1.5s"}, Duration("took", 1500*time.Millisecond))
	assert.Equal(t, Field{Key: "error", Value: "boom"}, Err(errors.New("boom")))
	assert.Equal(t, Field{Key: "error", Value: "<nil>"}, Err(nil))

	src := []string{"x"}
	f := Strings("list", src)
	src[0] = "mutated"
	assert.Equal(t, []string{"x"}, f.Value)
}

func TestConvenienceFunctionsAndSetOutput(t *testing.T) {
	require.NoError(t, Initialize(Config{Level: InfoLevel, Component: "test"}))

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("test info message")
	Debug("hidden debug")
	Trace("hidden trace")
	Warn("test warn message")

	out := buf.String()
	assert.Contains(t, out, "test info message")
	assert.Contains(t, out, "test warn message")
	assert.NotContains(t, out, "hidden debug")
}

func TestFallbackLoggingDoesNotPanic(t *testing.T) {
	original := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = original }()

	assert.NotPanics(t, func() {
		Info("dropped")
		Warn("fallback warn")
		Error("fallback error")
	})
}
