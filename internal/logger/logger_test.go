package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newPretty(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	h := NewPrettyHandler(buf, &slog.HandlerOptions{Level: level})
	h.noColor = true
	return slog.New(h)
}

func TestNew_CustomWriter(t *testing.T) {
	var buf bytes.Buffer

	l := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Writer: &buf})
	l.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{"production uses json", "production", true},
		{"development uses pretty", "development", false},
		{"empty uses pretty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Environment: tt.environment, Writer: &buf, NoColor: true})
			l.Info("hello")

			assert.Equal(t, tt.wantJSON, strings.HasPrefix(buf.String(), "{"))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
			assert.Equal(t, tt.valid, ValidLevel(tt.input))
		})
	}
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.Info("page fetched", "key", "feed:random", "count", 20, "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "INF page fetched")
	assert.Contains(t, out, "key=feed:random")
	assert.Contains(t, out, "count=20")
	assert.Contains(t, out, `note="two words"`)
	assert.NotContains(t, out, "\033[")
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelWarn)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN shown")
}

func TestPrettyHandler_ComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: newPretty(&buf, slog.LevelInfo)}

	base.Component("resolver").Info("reference resolved", "shelf_id", "s2")

	line := buf.String()
	assert.Contains(t, line, "[resolver] reference resolved")
	assert.NotContains(t, line, "component=")
	assert.Contains(t, line, "shelf_id=s2")
}

func TestPrettyHandler_GroupsQualifyKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	l.WithGroup("request").With("method", "GET").Info("served", "status", 200)

	out := buf.String()
	assert.Contains(t, out, "request.method=GET")
	assert.Contains(t, out, "request.status=200")
}

func TestPrettyHandler_EmptyGroupIsIdentity(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, nil)

	assert.Same(t, h, h.WithGroup(""))
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true})

	slog.New(h).Info("test message")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestPrettyHandler_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := newPretty(&buf, slog.LevelInfo)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() { l.Info("line", "n", i) })
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 20)
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "2026-01-02T03:04:05Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1.5s", formatValue(slog.DurationValue(1500*time.Millisecond)))
	assert.Equal(t, "{a=1 b=x}", formatValue(slog.GroupValue(slog.Int("a", 1), slog.String("b", "x"))))
	assert.Equal(t, "true", formatValue(slog.BoolValue(true)))
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: newPretty(&buf, slog.LevelInfo)}

	l.WithError(errors.New("boom")).Error("commit failed")

	assert.Contains(t, buf.String(), "error=boom")
}
