package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zester/pkg/config"
)

func TestNew(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "zester.log")

	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info console", &config.LoggingConfig{Level: "info"}, false},
		{"debug json", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
		{"invalid format", &config.LoggingConfig{Level: "info", Format: "xml"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: logFile}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}

	_, err := os.Stat(logFile)
	assert.NoError(t, err, "log file should be created")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	for level, logFn := range map[string]func(string){
		"debug": l.Debug,
		"info":  l.Info,
		"warn":  l.Warn,
		"error": l.Error,
	} {
		buf.Reset()
		logFn(level + " message")
		assert.Contains(t, buf.String(), level+" message")
		assert.Contains(t, buf.String(), `"level":"`+level+`"`)
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	child := l.
		WithField("kind", "likes").
		WithFields(map[string]interface{}{
			"page":    3,
			"done":    true,
			"elapsed": 2 * time.Second,
		})
	child.Info("chained fields")

	output := buf.String()
	assert.Contains(t, output, "chained fields")
	assert.Contains(t, output, `"kind":"likes"`)
	assert.Contains(t, output, `"page":3`)
	assert.Contains(t, output, `"done":true`)

	buf.Reset()
	l.Info("parent untouched")
	assert.NotContains(t, buf.String(), "kind")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("connection reset")).Error("fetch failed")
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), "fetch failed")
}

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithField("component", "crawler").InfoWithFields("page fetched", map[string]interface{}{
		"kind":    "comments",
		"records": 50,
		"cursor":  nil,
	})

	output := buf.String()
	assert.Contains(t, output, `"component":"crawler"`)
	assert.Contains(t, output, `"kind":"comments"`)
	assert.Contains(t, output, `"records":50`)
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("visible")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, `"message":"visible"`)
	assert.Contains(t, output, `"app":"zester"`)
	assert.Equal(t, 1, strings.Count(output, "\n"))
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "error"}))
	assert.NotNil(t, GetLogger())

	Debug("debug message")
	Info("info message")
	WithField("key", "value").Info("with field")
	WithError(errors.New("test")).Error("with error")
}

func TestInitializeWithWriter(t *testing.T) {
	defer func() { _ = Initialize(&config.LoggingConfig{Level: "error"}) }()

	var buf bytes.Buffer
	require.NoError(t, InitializeWithWriter(&config.LoggingConfig{Level: "info", Format: "json"}, &buf))

	Info("routed message")
	assert.Contains(t, buf.String(), "routed message")
}

func TestTestLogger(t *testing.T) {
	l := NewTestLogger()
	child := l.WithField("kind", "likes")

	child.InfoWithFields("crawl progress", map[string]interface{}{"records": 10})
	l.WithError(errors.New("boom")).Error("crawl failed")

	messages := l.GetMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, "likes", messages[0].Fields["kind"])
	assert.Equal(t, 10, messages[0].Fields["records"])
	assert.Equal(t, "boom", messages[1].Fields["error"])
	assert.True(t, l.HasError())
	assert.True(t, l.HasMessage("crawl progress"))
	assert.Contains(t, l.String(), "[ERROR] crawl failed")

	l.Clear()
	assert.Empty(t, l.GetMessages())
}

func TestHelpers(t *testing.T) {
	l := NewTestLogger()

	LogRequest(l, "GET", "https://api-v2.soundcloud.com/me", 200, 120*time.Millisecond)
	LogRequest(l, "GET", "https://api-v2.soundcloud.com/me", 503, time.Second)
	LogCrawlProgress(l, "likes", 2, 1000)
	LogBackoff(l, "likes", 1, 2*time.Second, errors.New("server error"))

	assert.Len(t, l.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, l.GetMessagesByLevel("WARN"), 2)
	assert.True(t, l.HasMessage("crawl progress"))
}
