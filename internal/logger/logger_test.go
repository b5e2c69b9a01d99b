package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     LogLevel
		logFunc   func(l Logger)
		wantEmpty bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("hidden") }, true},
		{"info emitted at info", LogLevelInfo, func(l Logger) { l.Info("shown") }, false},
		{"trace emitted at trace", LogLevelTrace, func(l Logger) { l.Trace("shown") }, false},
		{"warn suppressed at error", LogLevelError, func(l Logger) { l.Warn("hidden") }, true},
		{"explicit level", LogLevelDebug, func(l Logger) { l.Log(LogLevelDebug, "shown") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			tt.logFunc(NewWriterLogger(&buf, tt.level).Module("test"))

			if tt.wantEmpty {
				assert.Empty(t, buf.String())
			} else {
				assert.NotEmpty(t, buf.String())
			}
		})
	}
}

func TestConsoleOutputFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelTrace).Module("recorder").Module("front")

	log.With(String("camera", "front")).Trace("state changed",
		Int("pid", 42),
		Duration("delay", 1500*time.Millisecond),
		Float64("ratio", 0.123456),
		Bool("ok", true))

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "module=recorder.front")
	assert.Contains(t, out, "camera=front")
	assert.Contains(t, out, "pid=42")
	assert.Contains(t, out, "delay=1.5s")
	assert.Contains(t, out, "ratio=0.123")
	assert.NotContains(t, out, "time=")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LogLevelInfo).Module("api")

	log.WithContext(WithTraceID(context.Background(), "abc-123")).Info("request")
	assert.Contains(t, buf.String(), "trace_id=abc-123")

	buf.Reset()
	log.WithContext(context.Background()).Info("request")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestErrorFieldNil(t *testing.T) {
	t.Parallel()

	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestFileOutputJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("capture").Debug("spawned", String("url", "rtsp://host/stream"))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "capture", record["module"])
	assert.Equal(t, "rtsp://host/stream", record["url"])
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, traceLevelValue, parseLogLevel("trace"))
	assert.Equal(t, parseLogLevel("info"), parseLogLevel("bogus"))
}
