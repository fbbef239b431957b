package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_TeesIntoExtraCores(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	l := New(Config{
		ServiceName: "readahead-test",
		Debug:       true,
		Output:      zapcore.AddSync(io.Discard),
		InitialFields: []zap.Field{
			zap.String("component", "test"),
		},
		Cores: []zapcore.Core{core},
	})

	l.Debug("fetched", WithOffset(42), WithURI("gs://bucket/key"))

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "fetched", entries[0].Message)
	assert.Equal(t, "readahead-test", fields["service"])
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, int64(42), fields["offset"])
	assert.Equal(t, "gs://bucket/key", fields["source.uri"])
}

func TestNew_InfoLevelByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{ServiceName: "readahead-test"})

	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_WritesJSONToOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Config{
		ServiceName: "readahead-test",
		Output:      zapcore.AddSync(&buf),
	})

	l.Debug("dropped")
	l.Info("seeked source", WithOffset(900))
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "seeked source", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "readahead-test", entry["service"])
	assert.InDelta(t, 900, entry["offset"], 0)
	assert.Contains(t, entry, "timestamp")
}

func TestFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	id := uuid.New()
	l.Info("stats", WithStreamID(id), WithSize("covered", 3*1024*1024), WithSourcePosition(7))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, id.String(), fields["stream.id"])
	assert.Equal(t, int64(7), fields["source.position"])
	assert.Equal(t, map[string]any{
		"bytes": int64(3 * 1024 * 1024),
		"human": "3.0 MiB",
	}, fields["covered"])
}
