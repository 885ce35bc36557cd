package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "json", "info")
	require.NoError(t, err)

	ctx := WithAttrs(context.Background(), slog.String("run_id", "abc"))
	ctx = WithAttrs(ctx, slog.Int("worker", 3))
	log.InfoContext(ctx, "indexed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "indexed", rec["msg"])
	assert.Equal(t, "abc", rec["run_id"])
	assert.Equal(t, float64(3), rec["worker"])
}

func TestContextHandler_DerivedLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "json", "info")
	require.NoError(t, err)

	ctx := WithAttrs(context.Background(), slog.String("request_id", "r1"))
	log.With("component", "api").InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "api", rec["component"])
	assert.Equal(t, "r1", rec["request_id"])
}

func TestWithAttrs_DoesNotShareParent(t *testing.T) {
	parent := WithAttrs(context.Background(), slog.String("a", "1"))
	left := WithAttrs(parent, slog.String("b", "2"))
	right := WithAttrs(parent, slog.String("c", "3"))

	assert.Len(t, parent.Value(ctxKey{}).([]slog.Attr), 1)
	assert.Equal(t, "b", left.Value(ctxKey{}).([]slog.Attr)[1].Key)
	assert.Equal(t, "c", right.Value(ctxKey{}).([]slog.Attr)[1].Key)
}

func TestReplaceAttr_Error(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "json", "debug")
	require.NoError(t, err)

	log.Error("failed", "error", errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "text", "warn")
	require.NoError(t, err)

	log.Info("quiet")
	assert.Empty(t, buf.String())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "msg=loud")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", "info")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "text", "verbose")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
