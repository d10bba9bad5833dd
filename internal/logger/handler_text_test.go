package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextHandler(t *testing.T) {
	newLogger := func(buf *bytes.Buffer) *slog.Logger {
		return slog.New(NewTextHandler(buf, nil, false))
	}

	t.Run("PlainValuesAreUnquoted", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).Info("cache hit", "source", "memory")

		assert.Contains(t, buf.String(), "cache hit")
		assert.Contains(t, buf.String(), "source=memory")
	})

	t.Run("ValuesWithSpacesAreQuoted", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).Warn("download failed", "error", "connection reset by peer")

		assert.Contains(t, buf.String(), `error="connection reset by peer"`)
	})

	t.Run("EmptyValueRendersAsEmptyQuotes", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).Info("m", "url", "")

		assert.Contains(t, buf.String(), `url=""`)
	})

	t.Run("GroupsBecomeDottedPrefixes", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).WithGroup("http").Info("fetched", "status", 200)

		assert.Contains(t, buf.String(), "http.status=200")
	})

	t.Run("BoundAttrsKeepTheirBindingPrefix", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).With("op_id", "op-1").WithGroup("cache").Info("hit", "tier", "memory")

		out := buf.String()
		assert.Contains(t, out, "op_id=op-1")
		assert.Contains(t, out, "cache.tier=memory")
	})

	t.Run("NoColorMeansNoEscapes", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf).Error("boom", "error", "x")

		assert.NotContains(t, buf.String(), "\x1b[")
	})

	t.Run("ColorWrapsLevelAndKeys", func(t *testing.T) {
		var buf bytes.Buffer
		slog.New(NewTextHandler(&buf, nil, true)).Info("m", "k", "v")

		out := buf.String()
		assert.Contains(t, out, ansiGreen)
		assert.Contains(t, out, ansiCyan)
	})
}
