package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Debug("before")
	SetLevel("DEBUG")
	Debug("after")
	SetLevel("bogus") // ignored
	Debug("still debug")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
	assert.Contains(t, out, "still debug")

	SetLevel("INFO")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("image downloaded", KeyURL, "http://a/b.png", KeyBytes, 1234)

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))

	assert.Equal(t, "image downloaded", record["msg"])
	assert.Equal(t, "http://a/b.png", record[KeyURL])
	assert.Equal(t, float64(1234), record[KeyBytes])
}

func TestTextFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("cache hit", KeySource, "memory", KeyCacheKey, "k1")

	out := buf.String()
	assert.Contains(t, out, "cache hit")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "k1")
	// No ANSI escapes when color is off.
	assert.NotContains(t, out, "\x1b[")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	l := With(KeyOpID, "op-1")
	l.Info("progress")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
	assert.Equal(t, "op-1", record[KeyOpID])
}

func TestErrAttr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	empty := Err(nil)
	assert.Empty(t, empty.Key)
}

func TestDuration(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)
	ms := Duration(start)
	assert.GreaterOrEqual(t, ms, 50.0)
	assert.Less(t, ms, 5000.0)
}
