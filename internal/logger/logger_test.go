package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARNING, ParseLogLevel("WARN"))
	assert.Equal(t, ERROR, ParseLogLevel(" error "))
	assert.Equal(t, INFO, ParseLogLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARNING, &buf)
	l.SetFlags(0)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warning("shown %d", 3)
	l.Error("shown %d", 4)

	assert.Equal(t, "[WARNING] shown 3\n[ERROR] shown 4\n", buf.String())
}

func TestNamedSharesLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	root := New(INFO, &buf)
	root.SetFlags(0)
	child := root.Named("app").Named("schema")

	assert.Equal(t, "app.schema", child.Name())

	child.Debug("not yet")
	root.SetLevel(DEBUG)
	child.Debug("now %s", "visible")

	assert.Equal(t, "[DEBUG] app.schema: now visible\n", buf.String())
	assert.True(t, child.Enabled(DEBUG))
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(ERROR, &buf)
	GetLogger().SetFlags(0)
	t.Cleanup(func() { Init(INFO, nil) })

	Info("dropped")
	Error("kept")
	assert.Equal(t, "[ERROR] kept\n", buf.String())
	assert.False(t, IsDebugEnabled())

	SetLevel(DEBUG)
	assert.Equal(t, DEBUG, GetLevel())
}
