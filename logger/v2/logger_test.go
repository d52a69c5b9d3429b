package v2

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "loud", Format: "text", Output: "stdout"}},
		{"bad format", Config{Level: "info", Format: "xml", Output: "stdout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	l, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("hello", String("k", "v"))
	require.NoError(t, l.Close())
	assert.FileExists(t, path)
}

func TestCloseReleasesOutputAndTeeFiles(t *testing.T) {
	dir := t.TempDir()
	out, tee := filepath.Join(dir, "agent.log"), filepath.Join(dir, "audit", "agent.log")
	l, err := New(Config{Level: "info", Format: "text", Output: out, FilePath: tee})
	require.NoError(t, err)
	l.Info("entry")

	files := l.(*loggerImpl).files
	require.Len(t, files, 2)
	require.NoError(t, l.Close())
	for _, f := range files {
		assert.ErrorIs(t, f.Close(), os.ErrClosed, f.Name())
	}
	for _, p := range []string{out, tee} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Contains(t, string(data), "entry")
	}
	assert.NoError(t, l.Close(), "second close is a no-op")
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug")
	child := l.With(String("request_id", "r-1"))
	child.Error("tool failed", errors.New("boom"), Int("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, "request_id=r-1")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "tool failed")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUtilLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	u := ToUtilLogger(NewWithWriter(&buf, "info"))
	u.Infof("session %s", "abc")
	assert.Contains(t, buf.String(), "session abc")
	assert.Contains(t, buf.String(), "component=mcp-go")
}

func TestNoopLogger(t *testing.T) {
	l := NewNoop()
	l.Info("nothing")
	assert.NoError(t, l.Close())
	assert.NotNil(t, l.With(String("a", "b")))
}
