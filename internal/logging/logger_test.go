package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestUpdateLevelSharedByDerivedLoggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "discard"
	root, err := NewLogger(cfg)
	require.NoError(t, err)

	child := root.With("module", "motion")
	assert.False(t, child.Enabled(context.Background(), slog.LevelDebug))

	root.UpdateLevel("debug")
	assert.True(t, child.Enabled(context.Background(), slog.LevelDebug))
	assert.Equal(t, slog.LevelDebug, child.Level())
}

func TestManagerReusesModuleLoggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "discard"
	m, err := NewManager(cfg)
	require.NoError(t, err)

	a := m.GetLogger("safety")
	b := m.GetLogger("safety")
	assert.Same(t, a, b)
	assert.Contains(t, m.GetLoggerNames(), "safety")

	m.SetLevel("error")
	assert.False(t, a.Enabled(context.Background(), slog.LevelWarn))

	cfg2 := DefaultConfig()
	cfg2.Output = "discard"
	cfg2.Level = "debug"
	require.NoError(t, m.UpdateConfig(cfg2))
	assert.True(t, a.Enabled(context.Background(), slog.LevelDebug), "held pointer follows the new config")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rover.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.OutputPath = path
	cfg.Format = "json"

	l, err := NewLogger(cfg)
	require.NoError(t, err)
	l.Info("hello", "k", 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
