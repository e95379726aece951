package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("что-то"))
}

func TestFileLoggerRespectsLevels(t *testing.T) {
	LogDir = t.TempDir()
	defer func() { LogDir = "logs" }()

	l, err := NewLogger("unit")
	require.NoError(t, err)
	l.SetLevels(ERROR, WARN)

	l.Debug("скрытое сообщение")
	l.Warn("предупреждение %d", 42)
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(LogDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(LogDir, entries[0].Name()))
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.Contains(content, "[WARN] [unit] предупреждение 42"))
	assert.False(t, strings.Contains(content, "скрытое"))
}

func TestManagerReturnsSameLogger(t *testing.T) {
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	a := lm.MustGetLogger("activity")
	b := lm.MustGetLogger("activity")
	assert.Same(t, a, b)

	require.NoError(t, lm.SetLogLevel("activity", DEBUG, DEBUG))
	assert.Error(t, lm.SetLogLevel("missing", DEBUG, DEBUG))
}
