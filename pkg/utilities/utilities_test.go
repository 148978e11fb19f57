package utilities

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFromString("debug"))
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("bogus"))
}

func TestInitWithRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	lg, err := Init(LogConfig{Level: "debug", File: path})
	require.NoError(t, err)
	lg.Sugar().Infow("hello", "k", "v")
	_ = lg.Sync()
}

func TestIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		k := NewKSUID()
		s := NewSnowflakeID()
		assert.False(t, seen[k])
		assert.False(t, seen[s])
		seen[k], seen[s] = true, true
	}
}
