package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("TEMPLEDB_DEBUG", "")

	cases := []struct {
		env  string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelError},
		{"bogus", LevelError},
	}
	for _, tc := range cases {
		t.Setenv("TEMPLEDB_LOG_LEVEL", tc.env)
		assert.Equal(t, tc.want, levelFromEnv(), "TEMPLEDB_LOG_LEVEL=%q", tc.env)
	}
}

func TestDebugToggleWinsOverLevel(t *testing.T) {
	t.Setenv("TEMPLEDB_DEBUG", "1")
	t.Setenv("TEMPLEDB_LOG_LEVEL", "error")
	assert.Equal(t, LevelDebug, levelFromEnv())
}

func TestSetLevelAndEnabled(t *testing.T) {
	orig := level
	defer SetLevel(orig)

	SetLevel(LevelError)
	assert.False(t, Enabled())
	SetLevel(LevelDebug)
	assert.True(t, Enabled())
}

func TestSetVerbose(t *testing.T) {
	orig := level
	defer SetLevel(orig)

	SetLevel(LevelError)
	SetVerbose(true)
	assert.True(t, Enabled())
}

func TestQuietMode(t *testing.T) {
	defer SetQuiet(false)
	assert.False(t, IsQuiet())
	SetQuiet(true)
	assert.True(t, IsQuiet())
}
