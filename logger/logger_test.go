// ABOUTME: Tests for logger construction and level parsing
// ABOUTME: Writes to a temp file and checks JSON output

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.TraceLevel, parseLevel(" trace "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipedash.log")
	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	cl := l.Component("test")
	cl.Info().Str("lead_id", "abc").Msg("hello")
	l.Debug().Msg("details")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"details"`)
}

func TestLevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipedash.log")
	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	l.Info().Msg("quiet")
	l.Warn().Msg("loud")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}
