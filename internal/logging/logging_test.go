package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUsesConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringmaster.log")
	logger, fallback := Open(path)
	require.NotNil(t, logger)
	assert.Empty(t, fallback)

	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestOpenFallsBackWhenDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nosuchdir", "ringmaster.log")
	logger, fallback := Open(path)
	require.NotNil(t, logger)
	assert.NotEmpty(t, fallback)
}
