package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]string{"--directory", dir})
	require.NoError(t, err)
	assert.Equal(t, DefaultPortmanPort, cfg.PortmanPort)
	assert.Equal(t, dir, cfg.Directory)
	assert.Equal(t, "", cfg.LogFile)
}

func TestParseOverridesAllFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]string{
		"--portman-port", "31000",
		"--directory", dir,
		"--log-file", "/tmp/ringmaster-test.log",
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(31000), cfg.PortmanPort)
	assert.Equal(t, dir, cfg.Directory)
	assert.Equal(t, "/tmp/ringmaster-test.log", cfg.LogFile)
}

func TestParseRejectsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := Parse([]string{"--directory", dir})
	assert.Error(t, err)
}

func TestParseRejectsFileAsDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := Parse([]string{"--directory", file})
	assert.Error(t, err)
}
