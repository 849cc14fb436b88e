package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RejectsUnknownFlag(t *testing.T) {
	assert.Error(t, run([]string{"-no-such-flag"}))
}

func TestRun_RejectsInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fdp.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nheartbeat_timeout = \"5s\"\n"), 0o600))

	err := run([]string{"-config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestRun_RejectsMissingConfigFile(t *testing.T) {
	err := run([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)
}
