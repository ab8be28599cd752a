package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (configPath, cachePath string) {
	t.Helper()

	dir := t.TempDir()
	cachePath = filepath.Join(dir, "cache.json")
	configPath = filepath.Join(dir, "config.toml")

	body := fmt.Sprintf(`
[log]
level = "error"

[system]
cache_file = %q
cache_expiration_seconds = 60

[platforms.news]
type = "rss"
enabled = true
feeds = { desk = "http://localhost/desk.xml" }
`, cachePath)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	return configPath, cachePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCleanupCommand(t *testing.T) {
	configPath, cachePath := writeConfig(t)
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"old": 1000, "fresh": 9999999999}`), 0o644))

	out, err := execute(t, "cleanup", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 expired entries, 1 remain")

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"old"`)
	assert.Contains(t, string(data), `"fresh"`)
}

func TestResetCacheRequiresConfirmation(t *testing.T) {
	configPath, cachePath := writeConfig(t)
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"a": 9999999999}`), 0o644))

	_, err := execute(t, "reset-cache", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	_, err = os.Stat(cachePath)
	require.NoError(t, err, "cache untouched without --yes")

	out, err := execute(t, "reset-cache", "--config", configPath, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cache reset")

	_, err = os.Stat(cachePath)
	assert.True(t, os.IsNotExist(err))
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "cleanup", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
