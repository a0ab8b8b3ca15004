package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/cli"
)

// writeConfig creates a config file whose state lives in a temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`storage:
  path: %q
cache:
  backend: none
models:
  path: %q
  disable_watch: true
files:
  dir: %q
jobs:
  disabled: true
telemetry:
  logging:
    level: error
%s`, filepath.Join(dir, "accounts.db"), filepath.Join(dir, "models.json"), filepath.Join(dir, "files"), extra)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAccountsLifecycle(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, cfgPath, "accounts", "add", "--email", "a@example.com", "--token", "tok", "--type", "paid")
	require.NoError(t, err)
	assert.Contains(t, out, "(a@example.com) saved, enabled=true")

	_, err = execute(t, cfgPath, "accounts", "add", "--email", "b@example.com", "--cookie", "fe_refresh_1=r")
	require.NoError(t, err)

	out, err = execute(t, cfgPath, "accounts", "list", "-o", "json")
	require.NoError(t, err)
	var page struct {
		Total int `json:"total"`
		Items []struct {
			ID      int64  `json:"id"`
			Account string `json:"account"`
			Enabled bool   `json:"enable"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.NotContains(t, out, `"tok"`, "secrets are not printed")

	out, err = execute(t, cfgPath, "accounts", "list", "-o", "csv", "--search", "b@")
	require.NoError(t, err)
	assert.Contains(t, out, "ID,ACCOUNT,TYPE,ENABLED,COUNT,TOKEN_EXPIRES")
	assert.Contains(t, out, "b@example.com,-,false,0,-")

	id := strconv.FormatInt(page.Items[0].ID, 10)
	out, err = execute(t, cfgPath, "accounts", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	out, err = execute(t, cfgPath, "accounts", "list", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 1, page.Total)

	_, err = execute(t, cfgPath, "accounts", "delete", id)
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestAccountsArgumentErrors(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, err := execute(t, cfgPath, "accounts", "delete", "abc")
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))

	_, err = execute(t, cfgPath, "accounts", "refresh")
	assert.Error(t, err, "refresh needs ids or --all")

	_, err = execute(t, cfgPath, "accounts", "refresh", "--all", "1")
	assert.Error(t, err)

	_, err = execute(t, cfgPath, "accounts", "add")
	assert.Error(t, err, "email is required")

	_, err = execute(t, cfgPath, "accounts", "list", "-o", "xml")
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestAccountsRefreshAllWithoutAccounts(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, cfgPath, "accounts", "refresh", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Refreshed 0 of 0 accounts, 0 failed")
}

func TestRunDryRun(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, cfgPath, "run", "--dry-run", "--listen", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, "completion:\n  max_attempts: -1\n")

	_, err := execute(t, cfgPath, "run", "--dry-run")
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestCacheRefresh(t *testing.T) {
	t.Run("no mirror", func(t *testing.T) {
		_, err := execute(t, writeConfig(t, ""), "cache", "refresh")
		assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
	})

	t.Run("redis mirror", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		cfgPath := writeConfig(t, "")
		cfg, err := os.ReadFile(cfgPath)
		require.NoError(t, err)
		cfg = bytes.Replace(cfg, []byte("backend: none"),
			[]byte(fmt.Sprintf("backend: redis\n  redis:\n    host: %q\n    port: %d", mr.Host(), port)), 1)
		require.NoError(t, os.WriteFile(cfgPath, cfg, 0o644))

		_, err = execute(t, cfgPath, "accounts", "add", "--email", "r@example.com", "--token", "t")
		require.NoError(t, err)

		out, err := execute(t, cfgPath, "cache", "refresh")
		require.NoError(t, err)
		assert.Contains(t, out, "Cache refreshed")
		assert.NotEmpty(t, mr.Keys(), "mirror was populated")

		out, err = execute(t, cfgPath, "cache", "refresh", "--reset-counts")
		require.NoError(t, err)
		assert.Contains(t, out, "Reset usage counters of 0 accounts", "fresh accounts have nothing to reset")
	})
}

func TestModelsRefreshWithoutAccounts(t *testing.T) {
	_, err := execute(t, writeConfig(t, ""), "models", "refresh")
	assert.ErrorIs(t, err, accounts.ErrNoAvailableAccount)
}
