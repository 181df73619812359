package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
copy:
  target_wallet: "0xabc"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", cfg.Copy.TargetWallet)
	assert.Equal(t, 5.0, cfg.Copy.BudgetUSDC)
	assert.Equal(t, 5*time.Second, cfg.Window())
	assert.Equal(t, 60*time.Second, cfg.PersistInterval())
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, "wss://ws-live-data.polymarket.com", cfg.API.FeedURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Copy.DryRun)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
copy:
  target_wallet: "0xabc"
  budget_usdc: 12.5
  window_ms: 2500
  dry_run: true
  copy_sells: true
storage:
  dsn: "custom.db"
  snapshot_path: "state.json"
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.Copy.BudgetUSDC)
	assert.Equal(t, 2500*time.Millisecond, cfg.Window())
	assert.True(t, cfg.Copy.DryRun)
	assert.True(t, cfg.Copy.CopySells)
	assert.Equal(t, "custom.db", cfg.Storage.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COPY_TARGET_WALLET", "0xFromEnv")
	t.Setenv("COPY_BUDGET_USDC", "7.5")
	t.Setenv("COPY_DRY_RUN", "true")

	path := writeConfig(t, `
copy:
  target_wallet: "0xFromYaml"
  budget_usdc: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xFromEnv", cfg.Copy.TargetWallet)
	assert.Equal(t, 7.5, cfg.Copy.BudgetUSDC)
	assert.True(t, cfg.Copy.DryRun)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnvBudgetIgnored(t *testing.T) {
	t.Setenv("COPY_BUDGET_USDC", "-4")

	path := writeConfig(t, `
copy:
  target_wallet: "0xabc"
  budget_usdc: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Copy.BudgetUSDC)
}
