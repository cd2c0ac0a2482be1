package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp_engine/internal/models"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	v := newViper()
	v.Set("trading.dry_run", true)

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Trading.TopN)
	assert.Equal(t, 5, cfg.Trading.MaxPositions)
	assert.InDelta(t, 0.10, cfg.Trading.CapitalPerTrade, 1e-12)
	assert.Equal(t, 10*time.Minute, cfg.Trading.Cooldown)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.RankRefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.ReconcileInterval)
	assert.Equal(t, 9, cfg.Strategy.EMAFast)
	assert.Equal(t, 21, cfg.Strategy.EMASlow)
	assert.Equal(t, models.ModeSpot, cfg.TradingMode())
	assert.Equal(t, "https://api.binance.com", cfg.Binance.RestURL)
	assert.Equal(t, "wss://stream.binance.com:9443", cfg.Binance.WSURL)
	assert.InDelta(t, 10_000_000, cfg.MinVolume(), 1e-6)
}

func TestFuturesTestnetEndpoints(t *testing.T) {
	v := newViper()
	v.Set("trading.dry_run", true)
	v.Set("binance.mode", "futures")
	v.Set("binance.use_testnet", true)

	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFutures, cfg.TradingMode())
	assert.Equal(t, "https://testnet.binancefuture.com", cfg.Binance.RestURL)
	assert.Equal(t, "wss://stream.binancefuture.com", cfg.Binance.WSURL)
	assert.InDelta(t, 200_000_000, cfg.MinVolume(), 1e-6)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_MAX_POSITIONS", "7")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("STRATEGY_MIN_PULLBACK_PERCENT", "2.5")

	cfg, err := load(newViper())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Trading.MaxPositions)
	assert.True(t, cfg.Trading.DryRun)
	assert.InDelta(t, 2.5, cfg.Strategy.MinPullbackPercent, 1e-12)
}

func TestMissingCredentialsIsFatal(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("DRY_RUN", "")

	_, err := load(newViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key/secret")
}

func TestInvalidEMAPeriods(t *testing.T) {
	v := newViper()
	v.Set("trading.dry_run", true)
	v.Set("strategy.ema_fast", 30)

	_, err := load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ema_fast")
}

func TestInvalidMode(t *testing.T) {
	v := newViper()
	v.Set("trading.dry_run", true)
	v.Set("binance.mode", "margin")

	_, err := load(v)
	require.Error(t, err)
}

func TestNewConfigReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trading:
  dry_run: true
  top_n: 3
  cooldown: 90s
strategy:
  take_profit_percent: 0.05
`), 0o600))
	t.Setenv(configFilePathENV, path)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Trading.TopN)
	assert.Equal(t, 90*time.Second, cfg.Trading.Cooldown)
	assert.InDelta(t, 0.05, cfg.Strategy.TakeProfitPercent, 1e-12)
}
