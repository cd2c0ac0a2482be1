package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"scalp_engine/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
)

// плоские переменные окружения, которые исторически понимает бот
var legacyEnv = map[string]string{
	"binance.api_key":           "BINANCE_API_KEY",
	"binance.api_secret":        "BINANCE_API_SECRET",
	"binance.mode":              "MODE",
	"binance.use_testnet":       "USE_TESTNET",
	"trading.dry_run":           "DRY_RUN",
	"trading.top_n":             "TOP_N",
	"trading.max_positions":     "MAX_POSITIONS",
	"trading.capital_per_trade": "CAPITAL_PER_TRADE",
	"trading.leverage":          "LEVERAGE",
	"db_dsn":                    "DATABASE_DSN",
	"telegram.token":            "TELEGRAM_TOKEN",
	"telegram.chat_id":          "TELEGRAM_CHAT_ID",
}

// Config ...
type Config struct {
	Binance struct {
		APIKey             string        `mapstructure:"api_key"`
		APISecret          string        `mapstructure:"api_secret"`
		Mode               string        `mapstructure:"mode"` // SPOT | FUTURES
		UseTestnet         bool          `mapstructure:"use_testnet"`
		RestURL            string        `mapstructure:"rest_url"`
		WSURL              string        `mapstructure:"ws_url"`
		RecvWindow         int           `mapstructure:"recv_window"`
		RateLimitPerSec    float64       `mapstructure:"rate_limit_per_sec"`
		RateBurst          int           `mapstructure:"rate_burst"`
		HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
		ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
		UnsupportedBackoff time.Duration `mapstructure:"unsupported_backoff"`
		KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval"`
		SymbolsTTL         time.Duration `mapstructure:"symbols_ttl"`
	} `mapstructure:"binance"`

	Trading struct {
		TopN                int           `mapstructure:"top_n"`
		MaxPositions        int           `mapstructure:"max_positions"`
		CapitalPerTrade     float64       `mapstructure:"capital_per_trade"` // доля банкролла на сделку
		Leverage            int           `mapstructure:"leverage"`
		Cooldown            time.Duration `mapstructure:"cooldown"`
		StartingBankroll    float64       `mapstructure:"starting_bankroll"`
		QuoteAsset          string        `mapstructure:"quote_asset"`
		DryRun              bool          `mapstructure:"dry_run"`
		LossStreakRetention time.Duration `mapstructure:"loss_streak_retention"`
		QueueSize           int           `mapstructure:"queue_size"` // очередь событий на инструмент
	} `mapstructure:"trading"`

	// пороги допуска инструмента (все — доли, не проценты)
	Eligibility struct {
		MinVolumeUSDT         float64 `mapstructure:"min_volume_usdt"`
		MinFuturesVolumeUSDT  float64 `mapstructure:"min_futures_volume_usdt"`
		MaxSpreadPercent      float64 `mapstructure:"max_spread_percent"`
		MinVolatilityPercent  float64 `mapstructure:"min_volatility_percent"`
		MinDailyChangePercent float64 `mapstructure:"min_daily_change_percent"`
	} `mapstructure:"eligibility"`

	Strategy struct {
		Name               string  `mapstructure:"name"`
		FastInterval       string  `mapstructure:"fast_interval"`
		SlowInterval       string  `mapstructure:"slow_interval"`
		EMAFast            int     `mapstructure:"ema_fast"`
		EMASlow            int     `mapstructure:"ema_slow"`
		T3Period           int     `mapstructure:"t3_period"`
		ATRPeriod          int     `mapstructure:"atr_period"`
		BufferSize         int     `mapstructure:"buffer_size"`
		PullbackCandles    int     `mapstructure:"pullback_candles"`
		DonchianPeriod     int     `mapstructure:"donchian_period"`
		MinPullbackPercent float64 `mapstructure:"min_pullback_percent"`
		VolumeRatio        float64 `mapstructure:"volume_ratio"`
		TakeProfitPercent  float64 `mapstructure:"take_profit_percent"`
		StopLossPercent    float64 `mapstructure:"stop_loss_percent"`
	} `mapstructure:"strategy"`

	Schedule struct {
		RankRefreshInterval   time.Duration `mapstructure:"rank_refresh_interval"`
		ReconcileInterval     time.Duration `mapstructure:"reconcile_interval"`
		PollInterval          time.Duration `mapstructure:"poll_interval"`
		PollSymbols           int           `mapstructure:"poll_symbols"`
		StreakCleanupInterval time.Duration `mapstructure:"streak_cleanup_interval"`
	} `mapstructure:"schedule"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	DB string `mapstructure:"db_dsn"`

	Health struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"health"`

	Tracing struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Log struct {
		Level string `mapstructure:"level"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.api_secret", "")
	v.SetDefault("binance.mode", string(models.ModeSpot))
	v.SetDefault("binance.use_testnet", false)
	v.SetDefault("binance.rest_url", "")
	v.SetDefault("binance.ws_url", "")
	v.SetDefault("binance.recv_window", 5000)
	v.SetDefault("binance.rate_limit_per_sec", 10.0)
	v.SetDefault("binance.rate_burst", 20)
	v.SetDefault("binance.http_timeout", "10s")
	v.SetDefault("binance.reconnect_delay", "5s")
	v.SetDefault("binance.unsupported_backoff", "60s")
	v.SetDefault("binance.keepalive_interval", "30m")
	v.SetDefault("binance.symbols_ttl", "1h")

	v.SetDefault("trading.top_n", 15)
	v.SetDefault("trading.max_positions", 5)
	v.SetDefault("trading.capital_per_trade", 0.10)
	v.SetDefault("trading.leverage", 1)
	v.SetDefault("trading.cooldown", "10m")
	v.SetDefault("trading.starting_bankroll", 100.0)
	v.SetDefault("trading.quote_asset", "USDT")
	v.SetDefault("trading.dry_run", false)
	v.SetDefault("trading.loss_streak_retention", "24h")
	v.SetDefault("trading.queue_size", 256)

	v.SetDefault("eligibility.min_volume_usdt", 10_000_000.0)
	v.SetDefault("eligibility.min_futures_volume_usdt", 200_000_000.0)
	v.SetDefault("eligibility.max_spread_percent", 0.001)
	v.SetDefault("eligibility.min_volatility_percent", 0.002)
	v.SetDefault("eligibility.min_daily_change_percent", 0.015)

	v.SetDefault("strategy.name", "basic_pullback")
	v.SetDefault("strategy.fast_interval", string(models.Interval1m))
	v.SetDefault("strategy.slow_interval", string(models.Interval5m))
	v.SetDefault("strategy.ema_fast", 9)
	v.SetDefault("strategy.ema_slow", 21)
	v.SetDefault("strategy.t3_period", 8)
	v.SetDefault("strategy.atr_period", 14)
	v.SetDefault("strategy.buffer_size", 100)
	v.SetDefault("strategy.pullback_candles", 5)
	v.SetDefault("strategy.donchian_period", 20)
	v.SetDefault("strategy.min_pullback_percent", 1.2)
	v.SetDefault("strategy.volume_ratio", 0.8)
	v.SetDefault("strategy.take_profit_percent", 0.03)
	v.SetDefault("strategy.stop_loss_percent", 0.015)

	v.SetDefault("schedule.rank_refresh_interval", "15m")
	v.SetDefault("schedule.reconcile_interval", "5m")
	v.SetDefault("schedule.poll_interval", "60s")
	v.SetDefault("schedule.poll_symbols", 5)
	v.SetDefault("schedule.streak_cleanup_interval", "1h")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("db_dsn", "")
	v.SetDefault("health.addr", ":8080")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "logs")
}

// NewConfig: .env -> configs/$CONFIG_FILE (yaml, необязателен) -> переменные окружения.
func NewConfig() (*Config, error) {
	// .env может и не быть — это нормально
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	path := configFileName
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, configFileName)
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	mode, err := models.ParseMode(cfg.Binance.Mode)
	if err != nil {
		return nil, err
	}
	cfg.Binance.Mode = string(mode)
	cfg.setupEndpoints()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupEndpoints подставляет боевые/тестовые адреса, если они не заданы явно.
func (c *Config) setupEndpoints() {
	futures := c.TradingMode().IsFutures()
	if c.Binance.RestURL == "" {
		switch {
		case futures && c.Binance.UseTestnet:
			c.Binance.RestURL = "https://testnet.binancefuture.com"
		case futures:
			c.Binance.RestURL = "https://fapi.binance.com"
		case c.Binance.UseTestnet:
			c.Binance.RestURL = "https://testnet.binance.vision"
		default:
			c.Binance.RestURL = "https://api.binance.com"
		}
	}
	if c.Binance.WSURL == "" {
		switch {
		case futures && c.Binance.UseTestnet:
			c.Binance.WSURL = "wss://stream.binancefuture.com"
		case futures:
			c.Binance.WSURL = "wss://fstream.binance.com"
		case c.Binance.UseTestnet:
			c.Binance.WSURL = "wss://testnet.binance.vision"
		default:
			c.Binance.WSURL = "wss://stream.binance.com:9443"
		}
	}
}

// Validate — фатальные ошибки старта: до торговли дело не доходит.
func (c *Config) Validate() error {
	var errs []error
	if !c.Trading.DryRun && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		errs = append(errs, errors.New("binance api key/secret are required outside dry-run"))
	}
	if c.Strategy.EMAFast <= 0 || c.Strategy.EMAFast >= c.Strategy.EMASlow {
		errs = append(errs, fmt.Errorf("strategy.ema_fast (%d) must be positive and below ema_slow (%d)",
			c.Strategy.EMAFast, c.Strategy.EMASlow))
	}
	if c.Strategy.BufferSize < c.Strategy.EMASlow {
		errs = append(errs, fmt.Errorf("strategy.buffer_size (%d) must hold at least ema_slow (%d) candles",
			c.Strategy.BufferSize, c.Strategy.EMASlow))
	}
	if c.Trading.MaxPositions <= 0 {
		errs = append(errs, errors.New("trading.max_positions must be positive"))
	}
	if c.Trading.CapitalPerTrade <= 0 || c.Trading.CapitalPerTrade > 1 {
		errs = append(errs, fmt.Errorf("trading.capital_per_trade must be in (0, 1], got %g", c.Trading.CapitalPerTrade))
	}
	if c.Trading.Leverage < 1 {
		errs = append(errs, errors.New("trading.leverage must be >= 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) TradingMode() models.Mode {
	m, _ := models.ParseMode(c.Binance.Mode)
	return m
}

func (c *Config) FastInterval() models.Interval { return models.Interval(c.Strategy.FastInterval) }
func (c *Config) SlowInterval() models.Interval { return models.Interval(c.Strategy.SlowInterval) }

// MinVolume — порог суточного оборота для текущего режима.
func (c *Config) MinVolume() float64 {
	if c.TradingMode().IsFutures() {
		return c.Eligibility.MinFuturesVolumeUSDT
	}
	return c.Eligibility.MinVolumeUSDT
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
