// Package config loads scanner configuration from config.yaml and
// environment variables, with defaults for every tunable.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Cooldown CooldownConfig `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Report   ReportConfig   `mapstructure:"report"`
	LogLevel string         `mapstructure:"log_level"`
}

// ScanConfig controls the cycle cadence and the symbol universe.
type ScanConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BaseTimeframe string        `mapstructure:"base_timeframe"`
	SymbolsFile   string        `mapstructure:"symbols_file"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	DebugSymbol   string        `mapstructure:"debug_symbol"`
}

// ExchangeConfig is the Bybit REST + WebSocket endpoint configuration.
type ExchangeConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	WSURL      string        `mapstructure:"ws_url"`
	Category   string        `mapstructure:"category"`
	Timeout    time.Duration `mapstructure:"timeout"`
	LiveFeed   bool          `mapstructure:"live_feed"`
	FeedMaxBar int           `mapstructure:"feed_max_bars"`
}

// StrategyConfig carries every threshold of the short-signal strategy.
type StrategyConfig struct {
	BoomPeriodHours     int     `mapstructure:"boom_period_hours"`
	BoomPct             float64 `mapstructure:"boom_pct"`
	SlowdownPeriodHours int     `mapstructure:"slowdown_period_hours"`
	SlowdownPct         float64 `mapstructure:"slowdown_pct"`

	EMATimeframe string `mapstructure:"ema_timeframe"`
	EMAFast      int    `mapstructure:"ema_fast"`
	EMASlow      int    `mapstructure:"ema_slow"`

	RSITimeframe string  `mapstructure:"rsi_timeframe"`
	RSIPeriod    int     `mapstructure:"rsi_period"`
	RSIEntryMin  float64 `mapstructure:"rsi_entry_min"`
	RSIEntryMax  float64 `mapstructure:"rsi_entry_max"`

	ADXFilterEnabled bool    `mapstructure:"adx_filter_enabled"`
	ADXTimeframe     string  `mapstructure:"adx_timeframe"`
	ADXPeriod        int     `mapstructure:"adx_period"`
	ADXMinLevel      float64 `mapstructure:"adx_min_level"`

	ATRTimeframe string `mapstructure:"atr_timeframe"`
	ATRPeriod    int    `mapstructure:"atr_period"`

	StructuralTrendDays   int     `mapstructure:"structural_trend_days"`
	StructuralTrendRetPct float64 `mapstructure:"structural_trend_ret_pct"`

	BTCSymbol            string `mapstructure:"btc_symbol"`
	BTCFastFilterEnabled bool   `mapstructure:"btc_fast_filter_enabled"`
	BTCFastTimeframe     string `mapstructure:"btc_fast_timeframe"`
	BTCFastEMAPeriod     int    `mapstructure:"btc_fast_ema_period"`
	BTCSlowFilterEnabled bool   `mapstructure:"btc_slow_filter_enabled"`
	BTCSlowTimeframe     string `mapstructure:"btc_slow_timeframe"`
	BTCSlowEMAPeriod     int    `mapstructure:"btc_slow_ema_period"`

	SLATRMult        float64 `mapstructure:"sl_atr_mult"`
	TPATRMult        float64 `mapstructure:"tp_atr_mult"`
	PartialTPATRMult float64 `mapstructure:"partial_tp_atr_mult"`
	TrailATRMult     float64 `mapstructure:"trail_atr_mult"`
	MinStopDistPct   float64 `mapstructure:"min_stop_dist_pct"`
}

// CooldownConfig selects and configures the cooldown store backend.
type CooldownConfig struct {
	Duration      time.Duration `mapstructure:"duration"`
	Backend       string        `mapstructure:"backend"` // "sqlite" or "redis"
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// TelegramConfig is the primary alert channel. Disabled when the token is empty.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// WebhookConfig is an optional secondary alert channel.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// MetricsConfig is the Prometheus /metrics + /healthz listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig toggles which champion filters appear on alert cards.
type ReportConfig struct {
	ShowEMATrend   bool `mapstructure:"show_ema_trend"`
	ShowRSI        bool `mapstructure:"show_rsi"`
	ShowADX        bool `mapstructure:"show_adx"`
	ShowStructural bool `mapstructure:"show_structural"`
	ShowBTCFast    bool `mapstructure:"show_btc_fast"`
	ShowBTCSlow    bool `mapstructure:"show_btc_slow"`
}

// Load reads config.yaml (config.local.yaml takes precedence) and the
// environment, applies defaults, and validates the result.
func Load() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config.local")
	if err := viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("scan.interval", time.Minute)
	viper.SetDefault("scan.base_timeframe", "5m")
	viper.SetDefault("scan.symbols_file", "symbols.txt")
	viper.SetDefault("scan.max_workers", 8)
	viper.SetDefault("scan.debug_symbol", "")

	viper.SetDefault("exchange.base_url", "https://api.bybit.com")
	viper.SetDefault("exchange.ws_url", "wss://stream.bybit.com/v5/public/linear")
	viper.SetDefault("exchange.category", "linear")
	viper.SetDefault("exchange.timeout", 10*time.Second)
	viper.SetDefault("exchange.live_feed", false)
	viper.SetDefault("exchange.feed_max_bars", 600)

	viper.SetDefault("strategy.boom_period_hours", 24)
	viper.SetDefault("strategy.boom_pct", 0.10)
	viper.SetDefault("strategy.slowdown_period_hours", 4)
	viper.SetDefault("strategy.slowdown_pct", 0.01)

	viper.SetDefault("strategy.ema_timeframe", "4h")
	viper.SetDefault("strategy.ema_fast", 20)
	viper.SetDefault("strategy.ema_slow", 200)

	viper.SetDefault("strategy.rsi_timeframe", "4h")
	viper.SetDefault("strategy.rsi_period", 14)
	viper.SetDefault("strategy.rsi_entry_min", 40.0)
	viper.SetDefault("strategy.rsi_entry_max", 65.0)

	viper.SetDefault("strategy.adx_filter_enabled", false)
	viper.SetDefault("strategy.adx_timeframe", "4h")
	viper.SetDefault("strategy.adx_period", 14)
	viper.SetDefault("strategy.adx_min_level", 20.0)

	viper.SetDefault("strategy.atr_timeframe", "1h")
	viper.SetDefault("strategy.atr_period", 14)

	viper.SetDefault("strategy.structural_trend_days", 30)
	viper.SetDefault("strategy.structural_trend_ret_pct", -0.20)

	viper.SetDefault("strategy.btc_symbol", "BTCUSDT")
	viper.SetDefault("strategy.btc_fast_filter_enabled", true)
	viper.SetDefault("strategy.btc_fast_timeframe", "4h")
	viper.SetDefault("strategy.btc_fast_ema_period", 20)
	viper.SetDefault("strategy.btc_slow_filter_enabled", false)
	viper.SetDefault("strategy.btc_slow_timeframe", "1d")
	viper.SetDefault("strategy.btc_slow_ema_period", 50)

	viper.SetDefault("strategy.sl_atr_mult", 3.0)
	viper.SetDefault("strategy.tp_atr_mult", 3.0)
	viper.SetDefault("strategy.partial_tp_atr_mult", 1.0)
	viper.SetDefault("strategy.trail_atr_mult", 1.5)
	viper.SetDefault("strategy.min_stop_dist_pct", 0.001)

	viper.SetDefault("cooldown.duration", 30*time.Minute)
	viper.SetDefault("cooldown.backend", "sqlite")
	viper.SetDefault("cooldown.sqlite_path", "data/cooldowns.db")
	viper.SetDefault("cooldown.redis_addr", "localhost:6379")
	viper.SetDefault("cooldown.redis_password", "")
	viper.SetDefault("cooldown.redis_db", 0)

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")
	viper.SetDefault("webhook.url", "")

	viper.SetDefault("metrics.addr", ":9090")

	viper.SetDefault("report.show_ema_trend", true)
	viper.SetDefault("report.show_rsi", true)
	viper.SetDefault("report.show_adx", true)
	viper.SetDefault("report.show_structural", true)
	viper.SetDefault("report.show_btc_fast", true)
	viper.SetDefault("report.show_btc_slow", false)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Scan.Interval <= 0 {
		return fmt.Errorf("config: scan.interval must be positive, got %s", c.Scan.Interval)
	}
	if c.Scan.MaxWorkers <= 0 {
		return fmt.Errorf("config: scan.max_workers must be positive, got %d", c.Scan.MaxWorkers)
	}
	if c.Strategy.BoomPeriodHours <= 0 || c.Strategy.SlowdownPeriodHours <= 0 {
		return errors.New("config: boom and slowdown lookback hours must be positive")
	}
	if c.Strategy.RSIEntryMin > c.Strategy.RSIEntryMax {
		return fmt.Errorf("config: rsi_entry_min %.1f above rsi_entry_max %.1f",
			c.Strategy.RSIEntryMin, c.Strategy.RSIEntryMax)
	}
	switch c.Cooldown.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown cooldown backend %q", c.Cooldown.Backend)
	}
	if c.Cooldown.Duration <= 0 {
		return fmt.Errorf("config: cooldown.duration must be positive, got %s", c.Cooldown.Duration)
	}
	return nil
}

// LoadSymbols reads the scan universe from a plain text file: one symbol per
// line, blank lines and #-comments ignored.
func LoadSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open symbols file: %w", err)
	}
	defer f.Close()

	var symbols []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := strings.ToUpper(line)
		if seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: read symbols file: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("config: symbols file %s contains no symbols", path)
	}
	return symbols, nil
}
