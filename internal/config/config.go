// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Broker describes the brokerage connectivity parameters the bot expects.
// Credentials are filled from the environment, never from the YAML file.
type Broker struct {
	BaseURL    string `yaml:"base_url"`
	WSURL      string `yaml:"ws_url"`
	AppKey     string `yaml:"-"`
	AppSecret  string `yaml:"-"`
	AccountNo  string `yaml:"-"`
	MarketType string `yaml:"market_type"`
}

// Market bounds the trading session the supervisor gates on.
type Market struct {
	Open     string   `yaml:"open"`
	Close    string   `yaml:"close"`
	Holidays []string `yaml:"holidays"`
}

// Scalping groups the tunable knobs of the live entry/exit engine.
type Scalping struct {
	TickWindow           int     `yaml:"tick_window"`
	PriceChangeThreshold float64 `yaml:"price_change_threshold"`
	VolumeMultiplier     float64 `yaml:"volume_multiplier"`
	StopLoss             float64 `yaml:"stop_loss"`
	TakeProfit           float64 `yaml:"take_profit"`
	HoldTimeSecs         int     `yaml:"hold_time_secs"`
	PositionSize         float64 `yaml:"position_size"`
}

// Screening configures the periodic universe scan.
type Screening struct {
	CandidateLimit    int `yaml:"candidate_limit"`
	UniverseSize      int `yaml:"universe_size"`
	ActiveSymbols     int `yaml:"active_symbols"`
	MinBuyVotes       int `yaml:"min_buy_votes"`
	StrategyTimeoutMs int `yaml:"strategy_timeout_ms"`
	RescanWindowStart string `yaml:"rescan_window_start"`
	RescanWindowEnd   string `yaml:"rescan_window_end"`
	RescanMaxAgeHours int `yaml:"rescan_max_age_hours"`
}

// Execution encodes guard-rails for how much size the executor may take on.
type Execution struct {
	DepositRatio      float64 `yaml:"deposit_ratio"`
	MaxOrderValue     float64 `yaml:"max_order_value"`
	MaxOrdersPerCycle int     `yaml:"max_orders_per_cycle"`
}

// Supervisor tunes the main cycle, buy sweep, connection retries, and watchdog.
type Supervisor struct {
	CycleSecs            int `yaml:"cycle_secs"`
	BuySweepSecs         int `yaml:"buy_sweep_secs"`
	SweepPacingMs        int `yaml:"sweep_pacing_ms"`
	ConnectRetries       int `yaml:"connect_retries"`
	ConnectBackoffSecs   int `yaml:"connect_backoff_secs"`
	WatchdogIntervalMins int `yaml:"watchdog_interval_mins"`
	WatchdogCheckSecs    int `yaml:"watchdog_check_secs"`
}

// Telegram holds notification channel settings; token and chat id come from the environment.
type Telegram struct {
	Token  string `yaml:"-"`
	ChatID string `yaml:"-"`
}

// Storage points at the persistence backends.
type Storage struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Broker     Broker     `yaml:"broker"`
	Market     Market     `yaml:"market"`
	Scalping   Scalping   `yaml:"scalping"`
	Screening  Screening  `yaml:"screening"`
	Execution  Execution  `yaml:"execution"`
	Supervisor Supervisor `yaml:"supervisor"`
	Telegram   Telegram   `yaml:"telegram"`
	Storage    Storage    `yaml:"storage"`
}

// Load reads a YAML file from disk and hydrates a Config struct with defaults applied.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// OverlayEnv fills credential fields from the process environment.
func (c *Config) OverlayEnv() {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		c.Broker.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		c.Broker.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		c.Broker.AccountNo = v
	}
	if v := os.Getenv("KIS_BASE_URL"); v != "" {
		c.Broker.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:00"
	}
	if c.Market.Close == "" {
		c.Market.Close = "15:30"
	}
	if c.Scalping.TickWindow <= 0 {
		c.Scalping.TickWindow = 10
	}
	if c.Scalping.PriceChangeThreshold <= 0 {
		c.Scalping.PriceChangeThreshold = 0.002
	}
	if c.Scalping.VolumeMultiplier <= 0 {
		c.Scalping.VolumeMultiplier = 1.5
	}
	if c.Scalping.StopLoss <= 0 {
		c.Scalping.StopLoss = 0.02
	}
	if c.Scalping.TakeProfit <= 0 {
		c.Scalping.TakeProfit = 0.015
	}
	if c.Scalping.HoldTimeSecs <= 0 {
		c.Scalping.HoldTimeSecs = 60
	}
	if c.Scalping.PositionSize <= 0 {
		c.Scalping.PositionSize = 1_000_000
	}
	if c.Screening.CandidateLimit <= 0 {
		c.Screening.CandidateLimit = 200
	}
	if c.Screening.UniverseSize <= 0 {
		c.Screening.UniverseSize = 100
	}
	if c.Screening.ActiveSymbols <= 0 {
		c.Screening.ActiveSymbols = 50
	}
	if c.Screening.MinBuyVotes <= 0 {
		c.Screening.MinBuyVotes = 2
	}
	if c.Screening.StrategyTimeoutMs <= 0 {
		c.Screening.StrategyTimeoutMs = 2000
	}
	if c.Screening.RescanWindowStart == "" {
		c.Screening.RescanWindowStart = "08:30"
	}
	if c.Screening.RescanWindowEnd == "" {
		c.Screening.RescanWindowEnd = "08:40"
	}
	if c.Screening.RescanMaxAgeHours <= 0 {
		c.Screening.RescanMaxAgeHours = 6
	}
	if c.Execution.DepositRatio <= 0 {
		c.Execution.DepositRatio = 0.5
	}
	if c.Execution.MaxOrderValue <= 0 {
		c.Execution.MaxOrderValue = 5_000_000
	}
	if c.Execution.MaxOrdersPerCycle <= 0 {
		c.Execution.MaxOrdersPerCycle = 3
	}
	if c.Supervisor.CycleSecs <= 0 {
		c.Supervisor.CycleSecs = 5
	}
	if c.Supervisor.BuySweepSecs <= 0 {
		c.Supervisor.BuySweepSecs = 120
	}
	if c.Supervisor.SweepPacingMs <= 0 {
		c.Supervisor.SweepPacingMs = 200
	}
	if c.Supervisor.ConnectRetries <= 0 {
		c.Supervisor.ConnectRetries = 3
	}
	if c.Supervisor.ConnectBackoffSecs <= 0 {
		c.Supervisor.ConnectBackoffSecs = 2
	}
	if c.Supervisor.WatchdogIntervalMins <= 0 {
		c.Supervisor.WatchdogIntervalMins = 30
	}
	if c.Supervisor.WatchdogCheckSecs <= 0 {
		c.Supervisor.WatchdogCheckSecs = 60
	}
}

// HoldTime returns the configured maximum holding duration.
func (s Scalping) HoldTime() time.Duration {
	return time.Duration(s.HoldTimeSecs) * time.Second
}

// StrategyTimeout returns the per-call signal timeout.
func (s Screening) StrategyTimeout() time.Duration {
	return time.Duration(s.StrategyTimeoutMs) * time.Millisecond
}
