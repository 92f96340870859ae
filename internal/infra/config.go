package infra

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stock_sim/internal/domain"
)

// Config holds all application settings. Loaded from YAML, then sensitive or
// deployment-specific values are overridden from environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		Symbol         string          `yaml:"symbol"`
		Name           string          `yaml:"name"`
		Currency       string          `yaml:"currency"`
		InitialPrice   decimal.Decimal `yaml:"initial_price"`
		OpenHour       int             `yaml:"open_hour"`
		CloseHour      int             `yaml:"close_hour"`
		ForcedStatus   string          `yaml:"forced_status"` // "", "open", "closed"
		DayClampRatio  float64         `yaml:"day_clamp_ratio"`
		TickIntervalMS int             `yaml:"tick_interval_ms"`
		HistoryDays    int             `yaml:"history_days"`
	} `yaml:"market"`

	Trade struct {
		HoldingCap       uint64          `yaml:"holding_cap"` // 0 = unlimited
		FreezeCostPerMin decimal.Decimal `yaml:"freeze_cost_per_minute"`
		MinFreezeMinutes int             `yaml:"min_freeze_minutes"`
		MaxFreezeMinutes int             `yaml:"max_freeze_minutes"` // 0 = immediate settlement
		DemandFallback   bool            `yaml:"demand_fallback"`
	} `yaml:"trade"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Stream struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"stream"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return &domain.ValidationError{Field: "market.symbol", Err: fmt.Errorf("must not be empty")}
	}
	if !c.Market.InitialPrice.IsPositive() {
		return &domain.ValidationError{Field: "market.initial_price", Err: fmt.Errorf("must be positive, got %s", c.Market.InitialPrice)}
	}
	if c.Market.OpenHour < 0 || c.Market.CloseHour > 24 || c.Market.OpenHour >= c.Market.CloseHour {
		return &domain.ValidationError{Field: "market.open_hour", Err: fmt.Errorf("invalid trading window [%d, %d)", c.Market.OpenHour, c.Market.CloseHour)}
	}
	switch c.Market.ForcedStatus {
	case "", domain.OverrideOpen, domain.OverrideClosed:
	default:
		return &domain.ValidationError{Field: "market.forced_status", Err: fmt.Errorf("unknown status %q", c.Market.ForcedStatus)}
	}
	if c.Market.DayClampRatio <= 0 || c.Market.DayClampRatio > 1 {
		return &domain.ValidationError{Field: "market.day_clamp_ratio", Err: fmt.Errorf("must be in (0,1], got %v", c.Market.DayClampRatio)}
	}
	if c.Market.TickIntervalMS <= 0 {
		return &domain.ValidationError{Field: "market.tick_interval_ms", Err: fmt.Errorf("must be positive")}
	}
	if c.Market.HistoryDays <= 0 {
		return &domain.ValidationError{Field: "market.history_days", Err: fmt.Errorf("must be positive")}
	}
	if c.Trade.MinFreezeMinutes < 0 || c.Trade.MaxFreezeMinutes < 0 {
		return &domain.ValidationError{Field: "trade.min_freeze_minutes", Err: fmt.Errorf("freeze bounds must not be negative")}
	}
	if c.Trade.MaxFreezeMinutes > 0 && c.Trade.MinFreezeMinutes > c.Trade.MaxFreezeMinutes {
		return &domain.ValidationError{Field: "trade.min_freeze_minutes", Err: fmt.Errorf("min %d exceeds max %d", c.Trade.MinFreezeMinutes, c.Trade.MaxFreezeMinutes)}
	}
	if c.Trade.MaxFreezeMinutes > 0 && !c.Trade.FreezeCostPerMin.IsPositive() {
		return &domain.ValidationError{Field: "trade.freeze_cost_per_minute", Err: fmt.Errorf("must be positive when freezing is enabled")}
	}
	return nil
}

// overrideWithEnv overrides settings from environment variables when present.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("STOCKSIM_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if status := os.Getenv("STOCKSIM_FORCED_STATUS"); status != "" {
		cfg.Market.ForcedStatus = status
	}
	if addr := os.Getenv("STOCKSIM_STREAM_ADDR"); addr != "" {
		cfg.Stream.ListenAddr = addr
	}
	if level := os.Getenv("STOCKSIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
