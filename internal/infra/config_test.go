package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
)

const sampleConfig = `
app:
  name: "stock-sim"
  version: "1.0.0"

market:
  symbol: "VSTAR"
  name: "Venture Star Holdings"
  currency: "coin"
  initial_price: 1200.00
  open_hour: 9
  close_hour: 23
  day_clamp_ratio: 0.5
  tick_interval_ms: 120000
  history_days: 30

trade:
  holding_cap: 100000
  freeze_cost_per_minute: 1000
  min_freeze_minutes: 5
  max_freeze_minutes: 1440
  demand_fallback: true

storage:
  path: "data/stocksim.db"

stream:
  listen_addr: "localhost:8089"

logging:
  level: "info"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Market.Symbol != "VSTAR" {
		t.Errorf("symbol = %q", cfg.Market.Symbol)
	}
	if !cfg.Market.InitialPrice.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("initial price = %s, want 1200", cfg.Market.InitialPrice)
	}
	if !cfg.Trade.FreezeCostPerMin.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("freeze cost = %s, want 1000", cfg.Trade.FreezeCostPerMin)
	}
	if cfg.Trade.HoldingCap != 100000 {
		t.Errorf("holding cap = %d", cfg.Trade.HoldingCap)
	}
	if !cfg.Trade.DemandFallback {
		t.Error("demand_fallback should parse as true")
	}
	if cfg.Stream.ListenAddr != "localhost:8089" {
		t.Errorf("stream addr = %q", cfg.Stream.ListenAddr)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STOCKSIM_DB_PATH", "/tmp/override.db")
	t.Setenv("STOCKSIM_FORCED_STATUS", "closed")
	t.Setenv("STOCKSIM_STREAM_ADDR", "localhost:9999")
	t.Setenv("STOCKSIM_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("db path = %q", cfg.Storage.Path)
	}
	if cfg.Market.ForcedStatus != "closed" {
		t.Errorf("forced status = %q", cfg.Market.ForcedStatus)
	}
	if cfg.Stream.ListenAddr != "localhost:9999" {
		t.Errorf("stream addr = %q", cfg.Stream.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, sampleConfig))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty symbol", func(c *Config) { c.Market.Symbol = "" }, "market.symbol"},
		{"zero price", func(c *Config) { c.Market.InitialPrice = decimal.Zero }, "market.initial_price"},
		{"negative price", func(c *Config) { c.Market.InitialPrice = decimal.NewFromInt(-1) }, "market.initial_price"},
		{"inverted window", func(c *Config) { c.Market.OpenHour = 23; c.Market.CloseHour = 9 }, "market.open_hour"},
		{"bad forced status", func(c *Config) { c.Market.ForcedStatus = "frozen" }, "market.forced_status"},
		{"clamp ratio too high", func(c *Config) { c.Market.DayClampRatio = 1.5 }, "market.day_clamp_ratio"},
		{"zero clamp ratio", func(c *Config) { c.Market.DayClampRatio = 0 }, "market.day_clamp_ratio"},
		{"zero tick interval", func(c *Config) { c.Market.TickIntervalMS = 0 }, "market.tick_interval_ms"},
		{"zero history", func(c *Config) { c.Market.HistoryDays = 0 }, "market.history_days"},
		{"min above max", func(c *Config) { c.Trade.MinFreezeMinutes = 2000 }, "trade.min_freeze_minutes"},
		{"free freezing", func(c *Config) { c.Trade.FreezeCostPerMin = decimal.Zero }, "trade.freeze_cost_per_minute"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want a ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}

	// maxFreeze=0 relaxes the freeze-related checks entirely.
	cfg := valid()
	cfg.Trade.MaxFreezeMinutes = 0
	cfg.Trade.FreezeCostPerMin = decimal.Zero
	if err := cfg.Validate(); err != nil {
		t.Errorf("maxFreeze=0 config should validate: %v", err)
	}
}
