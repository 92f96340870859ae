package engine

import (
	"path/filepath"
	"testing"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"
	"stock_sim/internal/pattern"

	"github.com/shopspring/decimal"
)

// aMonday is a weekday well inside the default trading window.
var aMonday = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() *infra.Config {
	cfg := &infra.Config{}
	cfg.Market.Symbol = "VSTAR"
	cfg.Market.Currency = "coin"
	cfg.Market.InitialPrice = decimal.NewFromInt(1200)
	cfg.Market.OpenHour = 9
	cfg.Market.CloseHour = 23
	cfg.Market.DayClampRatio = 0.5
	cfg.Market.TickIntervalMS = 120000
	cfg.Market.HistoryDays = 30
	return cfg
}

func setupStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

// stubRand replays a fixed script of draws.
type stubRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (s *stubRand) Float64() float64 {
	v := s.floats[s.fi%len(s.floats)]
	s.fi++
	return v
}

func (s *stubRand) Intn(n int) int {
	v := s.ints[s.ii%len(s.ints)]
	s.ii++
	return v % n
}

func newStubRand() *stubRand {
	return &stubRand{floats: []float64{0.5}, ints: []int{0}}
}

func newTestMarket(t *testing.T, cfg *infra.Config, store *storage.Storage, rng domain.Rand, now time.Time) *Market {
	t.Helper()
	macro := NewMacroController(store, rng)
	selector := pattern.NewSelector(rng)
	mclock := NewMarketClock(store, cfg.Market.ForcedStatus, cfg.Market.OpenHour, cfg.Market.CloseHour)
	m := NewMarket(cfg, store, rng, macro, selector, mclock, nil)
	if err := m.Init(now); err != nil {
		t.Fatalf("market init: %v", err)
	}
	return m
}
