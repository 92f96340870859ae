package app

import (
	"log/slog"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/engine"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"
	"stock_sim/internal/infra/stream"
	"stock_sim/internal/pattern"
	"stock_sim/internal/service"
	"stock_sim/internal/trade"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Market    *engine.Market
	Queue     *trade.Queue
	Service   *service.MarketService
	Scheduler *engine.Scheduler
	Hub       *stream.Hub
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, engine wiring).
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping market simulator...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "data/stocksim.db"
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", dbPath))

	// 4. Wire the engine
	clock := engine.SystemClock{}
	rng := engine.NewRand()

	macro := engine.NewMacroController(store, rng)
	selector := pattern.NewSelector(rng)
	mclock := engine.NewMarketClock(store, cfg.Market.ForcedStatus, cfg.Market.OpenHour, cfg.Market.CloseHour)

	b.Hub = stream.NewHub()
	b.Market = engine.NewMarket(cfg, store, rng, macro, selector, mclock, func(p domain.PricePoint) {
		b.Hub.Broadcast(p)
	})
	if err := b.Market.Init(clock.Now()); err != nil {
		return err
	}
	slog.Info("✅ Price engine ready", slog.String("price", b.Market.CurrentPrice().String()))

	// 5. Settlement queue over the default ledger adapters
	ledger := storage.NewCashLedger(store)
	var demand domain.DemandAccount
	if cfg.Trade.DemandFallback {
		demand = storage.NewDemandLedger(store)
	}
	b.Queue = trade.NewQueue(store, ledger, demand, cfg)

	// 6. Command facade + tick driver
	b.Service = service.NewMarketService(cfg, clock, b.Market, b.Queue, store)
	interval := time.Duration(cfg.Market.TickIntervalMS) * time.Millisecond
	b.Scheduler = engine.NewScheduler(interval, clock, b.Market, b.Queue)

	return nil
}
