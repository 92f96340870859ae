package engine

import (
	"context"
	"log/slog"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"
)

// MaturedProcessor is the settlement queue hook invoked after each open tick.
type MaturedProcessor interface {
	ProcessMatured(now time.Time) error
}

// statsLogInterval is how often the scheduler reports engine counters.
const statsLogInterval = 10 * time.Minute

// Scheduler drives the engine at a fixed cadence. Ticks execute sequentially
// in one goroutine, so a tick can never overlap itself; when a tick overruns
// the interval, the ticker drops the missed beats instead of bursting.
type Scheduler struct {
	interval time.Duration
	clock    domain.Clock
	market   *Market
	queue    MaturedProcessor
}

func NewScheduler(interval time.Duration, clock domain.Clock, market *Market, queue MaturedProcessor) *Scheduler {
	return &Scheduler{
		interval: interval,
		clock:    clock,
		market:   market,
		queue:    queue,
	}
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	stats := time.NewTicker(statsLogInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping...")
			return
		case <-ticker.C:
			s.step(s.clock.Now())
		case <-stats.C:
			s.logStats()
		}
	}
}

// logStats reports the engine counters accumulated since startup.
func (s *Scheduler) logStats() {
	snap := infra.GlobalMetrics.Snapshot()
	attrs := make([]any, 0, len(snap))
	for k, v := range snap {
		attrs = append(attrs, slog.Uint64(k, v))
	}
	slog.Info("engine stats", attrs...)
}

// step runs one tick plus settlement, absorbing panics so a defective tick is
// skipped rather than taking the loop down.
func (s *Scheduler) step(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panicked, skipped", slog.Any("panic", r))
			infra.GlobalMetrics.RecordTickSkipped()
		}
	}()

	s.market.Tick(now)

	if s.queue != nil && s.market.IsOpen(now) {
		if err := s.queue.ProcessMatured(now); err != nil {
			slog.Error("settlement pass failed", slog.Any("error", err))
			infra.GlobalMetrics.RecordError()
		}
	}
}
