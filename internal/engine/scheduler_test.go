package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"
)

type panickyQueue struct{ calls int }

func (p *panickyQueue) ProcessMatured(now time.Time) error {
	p.calls++
	panic("settlement exploded")
}

type failingQueue struct{ calls int }

func (f *failingQueue) ProcessMatured(now time.Time) error {
	f.calls++
	return errors.New("database locked")
}

func TestScheduler_StepRecoversPanic(t *testing.T) {
	store := setupStore(t)
	m := newTestMarket(t, testConfig(), store, rand.New(rand.NewSource(2)), aMonday)
	q := &panickyQueue{}
	s := NewScheduler(2*time.Minute, SystemClock{}, m, q)

	before := infra.GlobalMetrics.Snapshot()["ticks_skipped"]
	s.step(aMonday.Add(2 * time.Minute)) // must not propagate
	s.step(aMonday.Add(4 * time.Minute))

	if q.calls != 2 {
		t.Errorf("queue called %d times, want 2 (loop keeps running)", q.calls)
	}
	after := infra.GlobalMetrics.Snapshot()["ticks_skipped"]
	if after != before+2 {
		t.Errorf("skipped beats = %d, want %d", after, before+2)
	}

	// The price ticks ran before the panics: both points persisted.
	points, err := store.PricePointsSince(aMonday.Add(time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("%d points persisted, want 2", len(points))
	}
}

func TestScheduler_StepSurvivesSettlementError(t *testing.T) {
	store := setupStore(t)
	m := newTestMarket(t, testConfig(), store, rand.New(rand.NewSource(3)), aMonday)
	q := &failingQueue{}
	s := NewScheduler(2*time.Minute, SystemClock{}, m, q)

	s.step(aMonday.Add(2 * time.Minute))
	s.step(aMonday.Add(4 * time.Minute))
	if q.calls != 2 {
		t.Errorf("queue called %d times, want 2", q.calls)
	}
}

func TestScheduler_SkipsSettlementWhileClosed(t *testing.T) {
	store := setupStore(t)
	cfg := testConfig()
	cfg.Market.ForcedStatus = domain.OverrideClosed
	m := newTestMarket(t, cfg, store, rand.New(rand.NewSource(4)), aMonday)
	q := &panickyQueue{}
	s := NewScheduler(2*time.Minute, SystemClock{}, m, q)

	s.step(aMonday.Add(2 * time.Minute))
	if q.calls != 0 {
		t.Error("settlement ran on a closed market")
	}
}

func TestScheduler_LogStats(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	s := NewScheduler(time.Minute, SystemClock{}, nil, nil)
	s.logStats()

	out := buf.Bytes()
	if !bytes.Contains(out, []byte("engine stats")) || !bytes.Contains(out, []byte("ticks_processed")) {
		t.Errorf("stats log missing counters: %s", out)
	}
}
