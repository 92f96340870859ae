package engine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"
	"stock_sim/internal/pattern"

	"github.com/shopspring/decimal"
)

// Price composition tuning (per tick).
const (
	patternReturnScale = 0.15
	reversionBase      = 0.02
	reversionEndBoost  = 0.05 // extra reversion ramped over the final 20% of the cycle
	endPhaseStart      = 0.8
	noiseScale         = 0.0065

	minDwell   = 1 * time.Hour
	dwellRange = 5 * time.Hour // dwell = minDwell + U(0, dwellRange)
	maxDwell   = 30 * time.Hour

	weekClampRatio = 0.5  // week bounds: ±50% of the cycle's start price
	softBandRatio  = 0.05 // soft landing begins within 5% of a bound
	priceFloor     = 0.01
)

// activePattern is runtime-only rotation state; it is rebuilt after restart.
type activePattern struct {
	id           int
	lastSwitch   time.Time
	nextSwitch   time.Time
	startPriceAt decimal.Decimal
}

// Market owns the traded price and everything that moves it. All mutation goes
// through its methods; price-affecting reads and writes are serialized by one
// lock, satisfying the single-writer discipline.
type Market struct {
	mu sync.RWMutex

	cfg      *infra.Config
	store    *storage.Storage
	rng      domain.Rand
	macro    *MacroController
	selector *pattern.Selector
	mclock   *MarketClock

	current   decimal.Decimal
	dailyOpen decimal.Decimal
	active    *activePattern
	wasOpen   bool

	// Boundary: notifies the stream hub (or other collaborators) of new ticks.
	onTick func(domain.PricePoint)
}

// NewMarket assembles the engine around its collaborators. Call Init before
// the first tick.
func NewMarket(cfg *infra.Config, store *storage.Storage, rng domain.Rand,
	macro *MacroController, selector *pattern.Selector, mclock *MarketClock,
	onTick func(domain.PricePoint)) *Market {
	return &Market{
		cfg:      cfg,
		store:    store,
		rng:      rng,
		macro:    macro,
		selector: selector,
		mclock:   mclock,
		onTick:   onTick,
	}
}

// Init restores the current price and daily open snapshot from storage,
// seeding the configured initial price on first run.
func (m *Market) Init(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest, err := m.store.LatestPricePoint()
	if err != nil {
		return err
	}
	if latest == nil {
		m.current = m.cfg.Market.InitialPrice.Round(2)
		if err := m.store.AppendPricePoint(&domain.PricePoint{Price: m.current, Time: now}); err != nil {
			return err
		}
	} else {
		m.current = latest.Price
	}

	m.dailyOpen = m.current
	date, err := m.store.GetSetting(domain.SettingDailyOpenDate)
	if err == nil && date == now.Format("2006-01-02") {
		raw, err := m.store.GetSetting(domain.SettingDailyOpenPrice)
		if err == nil && raw != "" {
			if p, err := decimal.NewFromString(raw); err == nil && p.IsPositive() {
				m.dailyOpen = p
			}
		}
	}

	m.wasOpen = m.mclock.IsOpen(now)
	return nil
}

// CurrentPrice returns the traded price as of the last tick.
func (m *Market) CurrentPrice() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// DailyOpenPrice returns the price captured at the last open transition.
func (m *Market) DailyOpenPrice() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyOpen
}

// IsOpen reports whether the market accepts trades at now.
func (m *Market) IsOpen(now time.Time) bool {
	return m.mclock.IsOpen(now)
}

// Clock exposes the market clock for the admin override path.
func (m *Market) Clock() *MarketClock {
	return m.mclock
}

// SetMacroTarget installs a manual regulation cycle against the live price.
func (m *Market) SetMacroTarget(now time.Time, target decimal.Decimal, duration time.Duration) (*domain.MacroState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.macro.SetTarget(now, m.current, m.dailyOpen, target, duration)
}

// ForceRotate discards the active pattern so the next tick reselects.
func (m *Market) ForceRotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
}

// Tick advances the market by one step. On a closed→open transition it
// snapshots the daily open price and forces a pattern rotation; while closed
// the price does not move.
func (m *Market) Tick(now time.Time) {
	open := m.mclock.IsOpen(now)

	m.mu.Lock()
	if open && !m.wasOpen {
		m.captureDailyOpen(now)
		m.active = nil
	}
	m.wasOpen = open
	var point *domain.PricePoint
	if open {
		point = m.advance(now)
	}
	m.mu.Unlock()

	// Notify outside the lock: a slow subscriber must not stall price reads.
	if point != nil && m.onTick != nil {
		m.onTick(*point)
	}
}

// captureDailyOpen snapshots the current price as the day's opening price.
// Persisted so day-bound clamps survive a mid-day restart.
func (m *Market) captureDailyOpen(now time.Time) {
	m.dailyOpen = m.current
	if err := m.store.SaveSetting(domain.SettingDailyOpenPrice, m.dailyOpen.String()); err != nil {
		slog.Warn("failed to persist daily open price", slog.Any("error", err))
	}
	if err := m.store.SaveSetting(domain.SettingDailyOpenDate, now.Format("2006-01-02")); err != nil {
		slog.Warn("failed to persist daily open date", slog.Any("error", err))
	}
	slog.Info("market open", slog.String("daily_open", m.dailyOpen.String()))
}

// advance composes pattern, reversion, and noise returns into one price step,
// returning the appended point or nil when the tick was skipped. Caller holds
// m.mu.
func (m *Market) advance(now time.Time) *domain.PricePoint {
	cur, _ := m.current.Float64()
	if cur <= 0 {
		cur = priceFloor
	}

	st, err := m.macro.Current(now, m.current)
	if err != nil {
		slog.Error("macro cycle unavailable, skipping tick", slog.Any("error", err))
		infra.GlobalMetrics.RecordTickSkipped()
		return nil
	}

	if m.active == nil || now.After(m.active.nextSwitch) || now.Sub(m.active.lastSwitch) > maxDwell {
		m.rotate(now, st)
	}

	desc, ok := pattern.ByID(m.active.id)
	if !ok {
		// Defensive: unreachable with the fixed catalog. Skip the tick.
		slog.Error("unknown pattern id, skipping tick", slog.Int("pattern_id", m.active.id))
		infra.GlobalMetrics.RecordTickSkipped()
		m.active = nil
		return nil
	}

	target, _ := st.TargetPrice.Float64()
	deviation := (target - cur) / cur

	// Pattern return: discrete slope of the shape over one tick's progress.
	dwell := m.active.nextSwitch.Sub(m.active.lastSwitch)
	pp := clamp01(float64(now.Sub(m.active.lastSwitch)) / float64(dwell))
	eps := float64(m.tickInterval()) / float64(dwell)
	p0 := pp - eps
	if p0 < 0 {
		p0 = 0
	}
	patternRet := (desc.Shape(pp) - desc.Shape(p0)) * patternReturnScale * (1 + 2*math.Abs(deviation))

	// Mean-reversion return toward the linear track from start to target.
	start, _ := st.StartPrice.Float64()
	cycleProg := st.Progress(now)
	track := start + (target-start)*cycleProg
	boost := 0.0
	if cycleProg > endPhaseStart {
		boost = reversionEndBoost * (cycleProg - endPhaseStart) / (1 - endPhaseStart)
	}
	reversionRet := (track - cur) / cur * (reversionBase + boost)

	// Random-walk return with U-shaped intraday volatility.
	dayProg := m.mclock.DayProgress(now)
	noiseRet := normSample(m.rng) * noiseScale * intradayVolatility(dayProg)

	raw := cur * (1 + patternRet + reversionRet + noiseRet)
	next := m.applyBounds(raw, start)

	price := decimal.NewFromFloat(next).Round(2)
	if !price.IsPositive() {
		price = decimal.NewFromFloat(priceFloor)
	}

	point := domain.PricePoint{Price: price, Time: now}
	if err := m.store.AppendPricePoint(&point); err != nil {
		slog.Error("failed to append price point, skipping tick", slog.Any("error", err))
		infra.GlobalMetrics.RecordTickSkipped()
		return nil
	}
	m.current = price

	cutoff := now.AddDate(0, 0, -m.cfg.Market.HistoryDays)
	if err := m.store.PrunePricePoints(cutoff); err != nil {
		slog.Warn("price history prune failed", slog.Any("error", err))
	}

	infra.GlobalMetrics.RecordTick()
	return &point
}

// rotate selects a fresh pattern and draws its 1–6h dwell. Caller holds m.mu.
func (m *Market) rotate(now time.Time, st *domain.MacroState) {
	cur, _ := m.current.Float64()
	target, _ := st.TargetPrice.Float64()

	desc := m.selector.Pick(cur, target, st.Progress(now))
	dwell := minDwell + time.Duration(m.rng.Float64()*float64(dwellRange))

	m.active = &activePattern{
		id:           desc.ID,
		lastSwitch:   now,
		nextSwitch:   now.Add(dwell),
		startPriceAt: m.current,
	}
	slog.Debug("pattern rotated",
		slog.String("pattern", desc.Name),
		slog.String("category", string(desc.Category)),
		slog.Duration("dwell", dwell))
}

// applyBounds enforces the day/week clamps with a tanh soft landing inside
// the final 5% band, then a hard clamp and the absolute price floor.
func (m *Market) applyBounds(p, cycleStartPrice float64) float64 {
	dayOpen, _ := m.dailyOpen.Float64()
	ratio := m.cfg.Market.DayClampRatio

	upper := math.Min(cycleStartPrice*(1+weekClampRatio), dayOpen*(1+ratio))
	lower := math.Max(cycleStartPrice*(1-weekClampRatio), dayOpen*(1-ratio))
	lower = math.Max(lower, priceFloor)
	if upper < lower {
		upper = lower
	}

	softUp := upper * (1 - softBandRatio)
	softDown := lower * (1 + softBandRatio)

	clamped := p
	if clamped > softUp && upper > softUp {
		band := upper - softUp
		clamped = softUp + band*math.Tanh((clamped-softUp)/band)
	} else if clamped < softDown && softDown > lower {
		band := softDown - lower
		clamped = softDown - band*math.Tanh((softDown-clamped)/band)
	}

	if clamped > upper {
		clamped = upper
	}
	if clamped < lower {
		clamped = lower
	}
	if clamped != p {
		infra.GlobalMetrics.RecordClampHit()
	}
	return clamped
}

func (m *Market) tickInterval() time.Duration {
	return time.Duration(m.cfg.Market.TickIntervalMS) * time.Millisecond
}

// intradayVolatility is U-shaped over the trading day: elevated near open and
// close, subdued at midday.
func intradayVolatility(dayProgress float64) float64 {
	centered := 2*dayProgress - 1
	return 0.6 + 0.9*centered*centered
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
