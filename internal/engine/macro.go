package engine

import (
	"log/slog"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Macro cycle tuning.
const (
	autoCycleDuration = 168 * time.Hour // one week
	autoTargetSpread  = 0.25            // target drawn from ±25% of current price
	targetClampRatio  = 0.5             // targets clamped to [0.5, 1.5] × reference
)

// MacroController owns the single active regulation cycle. An expired cycle
// (auto or manual alike) always rolls forward into a fresh auto cycle, so the
// controller never stalls.
type MacroController struct {
	store *storage.Storage
	rng   domain.Rand
}

func NewMacroController(store *storage.Storage, rng domain.Rand) *MacroController {
	return &MacroController{store: store, rng: rng}
}

// Current returns the live cycle, regenerating it when the persisted row is
// absent, corrupt, or expired. Corrupt state is never fatal.
func (c *MacroController) Current(now time.Time, currentPrice decimal.Decimal) (*domain.MacroState, error) {
	st, err := c.store.LoadMacroState()
	if err != nil {
		slog.Warn("macro state load failed, regenerating", slog.Any("error", err))
		st = nil
	}
	if st != nil && !st.Valid() {
		slog.Warn("macro state corrupt, regenerating",
			slog.Time("cycle_start", st.CycleStart), slog.Time("end_time", st.EndTime))
		st = nil
	}
	if st != nil && !now.After(st.EndTime) {
		return st, nil
	}
	return c.newAutoCycle(now, currentPrice)
}

// newAutoCycle installs an auto cycle: target = current × (1 + U(-0.25, 0.25)),
// clamped to [0.5, 1.5] × current, running for one week.
func (c *MacroController) newAutoCycle(now time.Time, currentPrice decimal.Decimal) (*domain.MacroState, error) {
	drift := c.rng.Float64()*2*autoTargetSpread - autoTargetSpread
	target := currentPrice.Mul(decimal.NewFromFloat(1 + drift))
	target = clampTarget(target, currentPrice).Round(2)

	st := &domain.MacroState{
		CycleStart:  now,
		StartPrice:  currentPrice,
		TargetPrice: target,
		EndTime:     now.Add(autoCycleDuration),
		Mode:        domain.ModeAuto,
	}
	if err := c.store.SaveMacroState(st); err != nil {
		return nil, err
	}
	slog.Info("new auto regulation cycle",
		slog.String("start_price", st.StartPrice.String()),
		slog.String("target_price", st.TargetPrice.String()),
		slog.Time("end_time", st.EndTime))
	return st, nil
}

// SetTarget immediately starts a manual cycle. The requested price is clamped
// to [0.5, 1.5] × max(currentPrice, dailyOpenPrice).
func (c *MacroController) SetTarget(now time.Time, currentPrice, dailyOpen, target decimal.Decimal, duration time.Duration) (*domain.MacroState, error) {
	if !target.IsPositive() || duration <= 0 {
		return nil, domain.ErrInvalidTarget
	}

	ref := currentPrice
	if dailyOpen.GreaterThan(ref) {
		ref = dailyOpen
	}
	clamped := clampTarget(target, ref).Round(2)

	st := &domain.MacroState{
		CycleStart:  now,
		StartPrice:  currentPrice,
		TargetPrice: clamped,
		EndTime:     now.Add(duration),
		Mode:        domain.ModeManual,
	}
	if err := c.store.SaveMacroState(st); err != nil {
		return nil, err
	}
	slog.Info("manual regulation cycle installed",
		slog.String("requested", target.String()),
		slog.String("target_price", st.TargetPrice.String()),
		slog.Time("end_time", st.EndTime))
	return st, nil
}

// clampTarget bounds target to [0.5, 1.5] × ref.
func clampTarget(target, ref decimal.Decimal) decimal.Decimal {
	lower := ref.Mul(decimal.NewFromFloat(targetClampRatio))
	upper := ref.Mul(decimal.NewFromFloat(1 + targetClampRatio))
	if target.LessThan(lower) {
		return lower
	}
	if target.GreaterThan(upper) {
		return upper
	}
	return target
}
