package engine

import (
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra/storage"
)

// MarketClock decides open/closed state. Resolution order: forced config
// status, persisted admin override, then the weekday+hour trading window
// (closed on weekends, closed outside [openHour, closeHour)).
type MarketClock struct {
	forced    string // "", "open", "closed"
	openHour  int
	closeHour int
	store     *storage.Storage
}

func NewMarketClock(store *storage.Storage, forced string, openHour, closeHour int) *MarketClock {
	return &MarketClock{
		forced:    forced,
		openHour:  openHour,
		closeHour: closeHour,
		store:     store,
	}
}

// IsOpen reports whether trading is allowed at now.
func (c *MarketClock) IsOpen(now time.Time) bool {
	switch c.forced {
	case domain.OverrideOpen:
		return true
	case domain.OverrideClosed:
		return false
	}

	override, err := c.store.GetSetting(domain.SettingMarketOverride)
	if err == nil {
		switch override {
		case domain.OverrideOpen:
			return true
		case domain.OverrideClosed:
			return false
		}
	}

	return c.inWindow(now)
}

// SetOverride persists an admin override: open, closed, or auto.
func (c *MarketClock) SetOverride(status string) error {
	switch status {
	case domain.OverrideOpen, domain.OverrideClosed, domain.OverrideAuto:
		return c.store.SaveSetting(domain.SettingMarketOverride, status)
	default:
		return domain.ErrUnknownOverride
	}
}

// inWindow applies the weekday+hour schedule.
func (c *MarketClock) inWindow(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := now.Hour()
	return h >= c.openHour && h < c.closeHour
}

// DayProgress returns elapsed fraction of the trading window, clamped to [0,1].
// Drives the U-shaped intraday volatility curve.
func (c *MarketClock) DayProgress(now time.Time) float64 {
	open := float64(c.openHour)
	close := float64(c.closeHour)
	h := float64(now.Hour()) + float64(now.Minute())/60 + float64(now.Second())/3600
	if close <= open {
		return 0
	}
	p := (h - open) / (close - open)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
