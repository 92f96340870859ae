package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MacroState is the single active regulation cycle. Exactly one row exists,
// pinned to MacroStateID; an expired cycle is replaced wholesale, never
// patched field by field.
type MacroState struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	CycleStart  time.Time       `json:"cycle_start"`
	StartPrice  decimal.Decimal `gorm:"type:decimal(20,2)" json:"start_price"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(20,2)" json:"target_price"`
	EndTime     time.Time       `json:"end_time"`
	Mode        string          `json:"mode"` // "auto", "manual"
}

// MacroStateID is the fixed primary key of the singleton cycle row.
const MacroStateID uint = 1

const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Progress returns elapsed fraction of the cycle, clamped to [0,1].
func (m *MacroState) Progress(now time.Time) float64 {
	total := m.EndTime.Sub(m.CycleStart)
	if total <= 0 {
		return 1
	}
	p := float64(now.Sub(m.CycleStart)) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Valid reports whether a persisted cycle row is usable. Rows with missing
// timestamps (partial writes) are treated as absent and regenerated.
func (m *MacroState) Valid() bool {
	if m.CycleStart.IsZero() || m.EndTime.IsZero() {
		return false
	}
	if !m.EndTime.After(m.CycleStart) {
		return false
	}
	return m.StartPrice.IsPositive()
}

// PricePoint is one element of the append-only traded-price sequence.
type PricePoint struct {
	ID    uint64          `gorm:"primaryKey" json:"id"`
	Price decimal.Decimal `gorm:"type:decimal(20,2)" json:"price"`
	Time  time.Time       `gorm:"index" json:"time"`
}

// PendingOrder is a frozen buy or sell waiting for its settlement time.
// Created at placement, destroyed atomically at maturity.
type PendingOrder struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	AccountID string          `gorm:"index:idx_pending_account_side" json:"account_id"`
	Side      string          `gorm:"index:idx_pending_account_side" json:"side"`
	Shares    uint64          `json:"shares"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2)" json:"unit_price"`
	Notional  decimal.Decimal `gorm:"type:decimal(20,2)" json:"notional"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `gorm:"index" json:"end_time"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Holding is an account's position in the traded instrument. Cost basis is
// additive on buy and proportionally reduced on sell; the row is deleted when
// shares reach zero.
type Holding struct {
	AccountID string          `gorm:"primaryKey" json:"account_id"`
	Symbol    string          `gorm:"primaryKey" json:"symbol"`
	Shares    uint64          `json:"shares"`
	TotalCost decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_cost"`
}

// AvgCost returns the average cost per share, or zero for an empty holding.
func (h *Holding) AvgCost() decimal.Decimal {
	if h.Shares == 0 {
		return decimal.Zero
	}
	return h.TotalCost.Div(decimal.NewFromInt(int64(h.Shares))).Round(2)
}

// EngineSetting is a persisted key-value pair for engine runtime state that
// must survive restarts (market override, daily open snapshot).
type EngineSetting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known EngineSetting keys.
const (
	SettingMarketOverride = "market_override"
	SettingDailyOpenPrice = "daily_open_price"
	SettingDailyOpenDate  = "daily_open_date"
)

// Market override values (SettingMarketOverride).
const (
	OverrideAuto   = "auto"
	OverrideOpen   = "open"
	OverrideClosed = "closed"
)

// CashBalance backs the default ledger adapter: one row per account+currency.
type CashBalance struct {
	AccountID string          `gorm:"primaryKey" json:"account_id"`
	Currency  string          `gorm:"primaryKey" json:"currency"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
}

// DemandDeposit is one FIFO-deductible bucket of the demand account.
type DemandDeposit struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	AccountID string          `gorm:"index" json:"account_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
