package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectReason classifies why a command was refused. Market-closed is a
// gating precondition, not an error.
type RejectReason string

const (
	ReasonNone                 RejectReason = ""
	ReasonMarketClosed         RejectReason = "market_closed"
	ReasonInvalidShares        RejectReason = "invalid_shares"
	ReasonInvalidTarget        RejectReason = "invalid_target"
	ReasonInsufficientFunds    RejectReason = "insufficient_funds"
	ReasonInsufficientHoldings RejectReason = "insufficient_holdings"
	ReasonHoldingCap           RejectReason = "holding_cap"
	ReasonPaymentFailed        RejectReason = "payment_failed"
	ReasonInternal             RejectReason = "internal_error"
)

// OrderResult is what the command layer renders after a buy/sell.
type OrderResult struct {
	OK        bool            `json:"ok"`
	Reason    RejectReason    `json:"reason,omitempty"`
	OrderID   uint64          `json:"order_id,omitempty"`
	Side      string          `json:"side"`
	Shares    uint64          `json:"shares"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notional  decimal.Decimal `json:"notional"`
	SettleAt  time.Time       `json:"settle_at"`
	Immediate bool            `json:"immediate"` // true when maxFreeze=0 settled on the spot
}

// TargetResult reports the cycle installed by an admin override.
type TargetResult struct {
	OK     bool         `json:"ok"`
	Reason RejectReason `json:"reason,omitempty"`
	Cycle  MacroState   `json:"cycle"`
}

// HoldingResult is an account position enriched with live valuation.
type HoldingResult struct {
	OK            bool            `json:"ok"`
	Reason        RejectReason    `json:"reason,omitempty"`
	Shares        uint64          `json:"shares"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPct decimal.Decimal `json:"unrealized_pct"`
}

// HistoryResult is a window of the price sequence.
type HistoryResult struct {
	OK     bool         `json:"ok"`
	Reason RejectReason `json:"reason,omitempty"`
	Points []PricePoint `json:"points"`
}
