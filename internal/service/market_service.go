// Package service exposes the command-layer contract: structured results the
// rendering layer can present without knowing engine internals.
package service

import (
	"errors"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/engine"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"
	"stock_sim/internal/trade"

	"github.com/shopspring/decimal"
)

// MarketService wires user/admin commands into the engine and queue.
type MarketService struct {
	cfg    *infra.Config
	clock  domain.Clock
	market *engine.Market
	queue  *trade.Queue
	store  *storage.Storage
}

func NewMarketService(cfg *infra.Config, clock domain.Clock, market *engine.Market, queue *trade.Queue, store *storage.Storage) *MarketService {
	return &MarketService{
		cfg:    cfg,
		clock:  clock,
		market: market,
		queue:  queue,
		store:  store,
	}
}

// Buy places a buy order at the live price.
func (s *MarketService) Buy(accountID string, shares uint64) domain.OrderResult {
	return s.place(accountID, domain.SideBuy, shares)
}

// Sell places a sell order at the live price.
func (s *MarketService) Sell(accountID string, shares uint64) domain.OrderResult {
	return s.place(accountID, domain.SideSell, shares)
}

func (s *MarketService) place(accountID, side string, shares uint64) domain.OrderResult {
	if shares == 0 {
		return domain.OrderResult{Side: side, Reason: domain.ReasonInvalidShares}
	}

	now := s.clock.Now()
	if !s.market.IsOpen(now) {
		return domain.OrderResult{Side: side, Shares: shares, Reason: domain.ReasonMarketClosed}
	}

	price := s.market.CurrentPrice()

	var (
		order     *domain.PendingOrder
		immediate bool
		err       error
	)
	if side == domain.SideBuy {
		order, immediate, err = s.queue.PlaceBuy(accountID, shares, price, now)
	} else {
		order, immediate, err = s.queue.PlaceSell(accountID, shares, price, now)
	}
	if err != nil {
		return domain.OrderResult{
			Side:      side,
			Shares:    shares,
			UnitPrice: price,
			Reason:    rejectReason(err),
		}
	}

	return domain.OrderResult{
		OK:        true,
		Side:      side,
		OrderID:   order.ID,
		Shares:    order.Shares,
		UnitPrice: order.UnitPrice,
		Notional:  order.Notional,
		SettleAt:  order.EndTime,
		Immediate: immediate,
	}
}

// SetMacroTarget installs an admin-forced regulation cycle.
func (s *MarketService) SetMacroTarget(target decimal.Decimal, hours int) domain.TargetResult {
	if !target.IsPositive() || hours <= 0 {
		return domain.TargetResult{Reason: domain.ReasonInvalidTarget}
	}
	st, err := s.market.SetMacroTarget(s.clock.Now(), target, time.Duration(hours)*time.Hour)
	if err != nil {
		return domain.TargetResult{Reason: rejectReason(err)}
	}
	return domain.TargetResult{OK: true, Cycle: *st}
}

// ForcePatternSwitch makes the next tick reselect the active pattern.
func (s *MarketService) ForcePatternSwitch() {
	s.market.ForceRotate()
}

// SetMarketOverride persists an admin open/closed/auto override.
func (s *MarketService) SetMarketOverride(status string) error {
	return s.market.Clock().SetOverride(status)
}

// GetHistory returns the price sequence for a named range: "day", "week", or
// "month" (capped by the retention window).
func (s *MarketService) GetHistory(rangeName string) domain.HistoryResult {
	now := s.clock.Now()
	var since time.Time
	switch rangeName {
	case "day":
		since = now.Add(-24 * time.Hour)
	case "week":
		since = now.AddDate(0, 0, -7)
	case "month":
		since = now.AddDate(0, 0, -30)
	default:
		return domain.HistoryResult{Reason: domain.ReasonInternal}
	}

	points, err := s.store.PricePointsSince(since)
	if err != nil {
		return domain.HistoryResult{Reason: domain.ReasonInternal}
	}
	return domain.HistoryResult{OK: true, Points: points}
}

// GetHolding returns the account position valued at the live price.
func (s *MarketService) GetHolding(accountID string) domain.HoldingResult {
	holding, err := s.store.GetHolding(accountID, s.cfg.Market.Symbol)
	if err != nil {
		return domain.HoldingResult{Reason: domain.ReasonInternal}
	}
	if holding == nil {
		return domain.HoldingResult{OK: true}
	}

	price := s.market.CurrentPrice()
	value := price.Mul(decimal.NewFromInt(int64(holding.Shares))).Round(2)

	pct := decimal.Zero
	if holding.TotalCost.IsPositive() {
		pct = value.Sub(holding.TotalCost).
			Div(holding.TotalCost).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	return domain.HoldingResult{
		OK:            true,
		Shares:        holding.Shares,
		TotalCost:     holding.TotalCost,
		AvgCost:       holding.AvgCost(),
		MarketValue:   value,
		UnrealizedPct: pct,
	}
}

// rejectReason maps queue/engine errors onto command rejection reasons.
func rejectReason(err error) domain.RejectReason {
	var payErr *domain.PaymentError
	switch {
	case errors.Is(err, domain.ErrInvalidShares):
		return domain.ReasonInvalidShares
	case errors.Is(err, domain.ErrInvalidTarget):
		return domain.ReasonInvalidTarget
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.ReasonInsufficientFunds
	case errors.Is(err, domain.ErrInsufficientHoldings):
		return domain.ReasonInsufficientHoldings
	case errors.Is(err, domain.ErrHoldingCapExceeded):
		return domain.ReasonHoldingCap
	case errors.As(err, &payErr):
		return domain.ReasonPaymentFailed
	default:
		return domain.ReasonInternal
	}
}
