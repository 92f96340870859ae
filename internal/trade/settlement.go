// Package trade implements the delayed-settlement order queue: notional-sized
// freezes, per-account per-side serialization, and idempotent maturity
// processing.
package trade

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Queue accepts buy/sell intents and settles them once their freeze window
// elapses. Per-account mutation is serialized through keyed locks so a
// concurrent buy and sell by the same user cannot corrupt cost-basis
// accounting.
type Queue struct {
	store  *storage.Storage
	ledger domain.Ledger
	demand domain.DemandAccount // nil when the demand-account fallback is disabled
	cfg    *infra.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQueue(store *storage.Storage, ledger domain.Ledger, demand domain.DemandAccount, cfg *infra.Config) *Queue {
	return &Queue{
		store:  store,
		ledger: ledger,
		demand: demand,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing one account's order flow.
func (q *Queue) accountLock(accountID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		q.locks[accountID] = l
	}
	return l
}

// PlaceBuy debits payment immediately (cash first, demand-account fallback)
// and enqueues the share leg for settlement after the freeze. With
// max_freeze_minutes=0 the shares land in the holding on the spot.
func (q *Queue) PlaceBuy(accountID string, shares uint64, unitPrice decimal.Decimal, now time.Time) (*domain.PendingOrder, bool, error) {
	if shares == 0 || shares > math.MaxInt64 {
		// The int64 conversion below would wrap the notional negative.
		return nil, false, domain.ErrInvalidShares
	}
	notional := unitPrice.Mul(decimal.NewFromInt(int64(shares))).Round(2)

	lock := q.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := q.checkHoldingCap(accountID, shares); err != nil {
		return nil, false, err
	}
	if err := q.pay(accountID, notional); err != nil {
		return nil, false, err
	}

	order := &domain.PendingOrder{
		AccountID: accountID,
		Side:      domain.SideBuy,
		Shares:    shares,
		UnitPrice: unitPrice,
		Notional:  notional,
	}

	freeze := q.freezeDuration(notional)
	if freeze == 0 {
		if err := q.applyBuy(q.store, order); err != nil {
			// Payment already taken; give it back.
			q.refund(accountID, notional)
			return nil, false, err
		}
		order.StartTime, order.EndTime = now, now
		infra.GlobalMetrics.RecordOrderPlaced()
		infra.GlobalMetrics.RecordOrderSettled()
		return order, true, nil
	}

	order.StartTime, order.EndTime = q.freezeWindow(accountID, domain.SideBuy, now, freeze)
	if err := q.store.CreatePendingOrder(order); err != nil {
		q.refund(accountID, notional)
		return nil, false, err
	}
	infra.GlobalMetrics.RecordOrderPlaced()
	return order, false, nil
}

// PlaceSell debits the shares from the holding immediately (no re-selling
// frozen shares) and enqueues the cash leg for settlement after the freeze.
func (q *Queue) PlaceSell(accountID string, shares uint64, unitPrice decimal.Decimal, now time.Time) (*domain.PendingOrder, bool, error) {
	if shares == 0 || shares > math.MaxInt64 {
		// The int64 conversion below would wrap the notional negative.
		return nil, false, domain.ErrInvalidShares
	}
	notional := unitPrice.Mul(decimal.NewFromInt(int64(shares))).Round(2)

	lock := q.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	holding, err := q.store.GetHolding(accountID, q.cfg.Market.Symbol)
	if err != nil {
		return nil, false, err
	}
	if holding == nil || holding.Shares < shares {
		return nil, false, domain.ErrInsufficientHoldings
	}

	prior := *holding
	if err := q.reduceHolding(holding, shares); err != nil {
		return nil, false, err
	}

	order := &domain.PendingOrder{
		AccountID: accountID,
		Side:      domain.SideSell,
		Shares:    shares,
		UnitPrice: unitPrice,
		Notional:  notional,
	}

	freeze := q.freezeDuration(notional)
	if freeze == 0 {
		ok, err := q.ledger.AdjustBalance(accountID, q.cfg.Market.Currency, notional)
		if err != nil || !ok {
			// Compensating rollback: restore the share leg.
			q.restoreHolding(&prior)
			infra.GlobalMetrics.RecordPaymentRollback()
			return nil, false, &domain.PaymentError{Leg: "credit", Err: err}
		}
		order.StartTime, order.EndTime = now, now
		infra.GlobalMetrics.RecordOrderPlaced()
		infra.GlobalMetrics.RecordOrderSettled()
		return order, true, nil
	}

	order.StartTime, order.EndTime = q.freezeWindow(accountID, domain.SideSell, now, freeze)
	if err := q.store.CreatePendingOrder(order); err != nil {
		q.restoreHolding(&prior)
		return nil, false, err
	}
	infra.GlobalMetrics.RecordOrderPlaced()
	return order, false, nil
}

// ProcessMatured settles every order whose end time has passed, exactly once.
// Calling it again without new maturities is a no-op.
func (q *Queue) ProcessMatured(now time.Time) error {
	orders, err := q.store.MaturedOrders(now)
	if err != nil {
		return err
	}
	for i := range orders {
		o := orders[i]
		lock := q.accountLock(o.AccountID)
		lock.Lock()
		err := q.settle(&o)
		lock.Unlock()
		if err != nil {
			slog.Error("order settlement failed, will retry",
				slog.Uint64("order_id", o.ID), slog.Any("error", err))
			infra.GlobalMetrics.RecordError()
		}
	}
	return nil
}

// settle applies one matured order. Deletion gates the effect: whoever
// deletes the row settles it, so a second pass finds nothing to do.
func (q *Queue) settle(o *domain.PendingOrder) error {
	switch o.Side {
	case domain.SideBuy:
		return q.store.Transaction(func(tx *storage.Storage) error {
			deleted, err := tx.DeletePendingOrder(o.ID)
			if err != nil {
				return err
			}
			if !deleted {
				return nil // already settled
			}
			if err := q.applyBuy(tx, o); err != nil {
				return err
			}
			infra.GlobalMetrics.RecordOrderSettled()
			return nil
		})
	case domain.SideSell:
		deleted, err := q.store.DeletePendingOrder(o.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		ok, err := q.ledger.AdjustBalance(o.AccountID, q.cfg.Market.Currency, o.Notional)
		if err != nil || !ok {
			// Compensating rollback: requeue the order for the next pass.
			if rerr := q.store.CreatePendingOrder(o); rerr != nil {
				slog.Error("failed to requeue sell after credit failure",
					slog.Uint64("order_id", o.ID), slog.Any("error", rerr))
			}
			infra.GlobalMetrics.RecordPaymentRollback()
			return &domain.PaymentError{Leg: "credit", Err: err}
		}
		infra.GlobalMetrics.RecordOrderSettled()
		return nil
	default:
		slog.Warn("pending order with unknown side dropped", slog.String("side", o.Side))
		_, err := q.store.DeletePendingOrder(o.ID)
		return err
	}
}

// applyBuy lands a matured buy's shares and cost basis in the holding.
// Orders persisted before notionals were recorded settle at the order's own
// unit price, never the live price (one-time data-repair policy; using the
// live price would dilute everyone else's cost basis).
func (q *Queue) applyBuy(s *storage.Storage, o *domain.PendingOrder) error {
	cost := o.Notional
	if !cost.IsPositive() {
		cost = o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Shares))).Round(2)
	}

	holding, err := s.GetHolding(o.AccountID, q.cfg.Market.Symbol)
	if err != nil {
		return err
	}
	if holding == nil {
		holding = &domain.Holding{
			AccountID: o.AccountID,
			Symbol:    q.cfg.Market.Symbol,
			TotalCost: decimal.Zero,
		}
	}
	holding.Shares += o.Shares
	holding.TotalCost = holding.TotalCost.Add(cost).Round(2)
	return s.SaveHolding(holding)
}

// reduceHolding removes shares and the proportional slice of cost basis.
func (q *Queue) reduceHolding(holding *domain.Holding, shares uint64) error {
	costOut := holding.TotalCost.
		Mul(decimal.NewFromInt(int64(shares))).
		Div(decimal.NewFromInt(int64(holding.Shares))).
		Round(2)
	holding.Shares -= shares
	holding.TotalCost = holding.TotalCost.Sub(costOut).Round(2)

	if holding.Shares == 0 {
		return q.store.DeleteHolding(holding.AccountID, holding.Symbol)
	}
	return q.store.SaveHolding(holding)
}

func (q *Queue) restoreHolding(prior *domain.Holding) {
	if err := q.store.SaveHolding(prior); err != nil {
		slog.Error("failed to restore holding after rollback",
			slog.String("account", prior.AccountID), slog.Any("error", err))
	}
}

// checkHoldingCap rejects buys that would push held plus frozen-buy shares
// past the per-account cap.
func (q *Queue) checkHoldingCap(accountID string, shares uint64) error {
	cap := q.cfg.Trade.HoldingCap
	if cap == 0 {
		return nil
	}
	held := uint64(0)
	if holding, err := q.store.GetHolding(accountID, q.cfg.Market.Symbol); err != nil {
		return err
	} else if holding != nil {
		held = holding.Shares
	}
	frozen, err := q.store.FrozenShares(accountID, domain.SideBuy)
	if err != nil {
		return err
	}
	if held+frozen+shares > cap {
		return domain.ErrHoldingCapExceeded
	}
	return nil
}

// pay debits notional: cash first, then the demand account for the remainder.
// The cash leg is reversed if the demand leg fails.
func (q *Queue) pay(accountID string, notional decimal.Decimal) error {
	currency := q.cfg.Market.Currency

	cash, err := q.ledger.GetBalance(accountID, currency)
	if err != nil {
		return &domain.PaymentError{Leg: "cash", Err: err}
	}

	if cash.GreaterThanOrEqual(notional) {
		ok, err := q.ledger.AdjustBalance(accountID, currency, notional.Neg())
		if err != nil {
			return &domain.PaymentError{Leg: "cash", Err: err}
		}
		if !ok {
			return domain.ErrInsufficientFunds
		}
		return nil
	}

	if q.demand == nil {
		return domain.ErrInsufficientFunds
	}
	demandTotal, err := q.demand.Total(accountID, currency)
	if err != nil {
		return &domain.PaymentError{Leg: "demand", Err: err}
	}
	if cash.Add(demandTotal).LessThan(notional) {
		return domain.ErrInsufficientFunds
	}

	cashLeg := cash
	demandLeg := notional.Sub(cash)
	if cashLeg.IsPositive() {
		ok, err := q.ledger.AdjustBalance(accountID, currency, cashLeg.Neg())
		if err != nil {
			return &domain.PaymentError{Leg: "cash", Err: err}
		}
		if !ok {
			return domain.ErrInsufficientFunds
		}
	}

	ok, err := q.demand.DeductFIFO(accountID, currency, demandLeg)
	if err != nil || !ok {
		if cashLeg.IsPositive() {
			q.refund(accountID, cashLeg)
			infra.GlobalMetrics.RecordPaymentRollback()
		}
		if err != nil {
			return &domain.PaymentError{Leg: "demand", Err: err}
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

// refund re-credits cash after a failed downstream step. A refused refund is
// as bad as a failed one; both leave the ledger inconsistent and must surface.
func (q *Queue) refund(accountID string, amount decimal.Decimal) {
	ok, err := q.ledger.AdjustBalance(accountID, q.cfg.Market.Currency, amount)
	if err != nil || !ok {
		slog.Error("refund not applied, ledger inconsistent",
			slog.String("account", accountID),
			slog.String("amount", amount.String()),
			slog.Bool("refused", !ok),
			slog.Any("error", err))
	}
}

// freezeDuration sizes the freeze from trade notional:
// clamp(notional / cost-per-minute, [min, max]). A zero configured maximum
// disables freezing entirely.
func (q *Queue) freezeDuration(notional decimal.Decimal) time.Duration {
	if q.cfg.Trade.MaxFreezeMinutes == 0 {
		return 0
	}
	ratio, _ := notional.Div(q.cfg.Trade.FreezeCostPerMin).Float64()
	minutes := int(math.Ceil(ratio))
	if minutes < q.cfg.Trade.MinFreezeMinutes {
		minutes = q.cfg.Trade.MinFreezeMinutes
	}
	if minutes > q.cfg.Trade.MaxFreezeMinutes {
		minutes = q.cfg.Trade.MaxFreezeMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// freezeWindow serializes same-account same-side orders: a new order starts
// when the account's latest pending order of that side ends, so splitting a
// large order never shortens total freeze exposure.
func (q *Queue) freezeWindow(accountID, side string, now time.Time, freeze time.Duration) (time.Time, time.Time) {
	start := now
	last, err := q.store.LatestPendingOrder(accountID, side)
	if err != nil {
		slog.Warn("failed to load latest pending order", slog.Any("error", err))
	}
	if last != nil && last.EndTime.After(now) {
		start = last.EndTime
	}
	return start, start.Add(freeze)
}
