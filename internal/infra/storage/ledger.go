package storage

import (
	"errors"
	"time"

	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashLedger is the default domain.Ledger adapter, backed by the same SQLite
// database. A real deployment can swap in a remote ledger service behind the
// same interface.
type CashLedger struct {
	store *Storage
}

// NewCashLedger creates a ledger adapter over the store.
func NewCashLedger(store *Storage) *CashLedger {
	return &CashLedger{store: store}
}

var _ domain.Ledger = (*CashLedger)(nil)

// GetBalance returns the account's balance in the given currency.
func (l *CashLedger) GetBalance(accountID, currency string) (decimal.Decimal, error) {
	var row domain.CashBalance
	err := l.store.db.First(&row, "account_id = ? AND currency = ?", accountID, currency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

// AdjustBalance applies delta to the account's balance. Returns false without
// mutating when a negative delta would overdraw the account.
func (l *CashLedger) AdjustBalance(accountID, currency string, delta decimal.Decimal) (bool, error) {
	ok := false
	err := l.store.db.Transaction(func(tx *gorm.DB) error {
		var row domain.CashBalance
		err := tx.First(&row, "account_id = ? AND currency = ?", accountID, currency).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = domain.CashBalance{AccountID: accountID, Currency: currency, Amount: decimal.Zero}
		} else if err != nil {
			return err
		}

		next := row.Amount.Add(delta).Round(2)
		if next.IsNegative() {
			return nil // ok stays false
		}
		row.Amount = next
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// DemandLedger is the default domain.DemandAccount adapter: FIFO-deductible
// deposit buckets in the same database.
type DemandLedger struct {
	store *Storage
}

// NewDemandLedger creates a demand-account adapter over the store.
func NewDemandLedger(store *Storage) *DemandLedger {
	return &DemandLedger{store: store}
}

var _ domain.DemandAccount = (*DemandLedger)(nil)

// Total returns the sum of the account's deposit buckets.
func (l *DemandLedger) Total(accountID, currency string) (decimal.Decimal, error) {
	var rows []domain.DemandDeposit
	err := l.store.db.
		Where("account_id = ? AND currency = ?", accountID, currency).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total, nil
}

// Deposit adds a new bucket. Used by the community layer when users park funds.
func (l *DemandLedger) Deposit(accountID, currency string, amount decimal.Decimal) error {
	return l.store.db.Create(&domain.DemandDeposit{
		AccountID: accountID,
		Currency:  currency,
		Amount:    amount.Round(2),
		CreatedAt: time.Now(),
	}).Error
}

// DeductFIFO drains amount from the oldest buckets first, in one transaction.
// Returns false without mutating when the buckets cannot cover the amount.
func (l *DemandLedger) DeductFIFO(accountID, currency string, amount decimal.Decimal) (bool, error) {
	ok := false
	err := l.store.db.Transaction(func(tx *gorm.DB) error {
		var rows []domain.DemandDeposit
		if err := tx.
			Where("account_id = ? AND currency = ?", accountID, currency).
			Order("created_at ASC, id ASC").
			Find(&rows).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, r := range rows {
			total = total.Add(r.Amount)
		}
		if total.LessThan(amount) {
			return nil // ok stays false
		}

		remaining := amount
		for _, r := range rows {
			if !remaining.IsPositive() {
				break
			}
			if r.Amount.LessThanOrEqual(remaining) {
				remaining = remaining.Sub(r.Amount)
				if err := tx.Delete(&domain.DemandDeposit{}, r.ID).Error; err != nil {
					return err
				}
				continue
			}
			r.Amount = r.Amount.Sub(remaining).Round(2)
			remaining = decimal.Zero
			if err := tx.Save(&r).Error; err != nil {
				return err
			}
		}
		ok = true
		return nil
	})
	return ok, err
}
