// Package storage persists engine state in SQLite (pure Go driver) via gorm.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stock_sim/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage wraps the database handle. All engine reads and writes go through it.
type Storage struct {
	db *gorm.DB
}

// Open connects to the SQLite database at path and runs migrations.
func Open(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.MacroState{},
		&domain.PricePoint{},
		&domain.PendingOrder{},
		&domain.Holding{},
		&domain.EngineSetting{},
		&domain.CashBalance{},
		&domain.DemandDeposit{},
	)
}

// Transaction runs fn against a transactional view of the store. Settlement
// relies on this for its exactly-once guarantee.
func (s *Storage) Transaction(fn func(tx *Storage) error) error {
	return s.db.Transaction(func(txdb *gorm.DB) error {
		return fn(&Storage{db: txdb})
	})
}

// ======================================================================================
// Macro cycle (singleton row)
// ======================================================================================

// LoadMacroState returns the singleton cycle row, or nil when absent.
func (s *Storage) LoadMacroState() (*domain.MacroState, error) {
	var st domain.MacroState
	err := s.db.First(&st, "id = ?", domain.MacroStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveMacroState replaces the singleton cycle row wholesale.
func (s *Storage) SaveMacroState(st *domain.MacroState) error {
	st.ID = domain.MacroStateID
	return s.db.Save(st).Error
}

// ======================================================================================
// Price points
// ======================================================================================

// AppendPricePoint appends one point to the price sequence.
func (s *Storage) AppendPricePoint(p *domain.PricePoint) error {
	return s.db.Create(p).Error
}

// LatestPricePoint returns the newest point, or nil when the sequence is empty.
func (s *Storage) LatestPricePoint() (*domain.PricePoint, error) {
	var p domain.PricePoint
	err := s.db.Order("id DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PricePointsSince returns all points at or after t, oldest first.
func (s *Storage) PricePointsSince(t time.Time) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	err := s.db.Where("time >= ?", t).Order("id ASC").Find(&points).Error
	return points, err
}

// PrunePricePoints deletes points older than cutoff.
func (s *Storage) PrunePricePoints(cutoff time.Time) error {
	return s.db.Where("time < ?", cutoff).Delete(&domain.PricePoint{}).Error
}

// ======================================================================================
// Pending orders
// ======================================================================================

// CreatePendingOrder inserts a new frozen order.
func (s *Storage) CreatePendingOrder(o *domain.PendingOrder) error {
	return s.db.Create(o).Error
}

// LatestPendingOrder returns the account's most recent pending order of the
// given side (the one with the latest end time), or nil when none exists.
func (s *Storage) LatestPendingOrder(accountID, side string) (*domain.PendingOrder, error) {
	var o domain.PendingOrder
	err := s.db.
		Where("account_id = ? AND side = ?", accountID, side).
		Order("end_time DESC").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// MaturedOrders returns all orders whose end time has passed, oldest first.
func (s *Storage) MaturedOrders(now time.Time) ([]domain.PendingOrder, error) {
	var orders []domain.PendingOrder
	err := s.db.Where("end_time <= ?", now).Order("end_time ASC").Find(&orders).Error
	return orders, err
}

// DeletePendingOrder removes an order by id and reports whether a row was
// actually deleted. A false return means the order was already settled.
func (s *Storage) DeletePendingOrder(id uint64) (bool, error) {
	res := s.db.Delete(&domain.PendingOrder{}, id)
	return res.RowsAffected == 1, res.Error
}

// FrozenShares sums the share count of the account's pending orders of a side.
func (s *Storage) FrozenShares(accountID, side string) (uint64, error) {
	var total uint64
	err := s.db.Model(&domain.PendingOrder{}).
		Select("COALESCE(SUM(shares), 0)").
		Where("account_id = ? AND side = ?", accountID, side).
		Scan(&total).Error
	return total, err
}

// ======================================================================================
// Holdings
// ======================================================================================

// GetHolding returns the account's position, or nil when flat.
func (s *Storage) GetHolding(accountID, symbol string) (*domain.Holding, error) {
	var h domain.Holding
	err := s.db.First(&h, "account_id = ? AND symbol = ?", accountID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// SaveHolding creates or updates a position row.
func (s *Storage) SaveHolding(h *domain.Holding) error {
	return s.db.Save(h).Error
}

// DeleteHolding removes an emptied position row.
func (s *Storage) DeleteHolding(accountID, symbol string) error {
	return s.db.
		Where("account_id = ? AND symbol = ?", accountID, symbol).
		Delete(&domain.Holding{}).Error
}

// ======================================================================================
// Engine settings (key-value)
// ======================================================================================

// SaveSetting stores a runtime setting.
func (s *Storage) SaveSetting(key, value string) error {
	setting := domain.EngineSetting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.Save(&setting).Error
}

// GetSetting returns a setting value, or "" when unset.
func (s *Storage) GetSetting(key string) (string, error) {
	var setting domain.EngineSetting
	err := s.db.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}
