// Package store is the durable gorm-backed repository for orders, trades,
// the balance ledger and candles.
package store

import (
	"context"

	"gorm.io/gorm"

	"exchange/internal/model"
	"exchange/pkg/exception"
)

// Store wraps a gorm handle. Inside Transaction the handle is the open
// transaction, so every method joins it.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table the pipeline owns.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return exception.ErrNilInstance
	}
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Order{},
		&model.AccountBalance{},
		&model.BalanceEntry{},
		&model.Trade{},
		&model.Candle{},
	)
}

// Transaction runs fn in one database transaction. Any error returned by fn
// rolls back every write made through the Store passed to it.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s == nil || s.db == nil {
		return exception.ErrNilInstance
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
