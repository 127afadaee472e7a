package store

import (
	"context"
	"errors"

	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exchange/internal/model"
	"exchange/pkg/exception"
)

// CreateOrder inserts a new order. Orders are owned by the placement
// service; this exists for seeding and tooling.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := s.conn(ctx).Create(o).Error; err != nil {
		return yerrors.Wrapf(err, "create order %s", o.ID)
	}
	return nil
}

// Order loads an order without locking it.
func (s *Store) Order(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	err := s.conn(ctx).Take(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, exception.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, yerrors.Wrapf(err, "load order %s", id)
	}
	return o, nil
}

// LockOrder loads an order with SELECT ... FOR UPDATE. It must run inside a
// transaction to hold the lock.
func (s *Store) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Take(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, exception.ErrOrderNotFound
	}
	if err != nil {
		return nil, yerrors.Wrapf(err, "lock order %s", id)
	}
	return &o, nil
}

// SaveFill persists the fill fields and status of o.
func (s *Store) SaveFill(ctx context.Context, o *model.Order) error {
	err := s.conn(ctx).Model(&model.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
		"filled_quantity":    o.FilledQuantity,
		"remaining_quantity": o.RemainingQuantity,
		"status":             o.Status,
	}).Error
	if err != nil {
		return yerrors.Wrapf(err, "save fill of order %s", o.ID)
	}
	return nil
}
