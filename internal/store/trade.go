package store

import (
	"context"
	"errors"

	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"

	"exchange/internal/model"
)

// TradeExists reports whether a trade with id was already recorded.
func (s *Store) TradeExists(ctx context.Context, id string) (bool, error) {
	var t model.Trade
	err := s.conn(ctx).Select("id").Take(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, yerrors.Wrapf(err, "lookup trade %s", id)
	}
	return true, nil
}

// InsertTrade records an immutable trade row. The primary key on id rejects
// a second insert of the same trade.
func (s *Store) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.conn(ctx).Create(t).Error; err != nil {
		return yerrors.Wrapf(err, "insert trade %s", t.ID)
	}
	return nil
}

// Trades returns the trades of symbol, most recent first.
func (s *Store) Trades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	q := s.conn(ctx).Where("symbol = ?", symbol).Order("executed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, yerrors.Wrapf(err, "list trades of %s", symbol)
	}
	return trades, nil
}
