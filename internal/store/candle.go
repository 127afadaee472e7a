package store

import (
	"context"
	"errors"

	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exchange/internal/model"
)

// UpsertCandle writes c keyed by (symbol, timeframe, open_time). An existing
// row is widened: high and low never shrink, close, volumes and count are
// overwritten, and closed is sticky.
func (s *Store) UpsertCandle(ctx context.Context, c model.Candle) error {
	return s.Transaction(ctx, func(tx *Store) error {
		db := tx.conn(ctx)

		var stored model.Candle
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&stored, "symbol = ? AND timeframe = ? AND open_time = ?", c.Symbol, c.Timeframe, c.OpenTime).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&c).Error; err != nil {
				return yerrors.Wrapf(err, "insert candle %s %s %d", c.Symbol, c.Timeframe, c.OpenTime)
			}
			return nil
		}
		if err != nil {
			return yerrors.Wrapf(err, "lock candle %s %s %d", c.Symbol, c.Timeframe, c.OpenTime)
		}

		merged := stored.Widen(c)
		err = db.Model(&model.Candle{}).
			Where("symbol = ? AND timeframe = ? AND open_time = ?", c.Symbol, c.Timeframe, c.OpenTime).
			Updates(map[string]any{
				"high":         merged.High,
				"low":          merged.Low,
				"close":        merged.Close,
				"volume":       merged.Volume,
				"quote_volume": merged.QuoteVolume,
				"trade_count":  merged.TradeCount,
				"closed":       merged.Closed,
			}).Error
		if err != nil {
			return yerrors.Wrapf(err, "update candle %s %s %d", c.Symbol, c.Timeframe, c.OpenTime)
		}
		return nil
	})
}

// OpenCandles returns the most recent unclosed candle of every
// (symbol, timeframe) pair.
func (s *Store) OpenCandles(ctx context.Context) ([]model.Candle, error) {
	var rows []model.Candle
	err := s.conn(ctx).Where("closed = ?", false).Order("open_time ASC").Find(&rows).Error
	if err != nil {
		return nil, yerrors.Wrap(err, "list open candles")
	}

	type key struct{ symbol, timeframe string }
	latest := make(map[key]int, len(rows))
	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		k := key{r.Symbol, r.Timeframe}
		if i, ok := latest[k]; ok {
			out[i] = r
			continue
		}
		latest[k] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// Candles returns the candles of (symbol, timeframe), oldest first.
func (s *Store) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	var rows []model.Candle
	q := s.conn(ctx).Where("symbol = ? AND timeframe = ?", symbol, timeframe).Order("open_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, yerrors.Wrapf(err, "list candles %s %s", symbol, timeframe)
	}
	return rows, nil
}
