package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket. OpenTime is the bucket start in unix milliseconds.
type Candle struct {
	Symbol      string          `gorm:"primaryKey;type:varchar(32)"`
	Timeframe   string          `gorm:"primaryKey;type:varchar(8)"`
	OpenTime    int64           `gorm:"primaryKey;autoIncrement:false"`
	Open        decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	High        decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Low         decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Close       decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Volume      decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	QuoteVolume decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	TradeCount  int64           `gorm:"not null"`
	Closed      bool            `gorm:"index;not null"`
	UpdatedAt   time.Time
}

func (Candle) TableName() string {
	return "candles"
}

// Widen merges c into the stored row. High and low only ever widen, close,
// volumes and count are taken from c, and a closed row stays closed.
func (stored Candle) Widen(c Candle) Candle {
	merged := c
	merged.Open = stored.Open
	merged.High = decimal.Max(stored.High, c.High)
	merged.Low = decimal.Min(stored.Low, c.Low)
	merged.Closed = stored.Closed || c.Closed
	return merged
}
