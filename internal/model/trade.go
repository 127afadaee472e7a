package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one match. ID is the matching engine's trade id.
type Trade struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)"`
	Symbol        string          `gorm:"type:varchar(32);index;not null"`
	Price         decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Quantity      decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	QuoteQuantity decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	MakerOrderID  string          `gorm:"type:varchar(64);index;not null"`
	TakerOrderID  string          `gorm:"type:varchar(64);index;not null"`
	MakerUserID   string          `gorm:"type:varchar(64);not null"`
	TakerUserID   string          `gorm:"type:varchar(64);not null"`
	IsBuyerMaker  bool            `gorm:"not null"`
	MakerFee      decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	TakerFee      decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	ExecutedAt    time.Time       `gorm:"index;not null"`
	CreatedAt     time.Time
}

func (Trade) TableName() string {
	return "trades"
}
