package model

import (
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/model/enum"
	"exchange/pkg/exception"
)

// Order is a user order as persisted by the order-placement service.
// Settlement only touches the fill fields and the status.
type Order struct {
	ID                string              `gorm:"primaryKey;type:varchar(64)"`
	UserID            string              `gorm:"type:varchar(64);index;not null"`
	Symbol            string              `gorm:"type:varchar(32);index;not null"`
	Side              enum.OrderSide      `gorm:"type:varchar(8);not null"`
	Type              enum.OrderType      `gorm:"type:varchar(8);not null"`
	Price             decimal.NullDecimal `gorm:"type:numeric(36,18)"`
	Quantity          decimal.Decimal     `gorm:"type:numeric(36,18);not null"`
	FilledQuantity    decimal.Decimal     `gorm:"type:numeric(36,18);not null"`
	RemainingQuantity decimal.Decimal     `gorm:"type:numeric(36,18);not null"`
	Status            enum.OrderStatus    `gorm:"type:varchar(16);index;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Order) TableName() string {
	return "orders"
}

// ApplyFill adds qty to the filled quantity and moves the status forward.
// The order is left untouched when an error is returned.
func (o *Order) ApplyFill(qty decimal.Decimal) error {
	if o == nil {
		return exception.ErrNilInstance
	}
	if !qty.IsPositive() {
		return exception.ErrInvalidAmount
	}
	if o.Status.IsTerminal() {
		return exception.ErrInvalidTransition
	}
	if qty.GreaterThan(o.RemainingQuantity) {
		return exception.ErrOverfill
	}

	filled := o.FilledQuantity.Add(qty)
	remaining := o.Quantity.Sub(filled)

	next := enum.OrderStatusPartial
	if !remaining.IsPositive() {
		next = enum.OrderStatusFilled
	}
	if !o.Status.CanTransit(next) {
		return exception.ErrInvalidTransition
	}

	o.FilledQuantity = filled
	o.RemainingQuantity = remaining
	o.Status = next
	return nil
}
