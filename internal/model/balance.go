package model

import (
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/model/enum"
)

// AccountBalance holds the spendable and reserved amount of one asset for one user.
type AccountBalance struct {
	UserID    string          `gorm:"primaryKey;type:varchar(64)"`
	Asset     string          `gorm:"primaryKey;type:varchar(16)"`
	Available decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Locked    decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Version   int64           `gorm:"not null"`
	UpdatedAt time.Time
}

func (AccountBalance) TableName() string {
	return "account_balances"
}

// Total is available plus locked.
func (b AccountBalance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// BalanceEntry is one append-only ledger row. Amount is the signed change of
// the balance total, except for LOCK and UNLOCK which move Amount between
// available and locked and leave the total alone. Summing Amount over the
// other entry types gives the total.
type BalanceEntry struct {
	ID            string             `gorm:"primaryKey;type:varchar(36)"`
	UserID        string             `gorm:"type:varchar(64);index:idx_balance_entries_owner;not null"`
	Asset         string             `gorm:"type:varchar(16);index:idx_balance_entries_owner;not null"`
	Amount        decimal.Decimal    `gorm:"type:numeric(36,18);not null"`
	BalanceAfter  decimal.Decimal    `gorm:"type:numeric(36,18);not null"`
	EntryType     enum.EntryType     `gorm:"type:varchar(16);not null"`
	ReferenceType enum.ReferenceType `gorm:"type:varchar(16)"`
	ReferenceID   string             `gorm:"type:varchar(64);index"`
	CreatedAt     time.Time
}

func (BalanceEntry) TableName() string {
	return "balance_entries"
}
