package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exchange/internal/model"
	"exchange/internal/model/enum"
	"exchange/pkg/exception"
)

// Reference names the order, trade or transfer behind a ledger mutation.
type Reference struct {
	Type enum.ReferenceType
	ID   string
}

func TradeRef(id string) Reference {
	return Reference{Type: enum.ReferenceTrade, ID: id}
}

func OrderRef(id string) Reference {
	return Reference{Type: enum.ReferenceOrder, ID: id}
}

// Balance returns the current balance of (userID, asset). A missing row is
// reported as a zero balance.
func (s *Store) Balance(ctx context.Context, userID, asset string) (model.AccountBalance, error) {
	var b model.AccountBalance
	err := s.conn(ctx).Take(&b, "user_id = ? AND asset = ?", userID, asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AccountBalance{UserID: userID, Asset: asset}, nil
	}
	if err != nil {
		return model.AccountBalance{}, yerrors.Wrapf(err, "load balance %s/%s", userID, asset)
	}
	return b, nil
}

// Entries returns the ledger of (userID, asset) in insertion order.
func (s *Store) Entries(ctx context.Context, userID, asset string) ([]model.BalanceEntry, error) {
	var entries []model.BalanceEntry
	err := s.conn(ctx).
		Where("user_id = ? AND asset = ?", userID, asset).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, yerrors.Wrapf(err, "list entries %s/%s", userID, asset)
	}
	return entries, nil
}

// EntriesByReference returns every ledger row caused by ref.
func (s *Store) EntriesByReference(ctx context.Context, ref Reference) ([]model.BalanceEntry, error) {
	var entries []model.BalanceEntry
	err := s.conn(ctx).
		Where("reference_type = ? AND reference_id = ?", ref.Type, ref.ID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, yerrors.Wrapf(err, "list entries of %s %s", ref.Type, ref.ID)
	}
	return entries, nil
}

// Deposit adds amount to available.
func (s *Store) Deposit(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Reference) error {
	return s.mutate(ctx, userID, asset, true, func(b *model.AccountBalance) (model.BalanceEntry, error) {
		if !amount.IsPositive() {
			return model.BalanceEntry{}, exception.ErrInvalidAmount
		}
		b.Available = b.Available.Add(amount)
		return model.BalanceEntry{Amount: amount, EntryType: enum.EntryDeposit}, nil
	}, ref)
}

// Lock moves amount from available to locked.
func (s *Store) Lock(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Reference) error {
	return s.mutate(ctx, userID, asset, false, func(b *model.AccountBalance) (model.BalanceEntry, error) {
		if !amount.IsPositive() {
			return model.BalanceEntry{}, exception.ErrInvalidAmount
		}
		if b.Available.LessThan(amount) {
			return model.BalanceEntry{}, exception.ErrInsufficientAvailable
		}
		b.Available = b.Available.Sub(amount)
		b.Locked = b.Locked.Add(amount)
		return model.BalanceEntry{Amount: amount, EntryType: enum.EntryLock}, nil
	}, ref)
}

// Credit adds amount to available as a trade proceed. The balance row is
// created when the user never held the asset.
func (s *Store) Credit(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Reference) error {
	return s.mutate(ctx, userID, asset, true, func(b *model.AccountBalance) (model.BalanceEntry, error) {
		if !amount.IsPositive() {
			return model.BalanceEntry{}, exception.ErrInvalidAmount
		}
		b.Available = b.Available.Add(amount)
		return model.BalanceEntry{Amount: amount, EntryType: enum.EntryTradeCredit}, nil
	}, ref)
}

// DebitLocked releases amount from locked and pays it out of the account.
func (s *Store) DebitLocked(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Reference) error {
	return s.mutate(ctx, userID, asset, false, func(b *model.AccountBalance) (model.BalanceEntry, error) {
		if !amount.IsPositive() {
			return model.BalanceEntry{}, exception.ErrInvalidAmount
		}
		if b.Locked.LessThan(amount) {
			return model.BalanceEntry{}, exception.ErrInsufficientLocked
		}
		b.Locked = b.Locked.Sub(amount)
		return model.BalanceEntry{Amount: amount.Neg(), EntryType: enum.EntryTradeDebit}, nil
	}, ref)
}

// ChargeFee takes amount out of available.
func (s *Store) ChargeFee(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Reference) error {
	return s.mutate(ctx, userID, asset, false, func(b *model.AccountBalance) (model.BalanceEntry, error) {
		if !amount.IsPositive() {
			return model.BalanceEntry{}, exception.ErrInvalidAmount
		}
		if b.Available.LessThan(amount) {
			return model.BalanceEntry{}, exception.ErrInsufficientAvailable
		}
		b.Available = b.Available.Sub(amount)
		return model.BalanceEntry{Amount: amount.Neg(), EntryType: enum.EntryFee}, nil
	}, ref)
}

// mutate locks the (userID, asset) row, applies fn, bumps the version and
// appends exactly one ledger entry. Callers that need atomicity with other
// writes run it inside Transaction.
func (s *Store) mutate(ctx context.Context, userID, asset string, create bool, fn func(*model.AccountBalance) (model.BalanceEntry, error), ref Reference) error {
	db := s.conn(ctx)

	var b model.AccountBalance
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&b, "user_id = ? AND asset = ?", userID, asset).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !create {
			return yerrors.Wrapf(exception.ErrInsufficientLocked, "no balance %s/%s", userID, asset)
		}
		b = model.AccountBalance{UserID: userID, Asset: asset, Available: decimal.Zero, Locked: decimal.Zero}
		if err := db.Create(&b).Error; err != nil {
			return yerrors.Wrapf(err, "create balance %s/%s", userID, asset)
		}
	case err != nil:
		return yerrors.Wrapf(err, "lock balance %s/%s", userID, asset)
	}

	entry, err := fn(&b)
	if err != nil {
		return yerrors.Wrapf(err, "%s/%s", userID, asset)
	}

	version := b.Version
	res := db.Model(&model.AccountBalance{}).
		Where("user_id = ? AND asset = ? AND version = ?", userID, asset, version).
		Updates(map[string]any{
			"available": b.Available,
			"locked":    b.Locked,
			"version":   version + 1,
		})
	if res.Error != nil {
		return yerrors.Wrapf(res.Error, "update balance %s/%s", userID, asset)
	}
	if res.RowsAffected != 1 {
		return yerrors.Errorf("update balance %s/%s: version %d changed concurrently", userID, asset, version)
	}

	entry.ID = uuid.NewString()
	entry.UserID = userID
	entry.Asset = asset
	entry.BalanceAfter = b.Available.Add(b.Locked)
	entry.ReferenceType = ref.Type
	entry.ReferenceID = ref.ID
	if err := db.Create(&entry).Error; err != nil {
		return yerrors.Wrapf(err, "append entry %s/%s", userID, asset)
	}
	return nil
}

// Replay rebuilds (available, locked) from a ledger in insertion order.
func Replay(entries []model.BalanceEntry) (available, locked decimal.Decimal) {
	for _, e := range entries {
		switch e.EntryType {
		case enum.EntryLock:
			available = available.Sub(e.Amount)
			locked = locked.Add(e.Amount)
		case enum.EntryUnlock:
			available = available.Add(e.Amount)
			locked = locked.Sub(e.Amount)
		case enum.EntryTradeDebit:
			locked = locked.Add(e.Amount)
		default:
			available = available.Add(e.Amount)
		}
	}
	return available, locked
}
