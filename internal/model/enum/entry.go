package enum

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryDeposit     EntryType = "DEPOSIT"
	EntryWithdraw    EntryType = "WITHDRAW"
	EntryLock        EntryType = "LOCK"
	EntryUnlock      EntryType = "UNLOCK"
	EntryTradeCredit EntryType = "TRADE_CREDIT"
	EntryTradeDebit  EntryType = "TRADE_DEBIT"
	EntryFee         EntryType = "FEE"
)

func (t EntryType) IsAvailable() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryLock, EntryUnlock, EntryTradeCredit, EntryTradeDebit, EntryFee:
		return true
	default:
		return false
	}
}

// ReferenceType names what caused a ledger entry.
type ReferenceType string

const (
	ReferenceOrder    ReferenceType = "ORDER"
	ReferenceTrade    ReferenceType = "TRADE"
	ReferenceTransfer ReferenceType = "TRANSFER"
)
