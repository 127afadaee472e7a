package exception

import "github.com/yanun0323/errors"

// Settlement errors. All of them describe a trade that can never be applied,
// so a consumer acknowledges and skips the event.
var (
	ErrOrderNotFound         = errors.New("settlement: order not found")
	ErrDuplicateTrade        = errors.New("settlement: trade already settled")
	ErrOverfill              = errors.New("settlement: fill exceeds remaining quantity")
	ErrInvalidTransition     = errors.New("settlement: invalid order status transition")
	ErrSideMismatch          = errors.New("settlement: maker and taker on the same side")
	ErrInsufficientLocked    = errors.New("settlement: insufficient locked balance")
	ErrInsufficientAvailable = errors.New("settlement: insufficient available balance")
)
