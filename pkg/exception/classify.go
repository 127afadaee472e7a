package exception

import "errors"

var permanent = []error{
	ErrMalformedEvent,
	ErrInvalidAmount,
	ErrOrderNotFound,
	ErrDuplicateTrade,
	ErrOverfill,
	ErrInvalidTransition,
	ErrSideMismatch,
	ErrInsufficientLocked,
	ErrInsufficientAvailable,
}

// IsPermanent reports whether redelivering the event that produced err can
// never succeed. Such events are acknowledged and skipped instead of retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
