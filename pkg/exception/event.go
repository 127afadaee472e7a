package exception

import "github.com/yanun0323/errors"

var (
	ErrMalformedEvent = errors.New("event: malformed payload")
	ErrInvalidAmount  = errors.New("event: invalid decimal amount")
)
