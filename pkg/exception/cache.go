package exception

import "github.com/yanun0323/errors"

var (
	ErrCacheMiss       = errors.New("cache: key not found")
	ErrCacheClosed     = errors.New("cache: closed")
	ErrInvalidSnapshot = errors.New("orderbook: invalid cached snapshot")
)
