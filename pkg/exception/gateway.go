package exception

import "errors"

// Gateway errors
var (
	ErrQueueFull       = errors.New("gateway: outbound queue full")
	ErrQueueClosed     = errors.New("gateway: outbound queue closed")
	ErrInvalidChannel  = errors.New("gateway: invalid channel")
	ErrUnknownChannel  = errors.New("gateway: unknown channel topic")
	ErrGatewayShutdown = errors.New("gateway: shutting down")
)
