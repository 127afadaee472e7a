// Package eventlog reads the durable trade and order-book streams published
// by the matching engine.
package eventlog

import "context"

// Delivery is one event read from a stream. It stays pending in the log
// until Ack is called.
type Delivery struct {
	Key  string
	Data []byte
	ack  func(ctx context.Context) error
}

func NewDelivery(key string, data []byte, ack func(ctx context.Context) error) Delivery {
	return Delivery{Key: key, Data: data, ack: ack}
}

// Ack marks the delivery as processed so the log never redelivers it.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Source yields deliveries in log order. Next blocks until an event is
// available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
	Close() error
}
