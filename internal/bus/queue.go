package bus

import (
	"context"
	"sync/atomic"

	"exchange/pkg/exception"
)

// Frame is one encoded message waiting to be written to a connection.
type Frame struct {
	Channel string
	Payload []byte
}

// Queue is a bounded, non-blocking frame queue with a single consumer.
type Queue struct {
	ch     chan Frame
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Frame, capacity)}
}

// TryPublish enqueues a frame without blocking. Concurrent producers must
// not race with Close; callers serialize the two.
func (q *Queue) TryPublish(f Frame) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- f:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Len is the number of frames waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new frames. Frames already queued are
// still handed to Run.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes frames until the context is done, the queue is closed and
// drained, or handler fails. The handler error is returned.
func (q *Queue) Run(ctx context.Context, handler func(Frame) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-q.ch:
			if !ok {
				return nil
			}
			if err := handler(f); err != nil {
				return err
			}
		}
	}
}
