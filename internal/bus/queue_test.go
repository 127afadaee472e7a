package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/pkg/exception"
)

func TestQueueBounded(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(Frame{Payload: []byte("a")}))
	require.NoError(t, q.TryPublish(Frame{Payload: []byte("b")}))
	assert.ErrorIs(t, q.TryPublish(Frame{Payload: []byte("c")}), exception.ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(Frame{}), exception.ErrQueueClosed)

	var got []string
	err := q.Run(t.Context(), func(f Frame) error {
		got = append(got, string(f.Payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueueRunStopsOnHandlerError(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.TryPublish(Frame{Payload: []byte("a")}))
	require.NoError(t, q.TryPublish(Frame{Payload: []byte("b")}))

	boom := errors.New("write failed")
	calls := 0
	err := q.Run(t.Context(), func(Frame) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, q.Run(ctx, func(Frame) error { return nil }), context.Canceled)
}
