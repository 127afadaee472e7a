package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/obs"
	"exchange/pkg/exception"
)

type sliceSource struct {
	mu     sync.Mutex
	events [][]byte
	acked  []string
	done   context.CancelFunc
}

func (s *sliceSource) Next(ctx context.Context) (Delivery, error) {
	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		s.done()
		<-ctx.Done()
		return Delivery{}, ctx.Err()
	}
	data := s.events[0]
	s.events = s.events[1:]
	s.mu.Unlock()

	return NewDelivery(string(data), data, func(context.Context) error {
		s.mu.Lock()
		s.acked = append(s.acked, string(data))
		s.mu.Unlock()
		return nil
	}), nil
}

func (s *sliceSource) Close() error { return nil }

func noSleep(context.Context, time.Duration) error { return nil }

func TestConsumerOutcomes(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	src := &sliceSource{events: [][]byte{[]byte("ok"), []byte("bad"), []byte("orphan"), []byte("flaky"), []byte("ok2")}, done: cancel}

	flaky := 0
	var handled []string
	handler := func(_ context.Context, data []byte) error {
		handled = append(handled, string(data))
		switch string(data) {
		case "bad":
			return exception.ErrMalformedEvent
		case "orphan":
			return exception.ErrOrderNotFound
		case "flaky":
			flaky++
			if flaky < 3 {
				return errors.New("connection reset")
			}
		}
		return nil
	}

	m := obs.NewMetrics()
	c := NewConsumer(obs.StreamSettlement, src, handler, DefaultBackoff(), m)
	c.sleep = noSleep

	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []string{"ok", "bad", "orphan", "flaky", "flaky", "flaky", "ok2"}, handled)
	assert.Equal(t, []string{"ok", "bad", "orphan", "flaky", "ok2"}, src.acked)

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.Outcomes[obs.StreamSettlement][obs.OutcomeApplied])
	assert.EqualValues(t, 1, snap.Outcomes[obs.StreamSettlement][obs.OutcomeMalformed])
	assert.EqualValues(t, 1, snap.Outcomes[obs.StreamSettlement][obs.OutcomeSkipped])
	assert.EqualValues(t, 2, snap.Outcomes[obs.StreamSettlement][obs.OutcomeRetried])
}

func TestConsumerLeavesEventPendingOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	src := &sliceSource{events: [][]byte{[]byte("stuck")}, done: func() {}}

	handler := func(context.Context, []byte) error {
		cancel()
		return errors.New("db unavailable")
	}

	c := NewConsumer(obs.StreamCandle, src, handler, DefaultBackoff(), nil)
	require.NoError(t, c.Run(ctx))
	assert.Empty(t, src.acked)
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(10))

	j := DefaultBackoff()
	for i := 1; i < 10; i++ {
		wait := j.Next(i)
		assert.GreaterOrEqual(t, wait, 80*time.Millisecond)
		assert.LessOrEqual(t, wait, 6*time.Second)
	}
}
