package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"exchange/internal/obs"
	"exchange/pkg/exception"
)

// Handler applies one event. A permanent error (see exception.IsPermanent)
// acknowledges and skips the event; any other error is retried.
type Handler func(ctx context.Context, data []byte) error

// Consumer drives one Source sequentially: an event is fully handled and
// acknowledged before the next one is read.
type Consumer struct {
	stream  obs.Stream
	source  Source
	handler Handler
	backoff Backoff
	metrics *obs.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewConsumer(stream obs.Stream, source Source, handler Handler, backoff Backoff, metrics *obs.Metrics) *Consumer {
	return &Consumer{
		stream:  stream,
		source:  source,
		handler: handler,
		backoff: backoff,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Run consumes until ctx is done. A delivery interrupted by shutdown stays
// unacknowledged and is redelivered on the next start.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.source == nil || c.handler == nil {
		return exception.ErrNilInstance
	}
	logs.Infof("%s consumer started", c.stream)
	defer logs.Infof("%s consumer stopped", c.stream)

	failures := 0
	for {
		d, err := c.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			wait := c.backoff.Next(failures)
			logs.Errorf("%s consumer read failed, retry in %s, err: %+v", c.stream, wait, err)
			if c.sleep(ctx, wait) != nil {
				return nil
			}
			continue
		}
		failures = 0

		if !c.process(ctx, d) {
			return nil
		}
	}
}

// process handles one delivery and reports false when shutdown interrupted it.
func (c *Consumer) process(ctx context.Context, d Delivery) bool {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := c.handler(ctx, d.Data)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			c.metrics.ObserveEvent(c.stream, obs.OutcomeApplied, elapsed)
		case errors.Is(err, exception.ErrMalformedEvent) || errors.Is(err, exception.ErrInvalidAmount):
			c.metrics.ObserveEvent(c.stream, obs.OutcomeMalformed, elapsed)
			logs.Errorf("%s consumer dropped malformed event %s, err: %+v", c.stream, d.Key, err)
		case exception.IsPermanent(err):
			c.metrics.ObserveEvent(c.stream, obs.OutcomeSkipped, elapsed)
			logs.Warnf("%s consumer skipped event %s, err: %+v", c.stream, d.Key, err)
		default:
			if ctx.Err() != nil {
				return false
			}
			c.metrics.ObserveEvent(c.stream, obs.OutcomeRetried, 0)
			wait := c.backoff.Next(attempt)
			logs.Errorf("%s consumer attempt %d of event %s failed, retry in %s, err: %+v", c.stream, attempt, d.Key, wait, err)
			if c.sleep(ctx, wait) != nil {
				return false
			}
			continue
		}

		if err := d.Ack(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			logs.Errorf("%s consumer ack of event %s failed, err: %+v", c.stream, d.Key, err)
		}
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
