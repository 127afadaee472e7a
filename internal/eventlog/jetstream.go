package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	yerrors "github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

const defaultFetchWait = 5 * time.Second

// JetStreamOption binds a durable pull consumer on a stream subject.
type JetStreamOption struct {
	Stream    string
	Subject   string
	Durable   string
	FetchWait time.Duration
	AckWait   time.Duration
}

// JetStreamSource pulls one message at a time from a durable JetStream
// consumer. With a single pending message the log order is preserved.
type JetStreamSource struct {
	sub  *nats.Subscription
	wait time.Duration
}

func NewJetStreamSource(nc *nats.Conn, opt JetStreamOption) (*JetStreamSource, error) {
	if nc == nil {
		return nil, exception.ErrNilInstance
	}
	if opt.Subject == "" || opt.Durable == "" {
		return nil, yerrors.Wrap(exception.ErrInvalidArgument, "jetstream subject and durable are required")
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, yerrors.Wrap(err, "jetstream context")
	}

	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(1),
	}
	if opt.Stream != "" {
		opts = append(opts, nats.BindStream(opt.Stream))
	}
	if opt.AckWait > 0 {
		opts = append(opts, nats.AckWait(opt.AckWait))
	}

	sub, err := js.PullSubscribe(opt.Subject, opt.Durable, opts...)
	if err != nil {
		return nil, yerrors.Wrapf(err, "pull subscribe %s as %s", opt.Subject, opt.Durable)
	}

	wait := opt.FetchWait
	if wait <= 0 {
		wait = defaultFetchWait
	}
	return &JetStreamSource{sub: sub, wait: wait}, nil
}

func (s *JetStreamSource) Next(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.wait)
		msgs, err := s.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			return Delivery{}, yerrors.Wrap(err, "fetch")
		}
		if len(msgs) == 0 {
			continue
		}

		m := msgs[0]
		return NewDelivery(m.Subject, m.Data, func(ctx context.Context) error {
			return m.AckSync(nats.Context(ctx))
		}), nil
	}
}

func (s *JetStreamSource) Close() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
