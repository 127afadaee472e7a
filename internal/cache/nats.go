package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	yerrors "github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

const (
	defaultBucket        = "market-data"
	defaultSubjectPrefix = "md"
	defaultTTL           = time.Hour
)

// NATSOption configures the NATS backed cache.
type NATSOption struct {
	Bucket        string
	SubjectPrefix string
	TTL           time.Duration
}

// NATS keeps cache entries in a JetStream key-value bucket and carries
// pub/sub over core NATS subjects "<prefix>.<channel>".
type NATS struct {
	nc     *nats.Conn
	kv     nats.KeyValue
	prefix string
}

var keyReplacer = strings.NewReplacer(":", ".", " ", "_")

// NewNATS binds the key-value bucket, creating it with the configured TTL
// when it does not exist.
func NewNATS(nc *nats.Conn, opt NATSOption) (*NATS, error) {
	if nc == nil {
		return nil, exception.ErrNilInstance
	}

	bucket := opt.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	prefix := opt.SubjectPrefix
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	ttl := opt.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, yerrors.Wrap(err, "jetstream context")
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			TTL:     ttl,
			History: 1,
		})
	}
	if err != nil {
		return nil, yerrors.Wrapf(err, "bind kv bucket %s", bucket)
	}

	return &NATS{nc: nc, kv: kv, prefix: prefix}, nil
}

func (n *NATS) Get(_ context.Context, key string) ([]byte, error) {
	if n == nil {
		return nil, exception.ErrNilInstance
	}
	entry, err := n.kv.Get(keyReplacer.Replace(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, exception.ErrCacheMiss
	}
	if err != nil {
		return nil, yerrors.Wrapf(err, "kv get %s", key)
	}
	return entry.Value(), nil
}

func (n *NATS) Set(_ context.Context, key string, value []byte) error {
	if n == nil {
		return exception.ErrNilInstance
	}
	if _, err := n.kv.Put(keyReplacer.Replace(key), value); err != nil {
		return yerrors.Wrapf(err, "kv put %s", key)
	}
	return nil
}

func (n *NATS) Publish(_ context.Context, channel string, payload []byte) error {
	if n == nil {
		return exception.ErrNilInstance
	}
	if err := n.nc.Publish(n.prefix+"."+channel, payload); err != nil {
		return yerrors.Wrapf(err, "publish %s", channel)
	}
	return nil
}

func (n *NATS) Subscribe(_ context.Context, handler Handler) (func(), error) {
	if n == nil {
		return nil, exception.ErrNilInstance
	}
	strip := n.prefix + "."
	sub, err := n.nc.Subscribe(strip+">", func(m *nats.Msg) {
		handler(strings.TrimPrefix(m.Subject, strip), m.Data)
	})
	if err != nil {
		return nil, yerrors.Wrapf(err, "subscribe %s>", strip)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
