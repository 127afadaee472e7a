package conn

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultNATSURL           = nats.DefaultURL
	defaultNATSReconnectWait = 2 * time.Second
	defaultNATSTimeout       = 5 * time.Second
)

// NATSOption defines connection options for a NATS server.
type NATSOption struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NewNATS connects to NATS and keeps reconnecting forever on connection loss.
func NewNATS(option NATSOption) (*nats.Conn, error) {
	url := option.URL
	if url == "" {
		url = defaultNATSURL
	}

	wait := option.ReconnectWait
	if wait <= 0 {
		wait = defaultNATSReconnectWait
	}

	timeout := option.Timeout
	if timeout <= 0 {
		timeout = defaultNATSTimeout
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logs.Warnf("nats disconnected, err: %+v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logs.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if option.Name != "" {
		opts = append(opts, nats.Name(option.Name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", url)
	}

	return nc, nil
}
