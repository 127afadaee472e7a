package eventlog

import (
	"context"

	"github.com/segmentio/kafka-go"
	yerrors "github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// KafkaOption configures a consumer-group reader on one topic.
type KafkaOption struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaSource reads a topic through a consumer group and commits offsets
// only when a delivery is acknowledged.
type KafkaSource struct {
	reader *kafka.Reader
}

func NewKafkaSource(opt KafkaOption) (*KafkaSource, error) {
	if len(opt.Brokers) == 0 || opt.Topic == "" || opt.GroupID == "" {
		return nil, yerrors.Wrap(exception.ErrInvalidArgument, "kafka brokers, topic and group are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  opt.Brokers,
		Topic:    opt.Topic,
		GroupID:  opt.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: reader}, nil
}

func (s *KafkaSource) Next(ctx context.Context) (Delivery, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Delivery{}, ctx.Err()
		}
		return Delivery{}, yerrors.Wrapf(err, "fetch %s", s.reader.Config().Topic)
	}
	return NewDelivery(string(m.Key), m.Value, func(ctx context.Context) error {
		return s.reader.CommitMessages(ctx, m)
	}), nil
}

func (s *KafkaSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
