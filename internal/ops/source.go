package ops

import (
	"github.com/nats-io/nats.go"

	"exchange/internal/eventlog"
)

// OpenSource opens the configured event log for topic as the durable
// consumer (or consumer group) named consumer.
func (c Config) OpenSource(nc *nats.Conn, topic, consumer string) (eventlog.Source, error) {
	if c.EventLog.Driver == DriverKafka {
		src, err := eventlog.NewKafkaSource(eventlog.KafkaOption{
			Brokers: c.Kafka.Brokers,
			Topic:   topic,
			GroupID: consumer,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	src, err := eventlog.NewJetStreamSource(nc, eventlog.JetStreamOption{
		Stream:    c.EventLog.Stream,
		Subject:   topic,
		Durable:   consumer,
		FetchWait: c.EventLog.FetchWait.Std(),
		AckWait:   c.EventLog.AckWait.Std(),
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}
