package eventlogger

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// kafkaSink publishes every event to a single topic, keyed by event type so
// consumers interested in one kind of event read one partition stream.
type kafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *kafkaSink {
	return &kafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (s *kafkaSink) Save(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Type),
		Value: data,
	})
}

func (s *kafkaSink) Close() error {
	return s.writer.Close()
}

var _ Sink = (*kafkaSink)(nil)
