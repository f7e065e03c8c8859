package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/kafka"
)

// Producer is the subset of *kafka.Producer used by Kafka.
type Producer interface {
	Produce(ctx context.Context, msg kafka.Msg) error
	Ping(topic string, timeout time.Duration) error
}

// Kafka publishes each event as one record: key is the event name, value the
// data, and ttl and flags travel as headers.
type Kafka struct {
	producer    Producer
	topic       string
	pingTimeout time.Duration
	log         *zap.SugaredLogger
}

func NewKafka(p Producer, topic string, pingTimeout time.Duration, log *zap.SugaredLogger) *Kafka {
	return &Kafka{producer: p, topic: topic, pingTimeout: pingTimeout, log: log}
}

func (k *Kafka) Publish(ctx context.Context, ev eventqueue.Event) error {
	return k.producer.Produce(ctx, kafka.Msg{
		Topic:   k.topic,
		Key:     []byte(ev.Name),
		Value:   []byte(ev.Data),
		Headers: metadata(ev),
	})
}

// Reachable asks the cluster for the topic metadata.
func (k *Kafka) Reachable(ctx context.Context) bool {
	timeout := k.pingTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return false
	}
	if err := k.producer.Ping(k.topic, timeout); err != nil {
		k.log.Debugw("kafka not reachable", "topic", k.topic, "error", err)
		return false
	}
	return true
}
