package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const queueFullRetryDelay = time.Second

// Msg is a single record to produce. An empty Topic means the configured one.
type Msg struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer delivers one message at a time and waits for the broker's
// acknowledgement before returning.
//
// A single background goroutine drains librdkafka's event and log channels and
// reports fatal client errors on Errors. Close must be called to stop it.
type Producer struct {
	producer     *kafka.Producer
	topic        string
	flushTimeout time.Duration
	log          *zap.SugaredLogger

	errCh    chan error
	closedCh chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

// NewProducer connects a producer built from cfg. ctx bounds the background
// goroutine; Close flushes and releases the client.
func NewProducer(ctx context.Context, cfg ProducerConfig, log *zap.SugaredLogger) (*Producer, error) {
	p, err := kafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	flushTimeout := cfg.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}

	kp := &Producer{
		producer:     p,
		topic:        cfg.Topic,
		flushTimeout: flushTimeout,
		log:          log,
		errCh:        make(chan error, 1),
		closedCh:     make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	var logs chan kafka.LogEvent
	if cfg.EnableLogs {
		logs = p.Logs()
	}
	go kp.watch(ctx, logs)

	return kp, nil
}

// Produce sends msg and blocks until the delivery report arrives or ctx is
// done. When the local queue is full it retries every second.
//
// A context error does not mean the message was dropped: the broker may still
// acknowledge it, so the caller's retry can duplicate the event.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	topic := msg.Topic
	if topic == "" {
		topic = q.topic
	}
	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
		Headers:        toHeaders(msg.Headers),
	}

	// Left open: a report may still arrive after ctx is done.
	report := make(chan kafka.Event, 1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := q.producer.Produce(km, report)
		if err == nil {
			break
		}
		if !isQueueFull(err) {
			return classifyProduceError(err)
		}
		q.log.Warnw("producer queue full, retrying", "topic", topic, "delay", queueFullRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullRetryDelay):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-report:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %T", ev)
		}
		if err := m.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		q.log.Debugw("delivered",
			"topic", topic,
			"partition", m.TopicPartition.Partition,
			"offset", m.TopicPartition.Offset)
		return nil
	}
}

// Ping reports whether the cluster answers a metadata request for topic
// within timeout.
func (q *Producer) Ping(topic string, timeout time.Duration) error {
	md, err := q.producer.GetMetadata(&topic, false, int(timeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}
	if len(md.Brokers) == 0 {
		return errors.New("no brokers available")
	}
	return nil
}

// EnsureTopic creates or grows the topic using an admin client that shares
// the producer's connection.
func (q *Producer) EnsureTopic(ctx context.Context, cfg TopicConfig) error {
	admin, err := kafka.NewAdminClientFromProducer(q.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()
	return ensureTopic(ctx, admin, cfg, q.log)
}

// Close stops the background goroutine, flushes for up to the configured
// flush timeout and closes the client. Unflushed messages are lost.
// Later calls do nothing.
func (q *Producer) Close() {
	q.once.Do(func() {
		close(q.closedCh)
		<-q.doneCh

		if pending := q.producer.Flush(int(q.flushTimeout.Milliseconds())); pending > 0 {
			q.log.Warnw("flush incomplete, messages lost", "pending", pending)
		}
		q.producer.Close()
		close(q.errCh)
		q.log.Info("kafka producer closed")
	})
}

// Errors receives at most one fatal client error and is closed by Close.
// After an error the producer is unusable and must be recreated.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) watch(ctx context.Context, logs chan kafka.LogEvent) {
	defer close(q.doneCh)
	events := q.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case l, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			q.log.Debugw("librdkafka", "level", l.Level, "tag", l.Tag, "message", l.Message)
		case ev, ok := <-events:
			if !ok {
				q.fail(errors.New("kafka producer event channel closed"))
				return
			}
			if q.handleEvent(ev) {
				return
			}
		}
	}
}

// handleEvent logs a client event and reports whether it was fatal.
func (q *Producer) handleEvent(ev kafka.Event) bool {
	switch e := ev.(type) {
	case kafka.Error:
		if e.IsFatal() {
			q.fail(fmt.Errorf("kafka client error %d: %w", int(e.Code()), e))
			return true
		}
		// Outages such as ErrAllBrokersDown are retried by the publisher.
		q.log.Warnw("kafka client error", "code", int(e.Code()), "error", e)
	case *kafka.Message:
		// Reports go to the per-message channel; one here has no waiter.
		q.log.Warnw("orphan delivery report", "partition", e.TopicPartition)
	default:
		q.log.Debugw("kafka event", "event", e.String())
	}
	return false
}

func (q *Producer) fail(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("dropping kafka error, one already pending", "error", err)
	}
}

func isQueueFull(err error) bool {
	var kerr kafka.Error
	return errors.As(err, &kerr) && kerr.Code() == kafka.ErrQueueFull
}

func classifyProduceError(err error) error {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return fmt.Errorf("failed to produce: %w", err)
	}
	switch kerr.Code() {
	case kafka.ErrBrokerNotAvailable:
		return fmt.Errorf("broker not available: %w", err)
	case kafka.ErrInvalidMsgSize, kafka.ErrMsgSizeTooLarge:
		return fmt.Errorf("invalid message size: %w", err)
	case kafka.ErrUnknownTopicOrPart, kafka.ErrUnknownTopic:
		return fmt.Errorf("unknown topic or partition: %w", err)
	case kafka.ErrAuthentication:
		return fmt.Errorf("authentication error: %w", err)
	default:
		return fmt.Errorf("failed to produce: %w", err)
	}
}

func toHeaders(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(m[k])})
	}
	return headers
}
