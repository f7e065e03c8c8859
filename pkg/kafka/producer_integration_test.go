//go:build integration
// +build integration

package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testKafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/ava-labs/publish-queue/pkg/kafka/testutils"
)

const (
	kafkaImage  = "confluentinc/confluent-local:7.5.0"
	testTimeout = 30 * time.Second
)

func setupKafka(t *testing.T, ctx context.Context) string {
	kafkaContainer, err := testKafka.Run(ctx, kafkaImage, testKafka.WithClusterID("test-cluster"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(kafkaContainer); err != nil {
			t.Logf("failed to terminate kafka container: %s", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	return brokers[0]
}

func TestProducer_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	brokers := setupKafka(t, ctx)
	log := testutils.NewTestLogger(t)

	cfg := ProducerConfig{
		BootstrapServers:  brokers,
		Topic:             "events",
		ClientID:          "pubq-test",
		PingTimeout:       5 * time.Second,
		NumPartitions:     2,
		ReplicationFactor: 1,
		FlushTimeout:      5 * time.Second,
	}
	require.NoError(t, cfg.Validate())

	producer, err := NewProducer(ctx, cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	// ============================================================================
	// Topic management
	// ============================================================================

	require.NoError(t, producer.EnsureTopic(ctx, cfg.TopicConfig()))
	require.NoError(t, producer.EnsureTopic(ctx, cfg.TopicConfig()), "second call is a no-op")

	cfg.NumPartitions = 3
	require.NoError(t, producer.EnsureTopic(ctx, cfg.TopicConfig()), "partitions can grow")

	cfg.NumPartitions = 1
	require.ErrorIs(t, producer.EnsureTopic(ctx, cfg.TopicConfig()), ErrPartitionShrink)

	require.NoError(t, producer.Ping(cfg.Topic, cfg.PingTimeout))

	// ============================================================================
	// Produce with headers
	// ============================================================================

	pctx, pcancel := context.WithTimeout(ctx, testTimeout)
	defer pcancel()
	err = producer.Produce(pctx, Msg{
		Topic:   cfg.Topic,
		Key:     []byte("door-open"),
		Value:   []byte("front"),
		Headers: map[string]string{"ttl": "60", "flags": "0"},
	})
	require.NoError(t, err)

	consumer, err := cKafka.NewConsumer(&cKafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          "pubq-test",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(cfg.Topic, nil))

	msg, err := consumer.ReadMessage(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "door-open", string(msg.Key))
	assert.Equal(t, "front", string(msg.Value))
	assert.ElementsMatch(t, []cKafka.Header{
		{Key: "flags", Value: []byte("0")},
		{Key: "ttl", Value: []byte("60")},
	}, msg.Headers)
}
