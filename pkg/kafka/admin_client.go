package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// ErrPartitionShrink is returned by EnsureTopic when the topic already has more
// partitions than configured. Kafka cannot remove partitions.
var ErrPartitionShrink = errors.New("topic has more partitions than configured")

// topicAdmin is the subset of *kafka.AdminClient used to manage the event topic.
type topicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

// TopicConfig describes the topic events are published to.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// lookupTopic returns the topic's metadata, or nil when the broker does not know it.
func lookupTopic(admin topicAdmin, name string) (*kafka.TopicMetadata, error) {
	md, err := admin.GetMetadata(&name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", name, err)
	}

	tm, ok := md.Topics[name]
	if !ok || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", name, tm.Error)
	}
	return &tm, nil
}

// ensureTopic creates the topic when missing and grows its partition count when
// it is below the configured value. A replication factor mismatch is only
// logged; a partition count above the configured value is ErrPartitionShrink.
func ensureTopic(ctx context.Context, admin topicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	tm, err := lookupTopic(admin, cfg.Name)
	if err != nil {
		return err
	}
	if tm == nil {
		results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
			Topic:             cfg.Name,
			NumPartitions:     cfg.NumPartitions,
			ReplicationFactor: cfg.ReplicationFactor,
		}})
		if err != nil {
			return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
		}
		// Another producer may have created it between lookup and create.
		if err := checkResults(results, kafka.ErrTopicAlreadyExists); err != nil {
			return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
		}
		log.Infow("created topic",
			"topic", cfg.Name,
			"partitions", cfg.NumPartitions,
			"replicationFactor", cfg.ReplicationFactor)
		return nil
	}

	partitions := len(tm.Partitions)
	if rf := replicationFactor(tm); rf != cfg.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", cfg.Name,
			"current", rf,
			"desired", cfg.ReplicationFactor)
	}

	switch {
	case partitions < cfg.NumPartitions:
		results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
			Topic:      cfg.Name,
			IncreaseTo: cfg.NumPartitions,
		}})
		if err != nil {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", cfg.Name, err)
		}
		if err := checkResults(results); err != nil {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", cfg.Name, err)
		}
		log.Infow("increased partitions", "topic", cfg.Name, "from", partitions, "to", cfg.NumPartitions)
		return nil
	case partitions > cfg.NumPartitions:
		return fmt.Errorf("%w: topic %q has %d, want %d", ErrPartitionShrink, cfg.Name, partitions, cfg.NumPartitions)
	default:
		log.Debugw("topic ready", "topic", cfg.Name, "partitions", partitions)
		return nil
	}
}

// checkResults returns the first per-topic error whose code is not ignored.
func checkResults(results []kafka.TopicResult, ignore ...kafka.ErrorCode) error {
outer:
	for _, r := range results {
		code := r.Error.Code()
		if code == kafka.ErrNoError {
			continue
		}
		for _, c := range ignore {
			if code == c {
				continue outer
			}
		}
		return r.Error
	}
	return nil
}

func replicationFactor(tm *kafka.TopicMetadata) int {
	if len(tm.Partitions) == 0 {
		return 0
	}
	return len(tm.Partitions[0].Replicas)
}
