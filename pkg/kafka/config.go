package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	DefaultFlushTimeout = 15 * time.Second
	DefaultPingTimeout  = 2 * time.Second

	// messageMaxBytes bounds a single record. Queued events are far smaller.
	messageMaxBytes = 1 << 20
)

// SASLConfig holds optional SASL authentication settings.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"PLAIN"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether credentials were provided.
func (s SASLConfig) Enabled() bool {
	return s.Username != "" && s.Password != ""
}

// ApplyToConfigMap adds the SASL settings to cm when enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cm.SetKey("security.protocol", s.SecurityProtocol)
	_ = cm.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cm.SetKey("sasl.username", s.Username)
	_ = cm.SetKey("sasl.password", s.Password)
}

// ProducerConfig holds the configuration for the event producer.
type ProducerConfig struct {
	BootstrapServers  string        `env:"KAFKA_BOOTSTRAP_SERVERS"          envDefault:"localhost:9092"` // Kafka broker addresses
	Topic             string        `env:"KAFKA_TOPIC"                      envDefault:"events"`         // Topic events are published to
	ClientID          string        `env:"KAFKA_CLIENT_ID"                  envDefault:"pubq"`           // Client id reported to brokers
	EnableLogs        bool          `env:"KAFKA_ENABLE_LOGS"                envDefault:"false"`          // Enable librdkafka client logs
	FlushTimeout      time.Duration `env:"KAFKA_FLUSH_TIMEOUT"              envDefault:"15s"`            // Flush timeout on Close
	PingTimeout       time.Duration `env:"KAFKA_PING_TIMEOUT"               envDefault:"2s"`             // Metadata timeout for reachability probes
	NumPartitions     int           `env:"KAFKA_TOPIC_NUM_PARTITIONS"       envDefault:"1"`              // Partitions when the topic is created
	ReplicationFactor int           `env:"KAFKA_TOPIC_REPLICATION_FACTOR"   envDefault:"1"`              // Replication factor when the topic is created
	EnsureTopic       bool          `env:"KAFKA_ENSURE_TOPIC"               envDefault:"true"`           // Create or grow the topic on startup
	SASL              SASLConfig
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse producer config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c ProducerConfig) Validate() error {
	if c.BootstrapServers == "" {
		return errors.New("bootstrap servers cannot be empty")
	}
	if c.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("ping timeout must be > 0, got %s", c.PingTimeout)
	}
	return c.TopicConfig().Validate()
}

// TopicConfig returns the settings used to ensure the topic exists.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

// ConfigMap builds the librdkafka configuration.
//
// A single event is in flight at a time, so batching is disabled and every
// message waits for all in-sync replicas.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"acks":                   "all",
		"enable.idempotence":     true,
		"linger.ms":              0,
		"compression.type":       "lz4",
		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	if c.ClientID != "" {
		_ = cm.SetKey("client.id", c.ClientID)
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}
