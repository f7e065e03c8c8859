package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
)

// RedisConfig configures the Redis Streams sink.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"       envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"         envDefault:"0"`
	Stream   string `env:"REDIS_STREAM"     envDefault:"events"`
	MaxLen   int64  `env:"REDIS_STREAM_MAXLEN" envDefault:"100000"` // approximate; 0 keeps every entry
}

// LoadRedisConfig loads the Redis sink configuration from environment variables.
func LoadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := env.Parse(&cfg); err != nil {
		return RedisConfig{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("redis address cannot be empty")
	}
	if c.Stream == "" {
		return errors.New("redis stream cannot be empty")
	}
	if c.MaxLen < 0 {
		return fmt.Errorf("redis stream maxlen must be >= 0, got %d", c.MaxLen)
	}
	return nil
}

// NewClient builds a client from c.
func (c RedisConfig) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

// StreamClient is the subset of redis.Cmdable used by Redis.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis appends each event to a stream as an entry with name, data, ttl and
// flags fields.
type Redis struct {
	client StreamClient
	stream string
	maxLen int64
	log    *zap.SugaredLogger
}

func NewRedis(client StreamClient, stream string, maxLen int64, log *zap.SugaredLogger) *Redis {
	return &Redis{client: client, stream: stream, maxLen: maxLen, log: log}
}

func (r *Redis) Publish(ctx context.Context, ev eventqueue.Event) error {
	meta := metadata(ev)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: []any{
			"name", ev.Name,
			"data", ev.Data,
			HeaderTTL, meta[HeaderTTL],
			HeaderFlags, meta[HeaderFlags],
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add event to stream %q: %w", r.stream, err)
	}
	r.log.Debugw("added event to stream", "stream", r.stream, "id", id)
	return nil
}

func (r *Redis) Reachable(ctx context.Context) bool {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.log.Debugw("redis not reachable", "error", err)
		return false
	}
	return true
}
