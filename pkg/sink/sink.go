package sink

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
)

// Kind names a sink implementation.
type Kind string

const (
	KindKafka      Kind = "kafka"
	KindClickHouse Kind = "clickhouse"
	KindRedis      Kind = "redis"
	KindLog        Kind = "log"
)

// ParseKind validates a sink name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindKafka, KindClickHouse, KindRedis, KindLog:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sink %q", s)
	}
}

// Header keys carrying event metadata next to the payload.
const (
	HeaderTTL   = "ttl"
	HeaderFlags = "flags"
)

func metadata(ev eventqueue.Event) map[string]string {
	return map[string]string{
		HeaderTTL:   strconv.FormatInt(int64(ev.TTL), 10),
		HeaderFlags: strconv.FormatUint(uint64(ev.Flags), 10),
	}
}

// Log writes every event to a logger. It is always reachable.
type Log struct {
	log *zap.SugaredLogger
}

func NewLog(log *zap.SugaredLogger) *Log {
	return &Log{log: log}
}

func (l *Log) Publish(ctx context.Context, ev eventqueue.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Infow("event",
		"name", ev.Name,
		"data", ev.Data,
		"ttl", ev.TTL,
		"flags", ev.Flags,
	)
	return nil
}

func (l *Log) Reachable(context.Context) bool {
	return true
}
