package sink

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/clickhouse"
	"github.com/ava-labs/publish-queue/pkg/eventqueue"
)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-event.sql
var insertEventQuery string

// ClickHouse inserts each event as one row.
type ClickHouse struct {
	client      clickhouse.Client
	insertQuery string
	now         func() time.Time
	log         *zap.SugaredLogger
}

// NewClickHouse creates the events table if it does not exist.
func NewClickHouse(
	ctx context.Context,
	client clickhouse.Client,
	database, table string,
	log *zap.SugaredLogger,
) (*ClickHouse, error) {
	query := fmt.Sprintf(createTableQuery, database, table)
	if err := client.Conn().Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	log.Infow("events table ready", "database", database, "table", table)

	return &ClickHouse{
		client:      client,
		insertQuery: fmt.Sprintf(insertEventQuery, database, table),
		now:         time.Now,
		log:         log,
	}, nil
}

func (c *ClickHouse) Publish(ctx context.Context, ev eventqueue.Event) error {
	err := c.client.Conn().Exec(ctx, c.insertQuery,
		ev.Name,
		ev.Data,
		ev.TTL,
		uint8(ev.Flags),
		c.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (c *ClickHouse) Reachable(ctx context.Context) bool {
	if err := c.client.Ping(ctx); err != nil {
		c.log.Debugw("clickhouse not reachable", "error", err)
		return false
	}
	return true
}
