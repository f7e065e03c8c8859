package clickhouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the connection settings for the ClickHouse event sink.
type Config struct {
	Hosts    []string `env:"CLICKHOUSE_HOSTS"    envSeparator:"," envDefault:"localhost:9000"`
	Database string   `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	Table    string   `env:"CLICKHOUSE_TABLE"    envDefault:"events"`
	Username string   `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string   `env:"CLICKHOUSE_PASSWORD"`

	Debug              bool `env:"CLICKHOUSE_DEBUG"`
	InsecureSkipVerify bool `env:"CLICKHOUSE_INSECURE_SKIP_VERIFY" envDefault:"true"`
	UseHTTP            bool `env:"CLICKHOUSE_USE_HTTP"`

	MaxExecutionTime time.Duration `env:"CLICKHOUSE_MAX_EXECUTION_TIME" envDefault:"60s"`
	DialTimeout      time.Duration `env:"CLICKHOUSE_DIAL_TIMEOUT"       envDefault:"30s"`
	ConnMaxLifetime  time.Duration `env:"CLICKHOUSE_CONN_MAX_LIFETIME"  envDefault:"10m"`

	// One insert is in flight at a time, so the pool stays small.
	MaxOpenConns         int    `env:"CLICKHOUSE_MAX_OPEN_CONNS"         envDefault:"2"`
	MaxIdleConns         int    `env:"CLICKHOUSE_MAX_IDLE_CONNS"         envDefault:"1"`
	BlockBufferSize      uint8  `env:"CLICKHOUSE_BLOCK_BUFFER_SIZE"      envDefault:"10"`
	MaxCompressionBuffer int    `env:"CLICKHOUSE_MAX_COMPRESSION_BUFFER" envDefault:"10240"`
	ClientName           string `env:"CLICKHOUSE_CLIENT_NAME"            envDefault:"pubq"`
	ClientVersion        string `env:"CLICKHOUSE_CLIENT_VERSION"         envDefault:"1.0"`
}

// Load loads ClickHouse configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse clickhouse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.New("at least one clickhouse host is required")
	}
	if c.Database == "" {
		return errors.New("clickhouse database cannot be empty")
	}
	if c.Table == "" {
		return errors.New("clickhouse table cannot be empty")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("clickhouse dial timeout must be > 0, got %s", c.DialTimeout)
	}
	return nil
}
