package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
	"github.com/ava-labs/publish-queue/pkg/publisher"
	"github.com/ava-labs/publish-queue/pkg/sink"
)

// StoreConfig selects the storage medium.
type StoreConfig struct {
	Kind storage.Kind
	Path string
	Size int64
}

// Config holds all configuration for the run command
type Config struct {
	Verbose  bool
	LogLevel string

	Store     StoreConfig
	Sink      sink.Kind
	Input     string
	Publisher publisher.Config

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Instance      string
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildStoreConfig builds a StoreConfig from CLI context flags
func buildStoreConfig(c *cli.Context) (StoreConfig, error) {
	kind, err := storage.ParseKind(c.String("store"))
	if err != nil {
		return StoreConfig{}, err
	}
	cfg := StoreConfig{
		Kind: kind,
		Path: c.String("store-path"),
		Size: c.Int64("store-size"),
	}
	if cfg.Size <= eventqueue.HeaderSize {
		return StoreConfig{}, fmt.Errorf("store-size must be > %d, got %d", eventqueue.HeaderSize, cfg.Size)
	}
	if kind != storage.KindFile && cfg.Size > math.MaxUint16 {
		return StoreConfig{}, fmt.Errorf("store-size of a %s store must be <= %d, got %d", kind, math.MaxUint16, cfg.Size)
	}
	if kind != storage.KindBuffer && cfg.Path == "" {
		return StoreConfig{}, fmt.Errorf("store-path is required for a %s store", kind)
	}
	return cfg, nil
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	store, err := buildStoreConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	sinkKind, err := sink.ParseKind(c.String("sink"))
	if err != nil {
		return nil, err
	}

	pub := publisher.Config{
		MinPublishInterval: c.Duration("publish-min-interval"),
		RetryInterval:      c.Duration("retry-interval"),
		PollInterval:       c.Duration("poll-interval"),
		ProbeInterval:      c.Duration("probe-interval"),
		PublishTimeout:     c.Duration("publish-timeout"),
		Paused:             c.Bool("paused"),
	}
	if err := pub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid publisher config: %w", err)
	}

	input := c.String("input")
	if input == "" {
		return nil, errors.New("input cannot be empty, use - for stdin")
	}

	return &Config{
		Verbose:       c.Bool("verbose"),
		LogLevel:      c.String("log-level"),
		Store:         store,
		Sink:          sinkKind,
		Input:         input,
		Publisher:     pub,
		MetricsHost:   c.String("metrics-host"),
		MetricsPort:   c.Int("metrics-port"),
		Instance:      c.String("instance"),
		Environment:   c.String("environment"),
		Region:        c.String("region"),
		CloudProvider: c.String("cloud-provider"),
	}, nil
}
