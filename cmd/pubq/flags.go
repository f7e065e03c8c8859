package main

import (
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/publish-queue/pkg/publisher"
)

const defaultStoreSize = 4096

// storeFlags select and size the storage medium.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Minimum log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "store",
			Aliases: []string{"s"},
			Usage:   "Storage medium: buffer, nvram or file",
			EnvVars: []string{"STORE"},
			Value:   "file",
		},
		&cli.StringFlag{
			Name:    "store-path",
			Aliases: []string{"p"},
			Usage:   "Path of the queue file or nvram image",
			EnvVars: []string{"STORE_PATH"},
			Value:   "pubq.queue",
		},
		&cli.Int64Flag{
			Name:    "store-size",
			Usage:   "Size of the store in bytes, header included",
			EnvVars: []string{"STORE_SIZE"},
			Value:   defaultStoreSize,
		},
	}
}

// runFlags returns all CLI flags for the run command
func runFlags() []cli.Flag {
	return append(storeFlags(),
		&cli.StringFlag{
			Name:    "sink",
			Usage:   "Publish destination: kafka, clickhouse, redis or log. Sink settings are read from the environment",
			EnvVars: []string{"SINK"},
			Value:   "log",
		},
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "NDJSON file of events to enqueue, - for stdin",
			EnvVars: []string{"INPUT"},
			Value:   "-",
		},
		&cli.DurationFlag{
			Name:    "publish-min-interval",
			Usage:   "Minimum time between two publish attempts",
			EnvVars: []string{"PUBLISH_MIN_INTERVAL"},
			Value:   publisher.DefaultMinPublishInterval,
		},
		&cli.DurationFlag{
			Name:    "retry-interval",
			Usage:   "Wait after a failed publish",
			EnvVars: []string{"PUBLISH_RETRY_INTERVAL"},
			Value:   publisher.DefaultRetryInterval,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often the publisher re-evaluates its state",
			EnvVars: []string{"PUBLISH_POLL_INTERVAL"},
			Value:   publisher.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:    "probe-interval",
			Usage:   "Wait between reachability probes of an unreachable sink",
			EnvVars: []string{"PUBLISH_PROBE_INTERVAL"},
			Value:   publisher.DefaultProbeInterval,
		},
		&cli.DurationFlag{
			Name:    "publish-timeout",
			Usage:   "Deadline of a single publish, 0 for none",
			EnvVars: []string{"PUBLISH_TIMEOUT"},
		},
		&cli.BoolFlag{
			Name:    "paused",
			Usage:   "Start with publishing paused",
			EnvVars: []string{"PUBLISH_PAUSED"},
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for the metrics and admin server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for the metrics and admin server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "instance",
			Usage:   "Instance name added to every metric",
			EnvVars: []string{"INSTANCE_NAME"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label for metrics",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region label for metrics",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider label for metrics",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	)
}
