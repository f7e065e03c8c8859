package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/publish-queue/pkg/clickhouse"
	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/kafka"
	"github.com/ava-labs/publish-queue/pkg/metrics"
	"github.com/ava-labs/publish-queue/pkg/publisher"
	"github.com/ava-labs/publish-queue/pkg/sink"
	"github.com/ava-labs/publish-queue/pkg/utils"
)

// builtSink is a sink plus what run must watch and release.
type builtSink struct {
	publisher.Sink
	// errs delivers fatal transport errors, nil when the sink has none.
	errs  <-chan error
	close func()
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewLeveledLogger(cfg.Verbose, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"store", cfg.Store.Kind,
		"storePath", cfg.Store.Path,
		"storeSize", cfg.Store.Size,
		"sink", cfg.Sink,
		"input", cfg.Input,
		"minPublishInterval", cfg.Publisher.MinPublishInterval,
		"retryInterval", cfg.Publisher.RetryInterval,
		"probeInterval", cfg.Publisher.ProbeInterval,
		"publishTimeout", cfg.Publisher.PublishTimeout,
		"paused", cfg.Publisher.Paused,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"instance", cfg.Instance,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Instance:      cfg.Instance,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	medium, closer, err := openMedium(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closer.Close()

	q, err := eventqueue.New(medium,
		eventqueue.WithLogger(sugar.Named("queue")),
		eventqueue.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snk, err := buildSink(ctx, cfg.Sink, sugar.Named("sink"))
	if err != nil {
		return fmt.Errorf("failed to create %s sink: %w", cfg.Sink, err)
	}
	defer snk.close()

	pub, err := publisher.New(q, snk, cfg.Publisher,
		publisher.WithLogger(sugar.Named("publisher")),
		publisher.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, publisher.AdminHandler(pub))
	metricsErrCh, err := metricsServer.Start()
	if err != nil {
		return err
	}
	sugar.Infof("metrics and admin server listening on %s", metricsServer.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pub.Run(gctx)
	})
	g.Go(func() error {
		return readEvents(gctx, input, q, sugar.Named("input"))
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if snk.errs != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-snk.errs:
				if !ok {
					return nil
				}
				return fmt.Errorf("sink failed: %w", err)
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Infow("shutdown complete", "events", q.Count())
	return err
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// buildSink reads the sink settings from the environment and connects it.
func buildSink(ctx context.Context, kind sink.Kind, log *zap.SugaredLogger) (*builtSink, error) {
	switch kind {
	case sink.KindLog:
		return &builtSink{Sink: sink.NewLog(log), close: func() {}}, nil

	case sink.KindKafka:
		kcfg, err := kafka.LoadProducerConfig()
		if err != nil {
			return nil, err
		}
		producer, err := kafka.NewProducer(ctx, kcfg, log)
		if err != nil {
			return nil, err
		}
		if kcfg.EnsureTopic {
			if err := producer.EnsureTopic(ctx, kcfg.TopicConfig()); err != nil {
				producer.Close()
				return nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
			}
		}
		return &builtSink{
			Sink:  sink.NewKafka(producer, kcfg.Topic, kcfg.PingTimeout, log),
			errs:  producer.Errors(),
			close: producer.Close,
		}, nil

	case sink.KindClickHouse:
		chCfg, err := clickhouse.Load()
		if err != nil {
			return nil, err
		}
		client, err := clickhouse.New(chCfg, log)
		if err != nil {
			return nil, err
		}
		s, err := sink.NewClickHouse(ctx, client, chCfg.Database, chCfg.Table, log)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &builtSink{Sink: s, close: func() { _ = client.Close() }}, nil

	case sink.KindRedis:
		rcfg, err := sink.LoadRedisConfig()
		if err != nil {
			return nil, err
		}
		client := rcfg.NewClient()
		return &builtSink{
			Sink:  sink.NewRedis(client, rcfg.Stream, rcfg.MaxLen, log),
			close: func() { _ = client.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}
