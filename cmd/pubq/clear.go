package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
	"github.com/ava-labs/publish-queue/pkg/utils"
)

func clearStore(c *cli.Context) error {
	cfg, err := buildStoreConfig(c)
	if err != nil {
		return err
	}
	if cfg.Kind == storage.KindBuffer {
		return fmt.Errorf("a %s store does not outlive the process", cfg.Kind)
	}

	sugar, err := utils.NewLeveledLogger(c.Bool("verbose"), c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	medium, closer, err := openMedium(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	q, err := eventqueue.New(medium, eventqueue.WithLogger(sugar))
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	dropped := q.Count()
	if err := q.Clear(); err != nil {
		return err
	}

	sugar.Infow("store cleared", "path", cfg.Path, "dropped", dropped)
	return nil
}
