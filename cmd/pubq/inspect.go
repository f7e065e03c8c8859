package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
)

type inspectReport struct {
	Store     string             `json:"store"`
	Path      string             `json:"path"`
	SizeBytes int64              `json:"sizeBytes"`
	Magic     string             `json:"magic"`
	Tag       uint16             `json:"tag"`
	NumEvents uint16             `json:"numEvents"`
	Sent      int                `json:"sent"`
	Valid     bool               `json:"valid"`
	Reason    string             `json:"reason,omitempty"`
	Events    []eventqueue.Event `json:"events"`
}

func inspectStore(c *cli.Context) error {
	cfg, err := buildStoreConfig(c)
	if err != nil {
		return err
	}
	if cfg.Kind == storage.KindBuffer {
		return fmt.Errorf("a %s store does not outlive the process", cfg.Kind)
	}

	medium, closer, err := openMedium(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	snap, err := eventqueue.Inspect(medium, eventqueue.DefaultCodec)
	if err != nil {
		return fmt.Errorf("failed to inspect store: %w", err)
	}

	report := inspectReport{
		Store:     snap.Kind.String(),
		Path:      cfg.Path,
		SizeBytes: snap.Size,
		Magic:     fmt.Sprintf("%#08x", snap.Header.Magic),
		Tag:       snap.Header.Tag,
		NumEvents: snap.Header.NumEvents,
		Sent:      snap.Sent,
		Valid:     snap.Valid,
		Reason:    snap.Reason,
		Events:    snap.Events,
	}
	if report.Events == nil {
		report.Events = []eventqueue.Event{}
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
