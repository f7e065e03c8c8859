package main

import (
	"fmt"
	"io"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openMedium opens the configured medium. The returned closer releases the
// nvram image.
func openMedium(cfg StoreConfig) (storage.Medium, io.Closer, error) {
	switch cfg.Kind {
	case storage.KindBuffer:
		return storage.NewBuffer(int(cfg.Size)), nopCloser{}, nil
	case storage.KindNVRAM:
		nv, err := storage.OpenNVRAMImage(cfg.Path, cfg.Size)
		if err != nil {
			return nil, nil, err
		}
		return nv, nv, nil
	case storage.KindFile:
		return storage.NewFile(cfg.Path, cfg.Size), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %s", cfg.Kind)
	}
}
