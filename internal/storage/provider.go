// Package storage selects the image blob backend from configuration.
// Backends live in the gcs, local and memory sub-packages.
package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/storage/gcs"
	"github.com/zhidu-qidian/Spiders/internal/storage/local"
	"github.com/zhidu-qidian/Spiders/internal/storage/memory"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config picks and configures one blob backend.
type Config struct {
	Backend string
	Local   local.Config
	GCS     gcs.Config
}

// Blobs is an opened blob backend and its release hook.
type Blobs struct {
	spider.BlobStore
	close func() error
}

// Close releases backend resources.
func (b *Blobs) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the configured backend. factory may be nil to use ADC for GCS.
func Open(ctx context.Context, cfg Config, factory gcs.ClientFactory, logger *zap.Logger) (*Blobs, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return &Blobs{BlobStore: memory.NewBlobStore()}, nil
	case BackendLocal:
		store, err := local.New(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return &Blobs{BlobStore: store}, nil
	case BackendGCS:
		store, err := gcs.Open(ctx, cfg.GCS, factory, logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return &Blobs{BlobStore: store, close: store.Close}, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
