package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// NewProviderFromConfig creates a StorageProvider based on the storage config type.
// tempDir receives the reserved-space placeholder on backends that use one.
func NewProviderFromConfig(ctx context.Context, cfg config.StorageConfig, tempDir string, logger bm.Logger) (bm.StorageProvider, error) {
	switch cfg.Type {
	case "memory":
		return NewObjectStoreProvider(NewMemoryObjectClient(bm.RealClock{}), logger), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("%w: s3 storage requires s3_bucket to be set", bm.ErrInvalidConfig)
		}
		if cfg.S3Region == "" {
			return nil, fmt.Errorf("%w: s3 storage requires s3_region to be set", bm.ErrInvalidConfig)
		}
		client, err := NewS3ObjectClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating s3 client: %w", err)
		}
		return NewObjectStoreProvider(client, logger), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("%w: filesystem storage requires fs_root to be set", bm.ErrInvalidConfig)
		}
		p := NewFileSystemProvider(logger)
		if tempDir != "" {
			p.SetReservedSpace(bm.NewLocation(tempDir))
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type: %s", bm.ErrInvalidConfig, cfg.Type)
	}
}

// RootLocation returns the location that everything bm stores lives under:
// fs_root for the filesystem backend and the keyspace root otherwise.
func RootLocation(cfg config.StorageConfig) bm.Location {
	if cfg.Type == "filesystem" {
		return bm.NewLocation(filepath.ToSlash(cfg.FSRoot))
	}
	return bm.Location{}
}
