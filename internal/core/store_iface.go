package core

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// ChunkStore is the shared object storage of the fallback pipeline.
// Put overwrites an existing key.
type ChunkStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Latest returns the newest object under prefix, or domain.ErrStreamNotFound.
	Latest(ctx context.Context, prefix string) (ObjectInfo, error)
	PublicURL(ctx context.Context, key string) (string, error)
}
