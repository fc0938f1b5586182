// Package storage implements core.ChunkStore over a local directory and the
// object stores a deployment may already run: S3, GCS, Azure Blob and B2.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
)

const defaultURLTTL = 15 * time.Minute

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (core.ChunkStore, error) {
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Local.Root, cfg.Local.BaseURL)
	case "s3":
		return NewS3(ctx, cfg.S3, ttl)
	case "gcs":
		return NewGCS(ctx, cfg.GCS, ttl)
	case "azure":
		return NewAzure(cfg.Azure, ttl)
	case "b2":
		return NewB2(ctx, cfg.B2, ttl)
	default:
		return nil, domain.E(domain.KindConfiguration, "storage", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}

// sequenceOf orders chunk keys by capture time; foreign keys sort first.
func sequenceOf(key string) int64 {
	if _, seq, err := domain.ParseChunkKey(key); err == nil {
		return seq
	}
	return -1
}

// newest picks the latest chunk by sequence, then by creation time.
func newest(objs []core.ObjectInfo) (core.ObjectInfo, bool) {
	var (
		best    core.ObjectInfo
		bestSeq int64 = -2
	)
	for _, o := range objs {
		seq := sequenceOf(o.Key)
		if seq > bestSeq || (seq == bestSeq && o.CreatedAt.After(best.CreatedAt)) {
			best, bestSeq = o, seq
		}
	}
	return best, bestSeq > -2
}

func notFound(op string) error {
	return domain.E(domain.KindNotFound, op, domain.ErrStreamNotFound)
}

func storageErr(op string, err error) error {
	return domain.E(domain.KindStorage, op, err)
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return domain.E(domain.KindValidation, "key", domain.ErrInvalidChunkKey)
	}
	return nil
}
