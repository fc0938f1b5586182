package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/core"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	ttl    time.Duration
}

var _ core.ChunkStore = (*GCS)(nil)

func NewGCS(ctx context.Context, cfg config.GCSStorage, ttl time.Duration, extra ...option.ClientOption) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	opts := append([]option.ClientOption{}, extra...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, storageErr("gcs client", err)
	}
	return &GCS{client: client, bucket: client.Bucket(cfg.Bucket), ttl: ttl}, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return storageErr("gcs put", err)
	}
	if err := w.Close(); err != nil {
		return storageErr("gcs put", err)
	}
	return nil
}

func (g *GCS) Latest(ctx context.Context, prefix string) (core.ObjectInfo, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var objs []core.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return core.ObjectInfo{}, storageErr("gcs list", err)
		}
		objs = append(objs, core.ObjectInfo{Key: attrs.Name, Size: attrs.Size, CreatedAt: attrs.Created})
	}
	best, ok := newest(objs)
	if !ok {
		return core.ObjectInfo{}, notFound("gcs latest")
	}
	return best, nil
}

func (g *GCS) PublicURL(_ context.Context, key string) (string, error) {
	u, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", storageErr("gcs sign", err)
	}
	return u, nil
}

func (g *GCS) Close() error { return g.client.Close() }
