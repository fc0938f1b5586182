package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/Backblaze/blazer/b2"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/core"
)

type B2 struct {
	bucket *b2.Bucket
	ttl    time.Duration
}

var _ core.ChunkStore = (*B2)(nil)

func NewB2(ctx context.Context, cfg config.B2Storage, ttl time.Duration) (*B2, error) {
	if cfg.Account == "" || cfg.Key == "" || cfg.Bucket == "" {
		return nil, errors.New("b2 account, key and bucket are required")
	}
	client, err := b2.NewClient(ctx, cfg.Account, cfg.Key)
	if err != nil {
		return nil, storageErr("b2 client", err)
	}
	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, storageErr("b2 bucket", err)
	}
	return &B2{bucket: bucket, ttl: ttl}, nil
}

func (s *B2) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	w := s.bucket.Object(key).NewWriter(ctx, b2.WithAttrsOption(&b2.Attrs{ContentType: contentType}))
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return storageErr("b2 put", err)
	}
	if err := w.Close(); err != nil {
		return storageErr("b2 put", err)
	}
	return nil
}

// Latest picks the newest key from the listing and fetches attributes only for it.
func (s *B2) Latest(ctx context.Context, prefix string) (core.ObjectInfo, error) {
	it := s.bucket.List(ctx, b2.ListPrefix(prefix))
	var objs []core.ObjectInfo
	for it.Next() {
		objs = append(objs, core.ObjectInfo{Key: it.Object().Name()})
	}
	if err := it.Err(); err != nil {
		return core.ObjectInfo{}, storageErr("b2 list", err)
	}
	best, ok := newest(objs)
	if !ok {
		return core.ObjectInfo{}, notFound("b2 latest")
	}
	attrs, err := s.bucket.Object(best.Key).Attrs(ctx)
	if err != nil {
		return core.ObjectInfo{}, storageErr("b2 attrs", err)
	}
	best.Size = attrs.Size
	best.CreatedAt = attrs.UploadTimestamp
	return best, nil
}

func (s *B2) PublicURL(ctx context.Context, key string) (string, error) {
	u, err := s.bucket.Object(key).AuthURL(ctx, s.ttl, "")
	if err != nil {
		return "", storageErr("b2 auth url", err)
	}
	return u.String(), nil
}
