package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/dkeye/Babyfoon/internal/config"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/rs/zerolog/log"
)

type Azure struct {
	client    *azblob.Client
	container string
	ttl       time.Duration
}

var _ core.ChunkStore = (*Azure)(nil)

func NewAzure(cfg config.AzureStorage, ttl time.Duration) (*Azure, error) {
	if cfg.ConnectionString == "" || cfg.Container == "" {
		return nil, errors.New("azure connection string and container are required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, storageErr("azure client", err)
	}
	return &Azure{client: client, container: cfg.Container, ttl: ttl}, nil
}

func (a *Azure) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return storageErr("azure put", err)
	}
	return nil
}

func (a *Azure) Latest(ctx context.Context, prefix string) (core.ObjectInfo, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	var objs []core.ObjectInfo
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return core.ObjectInfo{}, storageErr("azure list", err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			o := core.ObjectInfo{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					o.Size = *p.ContentLength
				}
				if p.CreationTime != nil {
					o.CreatedAt = *p.CreationTime
				}
			}
			objs = append(objs, o)
		}
	}
	best, ok := newest(objs)
	if !ok {
		return core.ObjectInfo{}, notFound("azure latest")
	}
	return best, nil
}

// PublicURL returns a read SAS when the client holds a shared key, the plain
// blob URL otherwise (public containers).
func (a *Azure) PublicURL(_ context.Context, key string) (string, error) {
	bc := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	u, err := bc.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(a.ttl), nil)
	if err != nil {
		log.Debug().Err(err).Str("module", "storage.azure").Msg("no SAS, using blob URL")
		return bc.URL(), nil
	}
	return u, nil
}
