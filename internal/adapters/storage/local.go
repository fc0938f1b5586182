package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/rs/zerolog/log"
)

// containedPath ensures that the resolved path stays within basePath.
func containedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absJoined, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(untrustedPath)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) && absJoined != absBase {
		return "", fmt.Errorf("path traversal detected: %q resolves outside base %q", untrustedPath, absBase)
	}
	return absJoined, nil
}

// Local keeps chunks under a directory served by the HTTP API at baseURL.
type Local struct {
	root    string
	baseURL string
}

var _ core.ChunkStore = (*Local)(nil)

func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: filepath.Clean(root), baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Root() string { return l.root }

// Put writes through a temp file so readers never see a partial chunk.
func (l *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	const op = "local put"
	if err := checkKey(key); err != nil {
		return err
	}
	dest, err := containedPath(l.root, key)
	if err != nil {
		return storageErr(op, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return storageErr(op, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return storageErr(op, err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		return storageErr(op, err)
	}
	log.Debug().Str("module", "storage.local").Str("key", key).Int("bytes", len(data)).Msg("chunk stored")
	return nil
}

func (l *Local) Latest(_ context.Context, prefix string) (core.ObjectInfo, error) {
	const op = "local latest"
	dir, err := containedPath(l.root, prefix)
	if err != nil {
		return core.ObjectInfo{}, storageErr(op, err)
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return core.ObjectInfo{}, notFound(op)
	}
	if err != nil {
		return core.ObjectInfo{}, storageErr(op, err)
	}

	objs := make([]core.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objs = append(objs, core.ObjectInfo{
			Key:       strings.TrimSuffix(prefix, "/") + "/" + e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	best, ok := newest(objs)
	if !ok {
		return core.ObjectInfo{}, notFound(op)
	}
	return best, nil
}

func (l *Local) PublicURL(_ context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if _, err := containedPath(l.root, key); err != nil {
		return "", storageErr("local url", err)
	}
	return l.baseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}

// Get reads a stored chunk back.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	p, err := containedPath(l.root, key)
	if err != nil {
		return nil, storageErr("local get", err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("local get")
	}
	if err != nil {
		return nil, storageErr("local get", err)
	}
	return data, nil
}
