package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// FilesystemCache lays payloads out as <dir>/<source>/<z>/<x>/<y>.<format>.
type FilesystemCache struct {
	dir string
}

func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return &FilesystemCache{dir: dir}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	content, err := os.ReadFile(c.pathFor(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

func (c *FilesystemCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, v, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *FilesystemCache) pathFor(k TileCacheKey) string {
	return filepath.Join(c.dir, filepath.Base(k.Source), strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y)+"."+k.Format)
}
