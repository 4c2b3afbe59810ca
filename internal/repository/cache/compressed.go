package cache

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
)

// Compressed stores payloads snappy-encoded in the wrapped cache.
type Compressed struct {
	next TileCache
}

func NewCompressed(next TileCache) *Compressed {
	return &Compressed{next: next}
}

var _ TileCache = (*Compressed)(nil)

func (c *Compressed) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	v, ok, err := c.next.Get(ctx, k)
	if err != nil || !ok {
		return nil, ok, err
	}
	out, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress %s: %w", k, err)
	}
	return out, true, nil
}

func (c *Compressed) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	return c.next.Set(ctx, k, snappy.Encode(nil, v))
}
