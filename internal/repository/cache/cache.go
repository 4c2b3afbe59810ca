// Package cache stores raw source payloads keyed by source identity and tile.
package cache

import (
	"context"
	"fmt"
)

type TileCacheKey struct {
	Source string
	Z      int
	X      int
	Y      int
	Format string
}

func (k TileCacheKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d.%s", k.Source, k.Z, k.X, k.Y, k.Format)
}

type TileCacheValue []byte

type TileCache interface {
	Get(context.Context, TileCacheKey) (TileCacheValue, bool, error)
	Set(context.Context, TileCacheKey, TileCacheValue) error
}

// NopCache never stores anything.
type NopCache struct{}

var _ TileCache = NopCache{}

func (NopCache) Get(context.Context, TileCacheKey) (TileCacheValue, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(context.Context, TileCacheKey, TileCacheValue) error { return nil }
