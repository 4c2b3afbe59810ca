package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var ErrSourceNotFound = errors.New("source not found")

// TileCacheUseCase serves raw source payloads by tile key, through the same
// cached sources the layers fetch from.
type TileCacheUseCase struct {
	sources map[string]source.Source
	root    orb.Bound
	logger  logger.Logger
}

func NewTileCacheUseCase(sources []source.Source, root orb.Bound, l logger.Logger) *TileCacheUseCase {
	m := make(map[string]source.Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	return &TileCacheUseCase{
		sources: m,
		root:    root,
		logger:  l,
	}
}

// GetTile returns the payload of tile z/x/y from the named source and its
// format.
func (uc *TileCacheUseCase) GetTile(ctx context.Context, name string, z, x, y int) ([]byte, string, error) {
	src, ok := uc.sources[name]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", name, ErrSourceNotFound)
	}
	uc.logger.Debug("tile lookup", "source", name, "z", z, "x", x, "y", y)

	key := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	req, err := src.BuildRequestKey(key, quadtree.KeyExtent(uc.root, key))
	if err != nil {
		return nil, "", err
	}
	data, err := src.Fetch(ctx, req)
	if err != nil {
		uc.logger.Warn("tile lookup failed", "source", name, "z", z, "x", x, "y", y, "error", err)
		return nil, "", err
	}
	return data, src.Format(), nil
}

func (uc *TileCacheUseCase) Sources() []string {
	out := make([]string, 0, len(uc.sources))
	for name := range uc.sources {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
