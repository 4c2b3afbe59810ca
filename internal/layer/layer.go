// Package layer describes the data layers attached to the tile tree: where
// their data comes from, which levels to fetch and where decoded results are
// cached.
package layer

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
)

type Layer struct {
	ID      domain.LayerID
	Kind    domain.LayerKind
	Order   int
	Visible bool
	Opacity float64

	// MergeFeatures makes tiles deeper than MergeZoom share one feature
	// fetch for their ancestor at MergeZoom.
	MergeFeatures bool
	MergeZoom     int

	Strategy Strategy
	Cache    *ArtifactCache

	source source.Source
}

type Options struct {
	Kind          domain.LayerKind
	Order         int
	Visible       bool
	Opacity       float64
	MergeFeatures bool
	MergeZoom     int
	Strategy      Strategy
	CacheSize     int
}

func New(id domain.LayerID, src source.Source, opts Options) (*Layer, error) {
	if src == nil {
		return nil, fmt.Errorf("layer %s: source is required", id)
	}
	cache, err := NewArtifactCache(id, max(opts.CacheSize, 1))
	if err != nil {
		return nil, err
	}
	if opts.Strategy == nil {
		opts.Strategy = MinNetworkTraffic{}
	}
	return &Layer{
		ID:            id,
		Kind:          opts.Kind,
		Order:         opts.Order,
		Visible:       opts.Visible,
		Opacity:       opts.Opacity,
		MergeFeatures: opts.MergeFeatures,
		MergeZoom:     opts.MergeZoom,
		Strategy:      opts.Strategy,
		Cache:         cache,
		source:        src,
	}, nil
}

// FromConfig builds a layer from its HCL block around an already built
// source.
func FromConfig(b *config.LayerBlock, order int, src source.Source, cacheSize int) (*Layer, error) {
	kind, err := domain.ParseLayerKind(b.Kind)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", b.ID, err)
	}
	strategy, err := StrategyFromConfig(b.Strategy)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", b.ID, err)
	}

	visible, opacity := true, 1.0
	if b.Visible != nil {
		visible = *b.Visible
	}
	if b.Opacity != nil {
		opacity = *b.Opacity
	}

	return New(domain.LayerID(b.ID), src, Options{
		Kind:          kind,
		Order:         order,
		Visible:       visible,
		Opacity:       opacity,
		MergeFeatures: b.MergeFeatures,
		MergeZoom:     b.MergeZoom,
		Strategy:      strategy,
		CacheSize:     cacheSize,
	})
}

func (l *Layer) Source() source.Source { return l.source }

// SetSource swaps the layer's source. A source with a different identity
// invalidates every cached artifact; the return value reports whether that
// happened.
func (l *Layer) SetSource(src source.Source) bool {
	if l.source != nil && src.UID() == l.source.UID() {
		return false
	}
	l.source = src
	l.Cache.Purge()
	return true
}

// ClearCache drops every cached artifact of the layer.
func (l *Layer) ClearCache() {
	l.Cache.Purge()
}

// TargetLevel is the level whose data best fits a tile at tileLevel, limited
// to what the source serves.
func (l *Layer) TargetLevel(tileLevel int) int {
	return l.source.ZoomRange().Clamp(tileLevel)
}

// NextLevel chooses the level the next request for a tile should target.
// Levels past a previously failed level are avoided, and the failed level
// itself too while a lower level still adds detail.
func (l *Layer) NextLevel(current, tileLevel, lowestLevelError int) int {
	zoom := l.source.ZoomRange()
	target := l.TargetLevel(tileLevel)
	next := l.Strategy.Next(current, target, zoom)
	if next >= lowestLevelError {
		if lowestLevelError-1 > current {
			next = lowestLevelError - 1
		} else {
			next = lowestLevelError
		}
	}
	return zoom.Clamp(next)
}

// Version is the update state version for data at level from the current
// source.
func (l *Layer) Version(level int) updatestate.Version {
	return updatestate.Version{Level: level, SourceUID: l.source.UID()}
}

// CacheKey keys a decoded artifact for a request issued by this layer.
func (l *Layer) CacheKey(req source.Request) CacheKey {
	return CacheKey{SourceUID: l.source.UID(), Tile: req.Tile, Format: l.source.Format()}
}
