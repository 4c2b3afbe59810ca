package provider

import (
	"fmt"
	"math"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/compositor"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/layer"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	"github.com/paulmach/orb"
)

type Action int

const (
	ActionNone Action = iota
	ActionSubdivide
	ActionMerge
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSubdivide:
		return "subdivide"
	case ActionMerge:
		return "merge"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

type TileConfig struct {
	MaxLevel     int
	SSEThreshold float64

	// A subdivided tile merges once its error drops below
	// SSEThreshold*MergeRatio.
	MergeRatio float64

	// TileSize is the texture size in pixels a tile is drawn with.
	TileSize          float64
	Segments          int
	GeometryCacheSize int

	// WaitForLayerData holds subdivision back until every visible raster
	// layer has settled on the tile.
	WaitForLayerData bool
}

type TileProvider struct {
	cfg    TileConfig
	tree   *quadtree.Tree
	sched  *scheduler.Scheduler
	comp   *compositor.Compositor
	data   *DataSourceProvider
	grids  *gridBuilder
	logger logger.Logger

	subdivisions map[quadtree.ID]*scheduler.Handle
	onChange     func()
}

func NewTileProvider(cfg TileConfig, tree *quadtree.Tree, sched *scheduler.Scheduler, comp *compositor.Compositor, data *DataSourceProvider, l logger.Logger) (*TileProvider, error) {
	if cfg.MergeRatio <= 0 || cfg.MergeRatio >= 1 {
		return nil, fmt.Errorf("merge ratio %v outside (0, 1)", cfg.MergeRatio)
	}
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("tile size %v must be positive", cfg.TileSize)
	}
	grids, err := newGridBuilder(cfg.Segments, cfg.GeometryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("geometry cache: %w", err)
	}
	sched.Register(domain.ResourceSubdivision, grids)

	return &TileProvider{
		cfg:          cfg,
		tree:         tree,
		sched:        sched,
		comp:         comp,
		data:         data,
		grids:        grids,
		logger:       l,
		subdivisions: make(map[quadtree.ID]*scheduler.Handle),
		onChange:     func() {},
	}, nil
}

func (p *TileProvider) OnChange(fn func()) { p.onChange = fn }

// Geometry returns a grid mesh for extent, as used for root tiles.
func (p *TileProvider) Geometry(extent orb.Bound) *domain.TileGeometry {
	return p.grids.build(extent)
}

// ScreenSpaceError estimates how many pixels of error drawing t at its
// level costs at the current view distance.
func (p *TileProvider) ScreenSpaceError(t *quadtree.Tile, v View) float64 {
	d := v.Distance(t)
	if d <= 0 {
		return math.Inf(1)
	}
	geometricError := (t.Extent.Max[0] - t.Extent.Min[0]) / p.cfg.TileSize
	return geometricError * v.ScreenHeight / (2 * d * math.Tan(v.FOV/2))
}

// Evaluate decides what should happen to t this frame. A tile with a
// subdivision in flight is left alone until it resolves.
func (p *TileProvider) Evaluate(t *quadtree.Tile, v View, layers []*layer.Layer) Action {
	if t.PendingSubdivision {
		return ActionNone
	}
	visible := v.Sees(t)
	sse := p.ScreenSpaceError(t, v)

	if t.IsLeaf() {
		if !visible || sse <= p.cfg.SSEThreshold || t.Level >= p.cfg.MaxLevel {
			return ActionNone
		}
		if p.cfg.WaitForLayerData && !p.HasEnoughData(t, layers) {
			return ActionNone
		}
		return ActionSubdivide
	}

	if (!visible || sse < p.cfg.SSEThreshold*p.cfg.MergeRatio) && !p.subdividing(t) {
		return ActionMerge
	}
	return ActionNone
}

// HasEnoughData reports whether every visible raster layer holds the tile's
// own data, or has settled without any.
func (p *TileProvider) HasEnoughData(t *quadtree.Tile, layers []*layer.Layer) bool {
	snap := t.Material.Snapshot()
	for _, l := range layers {
		if !l.Visible || l.Kind == domain.GeometryLayer {
			continue
		}
		if slot, ok := snap.Slot(l.ID); ok && slot.Artifact != nil && !slot.Inherited {
			continue
		}
		st, ok := t.States[l.ID]
		if ok && (st.NoData() || (st.Status() == updatestate.Failure && st.Definitive())) {
			continue
		}
		return false
	}
	return true
}

func (p *TileProvider) subdividing(t *quadtree.Tile) bool {
	for _, d := range p.tree.Descendants(t.ID()) {
		if d.PendingSubdivision {
			return true
		}
	}
	return false
}

// Subdivide submits the geometry build of t's children. The children are
// added to the tree when the command resolves.
func (p *TileProvider) Subdivide(t *quadtree.Tile) *scheduler.Handle {
	if t.PendingSubdivision || !t.IsLeaf() {
		return nil
	}
	t.PendingSubdivision = true

	id := t.ID()
	tree := p.tree
	h := p.sched.Submit(&scheduler.Command{
		Key:       scheduler.Key{Tile: id, Resource: domain.ResourceSubdivision.String()},
		Kind:      domain.ResourceSubdivision,
		Priority:  t.Level,
		Requester: id,
		Request:   &subdivideRequest{extents: quadtree.Split(t.Extent)},
		EarlyDrop: func() bool { return !tree.Alive(id) },
		OnResolve: func(r scheduler.Result) { p.finishSubdivision(id, r) },
	})
	p.subdivisions[id] = h
	return h
}

func (p *TileProvider) finishSubdivision(id quadtree.ID, r scheduler.Result) {
	delete(p.subdivisions, id)
	t, ok := p.tree.Get(id)
	if !ok {
		return
	}
	t.PendingSubdivision = false

	if r.Err != nil {
		if domain.KindOf(r.Err) != domain.ErrCancelled {
			p.logger.Warn("subdivision failed", "tile", t.Key, "error", r.Err)
		}
		return
	}
	geoms, ok := r.Artifact.(*childGeometries)
	if !ok {
		p.logger.Error("unexpected subdivision artifact", "tile", t.Key, "artifact", fmt.Sprintf("%T", r.Artifact))
		return
	}

	children, err := p.tree.AddChildren(id)
	if err != nil {
		p.logger.Warn("subdivision discarded", "tile", t.Key, "error", err)
		return
	}
	for q, c := range children {
		c.Geometry = geoms[q]
		if err := p.comp.InheritFromParent(c); err != nil {
			p.logger.Warn("inherit from parent", "tile", c.Key, "error", err)
		}
	}

	metrics.Subdivisions.Inc()
	metrics.Tiles.Set(float64(p.tree.Len()))
	p.logger.Debug("tile subdivided", "tile", t.Key, "level", t.Level)
	p.onChange()
}

// Merge destroys every descendant of t. Their pending commands are
// cancelled and their own cache entries evicted; t keeps its material.
func (p *TileProvider) Merge(t *quadtree.Tile, layers []*layer.Layer) int {
	n := p.tree.RemoveDescendants(t.ID(), func(d *quadtree.Tile) {
		if h, ok := p.subdivisions[d.ID()]; ok {
			p.sched.Cancel(h)
			delete(p.subdivisions, d.ID())
		}
		p.data.Release(d, layers)
	})
	if n == 0 {
		return 0
	}

	metrics.Merges.Inc()
	metrics.Tiles.Set(float64(p.tree.Len()))
	p.logger.Debug("tile merged", "tile", t.Key, "removed", n)
	p.onChange()
	return n
}
