// Package provider decides what each tile needs: the data source provider
// turns (tile, layer) pairs into scheduler commands, and the tile provider
// grows and shrinks the quadtree.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/compositor"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/layer"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/parser"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type pendingKey struct {
	tile  quadtree.ID
	layer domain.LayerID
}

// fetchRequest travels inside a command to the fetch executor.
type fetchRequest struct {
	source source.Source
	req    source.Request
	opts   parser.Options
}

// fetchExecutor fetches a payload and decodes it. It runs off the control
// loop and touches nothing but its request.
type fetchExecutor struct{}

func (fetchExecutor) Execute(ctx context.Context, cmd *scheduler.Command) (domain.Artifact, error) {
	fr, ok := cmd.Request.(*fetchRequest)
	if !ok {
		return nil, domain.Errorf(domain.ErrFormat, "fetch", "unexpected request %T", cmd.Request)
	}
	data, err := fr.source.Fetch(ctx, fr.req)
	if err != nil {
		return nil, err
	}
	return parser.Parse(data, fr.opts)
}

type DataSourceProvider struct {
	tree    *quadtree.Tree
	sched   *scheduler.Scheduler
	comp    *compositor.Compositor
	backoff updatestate.Backoff
	logger  logger.Logger

	now      func() time.Time
	onChange func()
	pending  map[pendingKey]*scheduler.Handle
}

func NewDataSourceProvider(tree *quadtree.Tree, sched *scheduler.Scheduler, comp *compositor.Compositor, b updatestate.Backoff, l logger.Logger) *DataSourceProvider {
	p := &DataSourceProvider{
		tree:     tree,
		sched:    sched,
		comp:     comp,
		backoff:  b,
		logger:   l,
		now:      time.Now,
		onChange: func() {},
		pending:  make(map[pendingKey]*scheduler.Handle),
	}
	for _, kind := range []domain.ResourceKind{domain.ResourceTexture, domain.ResourceElevation, domain.ResourceFeatures} {
		sched.Register(kind, fetchExecutor{})
	}
	return p
}

// OnChange sets the function called whenever a tile's material changed.
func (p *DataSourceProvider) OnChange(fn func()) { p.onChange = fn }

// SetClock replaces the time source used for retry backoff.
func (p *DataSourceProvider) SetClock(now func() time.Time) { p.now = now }

// Update issues whatever command layer l still needs on tile t. It returns
// the handle of a newly submitted command, or nil when nothing was
// submitted.
func (p *DataSourceProvider) Update(t *quadtree.Tile, l *layer.Layer) *scheduler.Handle {
	if !l.Visible {
		return nil
	}
	switch l.Kind {
	case domain.ColorLayer, domain.ElevationLayer:
		return p.RequestRaster(t, l)
	case domain.GeometryLayer:
		return p.RequestFeatures(t, l)
	}
	return nil
}

// RequestRaster targets the layer's next level for t, clamped to the
// source's zoom range, and fetches the ancestor tile at that level.
func (p *DataSourceProvider) RequestRaster(t *quadtree.Tile, l *layer.Layer) *scheduler.Handle {
	state := t.LayerState(l.ID, p.backoff)
	current := t.Material.Level(l.ID)
	next := l.NextLevel(current, t.Level, state.LowestLevelError())
	want := l.Version(next)
	if !state.CanRefresh(p.now(), want) {
		return nil
	}

	key := quadtree.AncestorKey(t.Key, next)
	ext := quadtree.AncestorExtent(t.Key, t.Extent, next)
	kind := domain.ResourceTexture
	if l.Kind == domain.ElevationLayer {
		kind = domain.ResourceElevation
	}

	return p.request(t, l, state, want, key, ext, kind, true, func(a domain.Artifact) (domain.Artifact, error) {
		return a, nil
	})
}

// RequestFeatures fetches the features for t's extent and masks them to it.
// With MergeFeatures, tiles at or below MergeZoom share a single fetch of
// their ancestor at MergeZoom.
func (p *DataSourceProvider) RequestFeatures(t *quadtree.Tile, l *layer.Layer) *scheduler.Handle {
	zoom := l.Source().ZoomRange()
	if t.Level < zoom.Min {
		return nil
	}

	state := t.LayerState(l.ID, p.backoff)
	want := l.Version(t.Level)
	if state.Settled(want) || !state.CanRefresh(p.now(), want) {
		return nil
	}

	fetchLevel := zoom.Clamp(t.Level)
	shared := fetchLevel != t.Level
	if l.MergeFeatures && t.Level >= l.MergeZoom {
		fetchLevel = zoom.Clamp(l.MergeZoom)
		shared = true
	}
	key := quadtree.AncestorKey(t.Key, fetchLevel)
	ext := quadtree.AncestorExtent(t.Key, t.Extent, fetchLevel)
	extent := t.Extent
	merged := l.MergeFeatures

	return p.request(t, l, state, want, key, ext, domain.ResourceFeatures, shared, func(a domain.Artifact) (domain.Artifact, error) {
		set, ok := a.(*domain.FeatureSet)
		if !ok {
			return nil, domain.Errorf(domain.ErrFormat, "build features", "unexpected artifact %T", a)
		}
		return buildFeatureMesh(set, extent, merged), nil
	})
}

// request serves want from the layer cache when it can, and otherwise
// submits a fetch command. finish turns the fetched artifact into what the
// tile's slot holds.
func (p *DataSourceProvider) request(
	t *quadtree.Tile,
	l *layer.Layer,
	state *updatestate.State,
	want updatestate.Version,
	key maptile.Tile,
	ext orb.Bound,
	kind domain.ResourceKind,
	shared bool,
	finish func(domain.Artifact) (domain.Artifact, error),
) *scheduler.Handle {
	if err := state.MarkPending(want); err != nil {
		p.logger.Warn("duplicate layer request", "tile", t.Key, "layer", l.ID, "error", err)
		return nil
	}

	src := l.Source()
	req, err := src.BuildRequestKey(key, ext)
	if err != nil {
		p.settle(t.ID(), l, state, want, nil, err)
		return nil
	}

	ck := l.CacheKey(req)
	if a, ok := l.Cache.Get(ck); ok {
		out, err := finish(a)
		p.settle(t.ID(), l, state, want, out, err)
		return nil
	}

	id := t.ID()
	cmd := &scheduler.Command{
		Kind:      kind,
		Priority:  t.Level,
		Requester: id,
		Request: &fetchRequest{
			source: src,
			req:    req,
			opts:   parser.Options{Kind: l.Kind, Format: src.Format(), Tile: req.Tile, Extent: req.Extent, Level: want.Level},
		},
	}
	// Shared fetches outlive any single requester: Release cancels the
	// handles of destroyed tiles and the job is dropped once none is left.
	if shared {
		cmd.Key = scheduler.Key{Layer: l.ID, Resource: kind.String() + "/" + ck.String()}
	} else {
		tree := p.tree
		cmd.Key = scheduler.Key{Layer: l.ID, Tile: id, Resource: kind.String() + "/" + ck.String()}
		cmd.EarlyDrop = func() bool { return !tree.Alive(id) }
	}

	var h *scheduler.Handle
	cmd.OnResolve = func(r scheduler.Result) {
		pk := pendingKey{tile: id, layer: l.ID}
		if p.pending[pk] == h {
			delete(p.pending, pk)
		}
		tile, ok := p.tree.Get(id)
		if !ok {
			return
		}
		st := tile.States[l.ID]
		if st == nil || st.Status() != updatestate.Pending || st.PendingVersion() != want {
			return
		}
		if r.Err != nil {
			p.settle(id, l, st, want, nil, r.Err)
			return
		}
		if want.SourceUID == l.Source().UID() {
			l.Cache.Add(ck, r.Artifact)
		}
		out, err := finish(r.Artifact)
		p.settle(id, l, st, want, out, err)
	}
	h = p.sched.Submit(cmd)
	p.pending[pendingKey{tile: id, layer: l.ID}] = h
	return h
}

// settle records the outcome of a request in the tile's layer state and
// installs a successful artifact.
func (p *DataSourceProvider) settle(id quadtree.ID, l *layer.Layer, state *updatestate.State, want updatestate.Version, a domain.Artifact, err error) {
	if err == nil && want.SourceUID != l.Source().UID() {
		state.Abort()
		return
	}

	switch kind := domain.KindOf(err); kind {
	case nil:
		if err := p.comp.Apply(id, l.ID, a, want.Level); err != nil {
			state.Abort()
			return
		}
		_ = state.MarkSuccess(want)
		p.onChange()
	case domain.ErrOutOfRange:
		_ = state.MarkNoData(want)
		p.logger.Debug("no data for tile", "tile", id, "layer", l.ID, "level", want.Level)
		p.onChange()
	case domain.ErrCancelled, domain.ErrStateConflict:
		state.Abort()
	default:
		_ = state.MarkFailure(p.now(), err)
		p.logger.Warn("layer request failed",
			"tile", id,
			"layer", l.ID,
			"level", want.Level,
			"attempt", state.Failures(),
			"definitive", state.Definitive(),
			"retry_in", state.RetryAt().Sub(p.now()),
			"error", err,
		)
	}
}

// Release cancels the pending commands of a tile that is being destroyed
// and evicts the artifacts cached under its own spatial key.
func (p *DataSourceProvider) Release(t *quadtree.Tile, layers []*layer.Layer) {
	for _, l := range layers {
		pk := pendingKey{tile: t.ID(), layer: l.ID}
		if h, ok := p.pending[pk]; ok {
			p.sched.Cancel(h)
			delete(p.pending, pk)
		}
		l.Cache.Remove(layer.CacheKey{SourceUID: l.Source().UID(), Tile: t.Key, Format: l.Source().Format()})
	}
}

// Pending reports whether a command is in flight for layer on tile.
func (p *DataSourceProvider) Pending(id quadtree.ID, layer domain.LayerID) bool {
	_, ok := p.pending[pendingKey{tile: id, layer: layer}]
	return ok
}

// ClearLayer cancels every pending command of l, drops its cached
// artifacts and resets its slot and state on every tile.
func (p *DataSourceProvider) ClearLayer(l *layer.Layer) {
	for pk, h := range p.pending {
		if pk.layer == l.ID {
			p.sched.Cancel(h)
			delete(p.pending, pk)
		}
	}
	l.ClearCache()
	p.comp.ClearLayer(l.ID)
	p.tree.Walk(func(t *quadtree.Tile) bool {
		delete(t.States, l.ID)
		return true
	})
	p.onChange()
}

func (p *DataSourceProvider) String() string {
	return fmt.Sprintf("DataSourceProvider(%d pending)", len(p.pending))
}
