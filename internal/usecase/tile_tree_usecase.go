package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/compositor"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/layer"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/provider"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var (
	ErrLayerNotFound = errors.New("layer not found")
	ErrLayerExists   = errors.New("layer already attached")
	ErrStopped       = errors.New("tile tree stopped")
)

type Config struct {
	RootExtent    orb.Bound
	FrameInterval time.Duration
	Backoff       updatestate.Backoff
	Tiles         provider.TileConfig
}

// FrameStats describes the last frame update.
type FrameStats struct {
	Tiles      int           `json:"tiles"`
	Evaluated  int           `json:"evaluated"`
	Subdivided int           `json:"subdivided"`
	Merged     int           `json:"merged"`
	Requested  int           `json:"requested"`
	Completed  int           `json:"completed"`
	Duration   time.Duration `json:"duration"`
}

type Stats struct {
	Frames    uint64          `json:"frames"`
	LastFrame FrameStats      `json:"last_frame"`
	Scheduler scheduler.Stats `json:"scheduler"`
}

// TileTreeUseCase is a tiled geometry layer: one quadtree with the data
// layers attached to it, driven by a frame loop.
//
// All state belongs to the goroutine running Run. Other goroutines reach
// it through Do.
type TileTreeUseCase struct {
	cfg    Config
	tree   *quadtree.Tree
	sched  *scheduler.Scheduler
	comp   *compositor.Compositor
	data   *provider.DataSourceProvider
	tiles  *provider.TileProvider
	layers []*layer.Layer
	logger logger.Logger

	view   provider.View
	dirty  bool
	frames uint64
	last   FrameStats

	ops     chan func()
	stopped chan struct{}
}

func NewTileTreeUseCase(cfg Config, sched *scheduler.Scheduler, l logger.Logger) (*TileTreeUseCase, error) {
	if cfg.RootExtent.Max[0] <= cfg.RootExtent.Min[0] || cfg.RootExtent.Max[1] <= cfg.RootExtent.Min[1] {
		return nil, fmt.Errorf("empty root extent %v", cfg.RootExtent)
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}

	tree := quadtree.NewTree()
	comp := compositor.New(tree, l)
	data := provider.NewDataSourceProvider(tree, sched, comp, cfg.Backoff, l)
	tiles, err := provider.NewTileProvider(cfg.Tiles, tree, sched, comp, data, l)
	if err != nil {
		return nil, err
	}

	uc := &TileTreeUseCase{
		cfg:     cfg,
		tree:    tree,
		sched:   sched,
		comp:    comp,
		data:    data,
		tiles:   tiles,
		logger:  l,
		dirty:   true,
		ops:     make(chan func()),
		stopped: make(chan struct{}),
	}
	data.OnChange(uc.NotifyChange)
	tiles.OnChange(uc.NotifyChange)

	root := tree.AddRoot(maptile.New(0, 0, 0), cfg.RootExtent)
	root.Geometry = tiles.Geometry(root.Extent)
	metrics.Tiles.Set(float64(tree.Len()))
	return uc, nil
}

// Attach adds l to every tile of the tree. Layers are ordered by attach
// order unless the layer sets its own.
func (uc *TileTreeUseCase) Attach(l *layer.Layer) error {
	if uc.layer(l.ID) != nil {
		return fmt.Errorf("%s: %w", l.ID, ErrLayerExists)
	}
	uc.layers = append(uc.layers, l)
	slot := compositor.LayerSlot{ID: l.ID, Kind: l.Kind, Order: l.Order, Visible: l.Visible, Opacity: l.Opacity}
	uc.tree.Walk(func(t *quadtree.Tile) bool {
		uc.comp.Attach(t, slot)
		return true
	})
	uc.logger.Info("layer attached", "layer", l.ID, "kind", l.Kind, "source", l.Source().Name())
	uc.NotifyChange()
	return nil
}

func (uc *TileTreeUseCase) Layers() []*layer.Layer { return uc.layers }

func (uc *TileTreeUseCase) layer(id domain.LayerID) *layer.Layer {
	for _, l := range uc.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// NotifyChange asks for an update on the next frame.
func (uc *TileTreeUseCase) NotifyChange() { uc.dirty = true }

func (uc *TileTreeUseCase) SetView(v provider.View) {
	uc.view = v
	uc.NotifyChange()
}

func (uc *TileTreeUseCase) View() provider.View { return uc.view }

// Update runs one frame: completions are delivered, every tile is evaluated
// against the view, visible leaves request their missing layer data and
// queued commands are started.
func (uc *TileTreeUseCase) Update() FrameStats {
	started := time.Now()
	uc.dirty = false

	fs := FrameStats{Completed: uc.sched.Drain()}
	uc.tree.Walk(func(t *quadtree.Tile) bool {
		fs.Evaluated++
		switch uc.tiles.Evaluate(t, uc.view, uc.layers) {
		case provider.ActionSubdivide:
			if uc.tiles.Subdivide(t) != nil {
				fs.Subdivided++
			}
		case provider.ActionMerge:
			if uc.tiles.Merge(t, uc.layers) > 0 {
				fs.Merged++
			}
		}

		if t.IsLeaf() && uc.view.Sees(t) {
			for _, l := range uc.layers {
				if uc.data.Update(t, l) != nil {
					fs.Requested++
				}
			}
		}
		return true
	})
	uc.sched.Dispatch()

	fs.Tiles = uc.tree.Len()
	fs.Duration = time.Since(started)
	uc.frames++
	uc.last = fs
	metrics.FrameUpdateDuration.Observe(fs.Duration.Seconds())
	return fs
}

// busy reports whether commands are still queued or running.
func (uc *TileTreeUseCase) busy() bool {
	st := uc.sched.Stats()
	return st.Waiting > 0 || st.Running > 0
}

// Run drives frames until ctx is done. A frame runs on every tick while a
// change is pending or commands are in flight.
func (uc *TileTreeUseCase) Run(ctx context.Context) error {
	defer close(uc.stopped)
	defer uc.sched.Close()

	ticker := time.NewTicker(uc.cfg.FrameInterval)
	defer ticker.Stop()

	uc.logger.Info("frame loop started", "interval", uc.cfg.FrameInterval)
	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("frame loop stopped", "frames", uc.frames)
			return ctx.Err()
		case fn := <-uc.ops:
			fn()
		case <-ticker.C:
			if uc.dirty || uc.busy() {
				uc.Update()
			}
		}
	}
}

// Do runs fn on the frame loop and waits for it to return.
func (uc *TileTreeUseCase) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case uc.ops <- func() { defer close(done); fn() }:
	case <-uc.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearLayerCache drops every artifact of a layer and makes all tiles
// request its data again.
func (uc *TileTreeUseCase) ClearLayerCache(id domain.LayerID) error {
	l := uc.layer(id)
	if l == nil {
		return fmt.Errorf("%s: %w", id, ErrLayerNotFound)
	}
	uc.data.ClearLayer(l)
	uc.logger.Info("layer cache cleared", "layer", id)
	return nil
}

// SetLayerVisibility shows or hides a layer. Hidden layers keep their data
// but are not updated.
func (uc *TileTreeUseCase) SetLayerVisibility(id domain.LayerID, visible bool, opacity float64) error {
	l := uc.layer(id)
	if l == nil {
		return fmt.Errorf("%s: %w", id, ErrLayerNotFound)
	}
	l.Visible = visible
	l.Opacity = opacity
	uc.comp.SetVisibility(id, visible, opacity)
	uc.NotifyChange()
	return nil
}

// SetLayerOrder reorders the layers of every tile. Layers left out keep
// their relative order after the listed ones.
func (uc *TileTreeUseCase) SetLayerOrder(order []domain.LayerID) error {
	seen := make(map[domain.LayerID]bool, len(order))
	for _, id := range order {
		if uc.layer(id) == nil {
			return fmt.Errorf("%s: %w", id, ErrLayerNotFound)
		}
		seen[id] = true
	}
	full := append([]domain.LayerID(nil), order...)
	for _, l := range uc.layers {
		if !seen[l.ID] {
			full = append(full, l.ID)
		}
	}
	for i, id := range full {
		uc.layer(id).Order = i
	}
	uc.comp.SetLayerOrder(full)
	uc.NotifyChange()
	return nil
}

func (uc *TileTreeUseCase) Stats() Stats {
	return Stats{
		Frames:    uc.frames,
		LastFrame: uc.last,
		Scheduler: uc.sched.Stats(),
	}
}

// Tree exposes the quadtree for read access on the frame loop.
func (uc *TileTreeUseCase) Tree() *quadtree.Tree { return uc.tree }
