// Package testutil holds fakes shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// FakeSource serves payloads from a function and counts fetches per tile.
// Block makes fetches wait until Release.
type FakeSource struct {
	uid    uint64
	name   string
	format string
	zoom   domain.ZoomRange

	mu      sync.Mutex
	payload func(source.Request) ([]byte, error)
	fetches map[maptile.Tile]int
	total   int
	gate    chan struct{}
	started chan source.Request
}

func NewFakeSource(name, format string, zoom domain.ZoomRange, payload func(source.Request) ([]byte, error)) *FakeSource {
	return &FakeSource{
		uid:     source.NewUID(),
		name:    name,
		format:  format,
		zoom:    zoom,
		payload: payload,
		fetches: make(map[maptile.Tile]int),
		started: make(chan source.Request, 64),
	}
}

var _ source.Source = (*FakeSource)(nil)

func (s *FakeSource) UID() uint64 { return s.uid }
func (s *FakeSource) Name() string { return s.name }
func (s *FakeSource) Format() string { return s.format }
func (s *FakeSource) ZoomRange() domain.ZoomRange { return s.zoom }
func (s *FakeSource) SupportsZoom(level int) bool { return s.zoom.Contains(level) }

func (s *FakeSource) BuildRequestKey(tile maptile.Tile, extent orb.Bound) (source.Request, error) {
	if !s.SupportsZoom(int(tile.Z)) {
		return source.Request{}, domain.Errorf(domain.ErrOutOfRange, "build request", "no level %d", tile.Z)
	}
	return source.Request{Tile: tile, Extent: extent}, nil
}

func (s *FakeSource) Fetch(ctx context.Context, req source.Request) ([]byte, error) {
	s.mu.Lock()
	s.fetches[req.Tile]++
	s.total++
	gate := s.gate
	payload := s.payload
	s.mu.Unlock()

	select {
	case s.started <- req:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return payload(req)
}

// Block makes subsequent fetches wait for Release.
func (s *FakeSource) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

func (s *FakeSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Started receives every request as its fetch begins.
func (s *FakeSource) Started() <-chan source.Request { return s.started }

func (s *FakeSource) SetPayload(payload func(source.Request) ([]byte, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
}

func (s *FakeSource) Fetches(tile maptile.Tile) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[tile]
}

func (s *FakeSource) TotalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// PNG encodes a w×h image filled with c.
func PNG(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNGPayload serves the same small PNG for every request.
func PNGPayload(source.Request) ([]byte, error) {
	return PNG(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255}), nil
}
