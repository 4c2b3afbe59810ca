package source

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TMS serves tiles from a z/x/y URL template. {z}, {x} and {y} are
// substituted; {-y} or a TMS flag selects the bottom-origin row.
type TMS struct {
	base
	fetcher
	template string
	tms      bool
}

type TMSConfig struct {
	Name   string
	URL    string
	Format string
	Zoom   domain.ZoomRange
	Extent *orb.Bound
	TMS    bool
	Client *http.Client
}

func NewTMS(cfg TMSConfig, l logger.Logger) *TMS {
	return &TMS{
		base:     newBase(cfg.Name, cfg.Format, cfg.Zoom, cfg.Extent),
		fetcher:  newFetcher(cfg.Name, cfg.Client, l),
		template: cfg.URL,
		tms:      cfg.TMS,
	}
}

var _ Source = (*TMS)(nil)

func (s *TMS) BuildRequestKey(tile maptile.Tile, extent orb.Bound) (Request, error) {
	if err := s.check(tile, extent); err != nil {
		return Request{}, err
	}

	flipped := (uint32(1) << tile.Z) - 1 - tile.Y
	y := tile.Y
	if s.tms {
		y = flipped
	}
	url := strings.NewReplacer(
		"{z}", strconv.Itoa(int(tile.Z)),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{-y}", strconv.FormatUint(uint64(flipped), 10),
	).Replace(s.template)

	return Request{Tile: tile, Extent: extent, URL: url}, nil
}

func (s *TMS) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return fetchURL(ctx, &s.fetcher, req)
}
