package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// WFS requests the GeoJSON features of a type intersecting the tile's box.
type WFS struct {
	base
	fetcher
	endpoint string
	typeName string
	crs      string
}

type WFSConfig struct {
	Name     string
	URL      string
	TypeName string
	CRS      string
	Zoom     domain.ZoomRange
	Extent   *orb.Bound
	Client   *http.Client
}

func NewWFS(cfg WFSConfig, l logger.Logger) *WFS {
	if cfg.CRS == "" {
		cfg.CRS = "EPSG:3857"
	}
	return &WFS{
		base:     newBase(cfg.Name, "geojson", cfg.Zoom, cfg.Extent),
		fetcher:  newFetcher(cfg.Name, cfg.Client, l),
		endpoint: cfg.URL,
		typeName: cfg.TypeName,
		crs:      cfg.CRS,
	}
}

var _ Source = (*WFS)(nil)

func (s *WFS) BuildRequestKey(tile maptile.Tile, extent orb.Bound) (Request, error) {
	if err := s.check(tile, extent); err != nil {
		return Request{}, err
	}
	if extent.IsEmpty() {
		return Request{}, domain.Errorf(domain.ErrOutOfRange, "build request", "empty extent for %v", tile)
	}

	q := url.Values{}
	q.Set("SERVICE", "WFS")
	q.Set("REQUEST", "GetFeature")
	q.Set("VERSION", "2.0.0")
	q.Set("TYPENAMES", s.typeName)
	q.Set("OUTPUTFORMAT", "application/json")
	q.Set("SRSNAME", s.crs)
	q.Set("BBOX", bbox(extent)+","+s.crs)

	return Request{Tile: tile, Extent: extent, URL: s.endpoint + "?" + q.Encode()}, nil
}

func (s *WFS) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return fetchURL(ctx, &s.fetcher, req)
}
