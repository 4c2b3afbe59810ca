package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// WMS requests a GetMap image for the tile's bounding box.
type WMS struct {
	base
	fetcher
	endpoint string
	layer    string
	crs      string
	mime     string
	tileSize int
}

type WMSConfig struct {
	Name     string
	URL      string
	Layer    string
	CRS      string
	Format   string
	TileSize int
	Zoom     domain.ZoomRange
	Extent   *orb.Bound
	Client   *http.Client
}

func NewWMS(cfg WMSConfig, l logger.Logger) *WMS {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.CRS == "" {
		cfg.CRS = "EPSG:3857"
	}
	return &WMS{
		base:     newBase(cfg.Name, cfg.Format, cfg.Zoom, cfg.Extent),
		fetcher:  newFetcher(cfg.Name, cfg.Client, l),
		endpoint: cfg.URL,
		layer:    cfg.Layer,
		crs:      cfg.CRS,
		mime:     mimeFor(cfg.Format),
		tileSize: cfg.TileSize,
	}
}

var _ Source = (*WMS)(nil)

func (s *WMS) BuildRequestKey(tile maptile.Tile, extent orb.Bound) (Request, error) {
	if err := s.check(tile, extent); err != nil {
		return Request{}, err
	}
	if extent.IsEmpty() {
		return Request{}, domain.Errorf(domain.ErrOutOfRange, "build request", "empty extent for %v", tile)
	}

	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", "1.3.0")
	q.Set("LAYERS", s.layer)
	q.Set("STYLES", "")
	q.Set("CRS", s.crs)
	q.Set("BBOX", bbox(extent))
	q.Set("WIDTH", strconv.Itoa(s.tileSize))
	q.Set("HEIGHT", strconv.Itoa(s.tileSize))
	q.Set("FORMAT", s.mime)
	q.Set("TRANSPARENT", "true")

	return Request{Tile: tile, Extent: extent, URL: s.endpoint + "?" + q.Encode()}, nil
}

func (s *WMS) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return fetchURL(ctx, &s.fetcher, req)
}

func bbox(b orb.Bound) string {
	return fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(b.Min[0], 'f', -1, 64),
		strconv.FormatFloat(b.Min[1], 'f', -1, 64),
		strconv.FormatFloat(b.Max[0], 'f', -1, 64),
		strconv.FormatFloat(b.Max[1], 'f', -1, 64),
	)
}

func mimeFor(format string) string {
	switch format {
	case "png", "terrain-rgb":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "geojson":
		return "application/json"
	case "mvt", "pbf":
		return "application/vnd.mapbox-vector-tile"
	}
	return "application/octet-stream"
}
