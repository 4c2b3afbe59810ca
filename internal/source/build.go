package source

import (
	"fmt"
	"net/http"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
)

// FromConfig builds the source described by a layer's source block. name
// namespaces the source's payloads in the cache. A nil payloads cache
// leaves the source uncached.
func FromConfig(name string, b *config.SourceBlock, payloads cache.TileCache, client *http.Client, l logger.Logger) (Source, error) {
	zoom := domain.ZoomRange{Min: b.ZoomMin, Max: *b.ZoomMax}
	if zoom.Min > zoom.Max {
		return nil, fmt.Errorf("source %s: zoom_min %d above zoom_max %d", name, zoom.Min, zoom.Max)
	}
	var extent *orb.Bound
	if len(b.Extent) == 4 {
		extent = &orb.Bound{Min: orb.Point{b.Extent[0], b.Extent[1]}, Max: orb.Point{b.Extent[2], b.Extent[3]}}
	}

	var src Source
	switch b.Type {
	case "tms", "xyz":
		if b.URL == "" {
			return nil, fmt.Errorf("source %s: url is required", name)
		}
		src = NewTMS(TMSConfig{
			Name:   name,
			URL:    b.URL,
			Format: b.Format,
			Zoom:   zoom,
			Extent: extent,
			TMS:    b.TMS || b.Type == "tms",
			Client: client,
		}, l)
	case "wms":
		if b.URL == "" || b.Name == "" {
			return nil, fmt.Errorf("source %s: url and name are required", name)
		}
		src = NewWMS(WMSConfig{
			Name:     name,
			URL:      b.URL,
			Layer:    b.Name,
			CRS:      b.CRS,
			Format:   b.Format,
			TileSize: b.TileSize,
			Zoom:     zoom,
			Extent:   extent,
			Client:   client,
		}, l)
	case "wfs":
		if b.URL == "" || b.Name == "" {
			return nil, fmt.Errorf("source %s: url and name are required", name)
		}
		src = NewWFS(WFSConfig{
			Name:     name,
			URL:      b.URL,
			TypeName: b.Name,
			CRS:      b.CRS,
			Zoom:     zoom,
			Extent:   extent,
			Client:   client,
		}, l)
	case "mbtiles":
		if b.Path == "" {
			return nil, fmt.Errorf("source %s: path is required", name)
		}
		mb, err := OpenMBTiles(name, b.Path, b.Format, &zoom, l)
		if err != nil {
			return nil, err
		}
		// Local files are not worth a second cache.
		return mb, nil
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", name, b.Type)
	}

	if payloads == nil {
		return src, nil
	}
	return NewCached(src, payloads, l), nil
}
