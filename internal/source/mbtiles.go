package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MBTiles reads tiles from a local MBTiles database. Rows are stored with a
// bottom-origin tile_row.
type MBTiles struct {
	base
	db     *sql.DB
	stmt   *sql.Stmt
	logger logger.Logger
}

// OpenMBTiles opens path read-only. Zoom bounds and format missing from
// the arguments are taken from the metadata table.
func OpenMBTiles(name, path, format string, zoom *domain.ZoomRange, l logger.Logger) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}

	meta, err := readMetadata(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read mbtiles metadata %s: %w", path, err)
	}

	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, err
	}

	if format == "" {
		format = meta["format"]
	}
	zr := domain.ZoomRange{Min: atoiOr(meta["minzoom"], 0), Max: atoiOr(meta["maxzoom"], 22)}
	if zoom != nil {
		zr = *zoom
	}

	l.Info("mbtiles source opened", "path", path, "format", format, "zoom_min", zr.Min, "zoom_max", zr.Max)

	return &MBTiles{
		base:   newBase(name, format, zr, nil),
		db:     db,
		stmt:   stmt,
		logger: l,
	}, nil
}

var _ Source = (*MBTiles)(nil)

func (s *MBTiles) BuildRequestKey(tile maptile.Tile, extent orb.Bound) (Request, error) {
	if err := s.check(tile, extent); err != nil {
		return Request{}, err
	}
	return Request{Tile: tile, Extent: extent}, nil
}

func (s *MBTiles) Fetch(ctx context.Context, req Request) ([]byte, error) {
	x, y, z := req.Tile.X, req.Tile.Y, req.Tile.Z
	y = (1 << z) - 1 - y

	metrics.SourceFetches.WithLabelValues(s.name).Inc()
	var tileData []byte
	if err := s.stmt.QueryRowContext(ctx, z, x, y).Scan(&tileData); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrOutOfRange, "fetch "+s.name, "no tile %d/%d/%d", z, req.Tile.X, req.Tile.Y)
		}
		return nil, domain.NewError(domain.ErrTransientFetch, "fetch "+s.name, err)
	}
	return tileData, nil
}

func (s *MBTiles) Close() error {
	return errors.Join(s.stmt.Close(), s.db.Close())
}

func readMetadata(db *sql.DB) (map[string]string, error) {
	metadata := make(map[string]string)

	rows, err := db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	return metadata, rows.Err()
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
