package source

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/broken"):
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte("payload:" + r.URL.RequestURI()))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTMSBuildsTemplateURL(t *testing.T) {
	src := NewTMS(TMSConfig{
		Name:   "osm",
		URL:    "https://tiles.example/{z}/{x}/{y}.png?flip={-y}",
		Format: "png",
		Zoom:   domain.ZoomRange{Min: 0, Max: 19},
	}, logger.NewNop())

	tile := maptile.New(3, 1, 2)
	req, err := src.BuildRequestKey(tile, tile.Bound())
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.example/2/3/1.png?flip=2", req.URL)

	_, err = src.BuildRequestKey(maptile.New(0, 0, 20), orb.Bound{})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestTMSFetchClassifiesStatus(t *testing.T) {
	var hits atomic.Int32
	srv := tileServer(t, &hits)
	ctx := context.Background()

	for _, tc := range []struct {
		path string
		want error
	}{
		{"/ok/{z}/{x}/{y}", nil},
		{"/missing/{z}/{x}/{y}", domain.ErrOutOfRange},
		{"/broken/{z}/{x}/{y}", domain.ErrTransientFetch},
	} {
		t.Run(tc.path, func(t *testing.T) {
			src := NewTMS(TMSConfig{Name: "t", URL: srv.URL + tc.path, Format: "png", Zoom: domain.ZoomRange{Max: 5}}, logger.NewNop())
			req, err := src.BuildRequestKey(maptile.New(1, 1, 1), maptile.New(1, 1, 1).Bound())
			require.NoError(t, err)

			data, err := src.Fetch(ctx, req)
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, "payload:/ok/1/1/1", string(data))
				return
			}
			assert.Equal(t, tc.want, domain.KindOf(err))
		})
	}
}

func TestWMSRequestsTileBoundingBox(t *testing.T) {
	src := NewWMS(WMSConfig{
		Name:   "ortho",
		URL:    "https://wms.example/ows",
		Layer:  "ORTHOIMAGERY",
		Format: "jpeg",
		Zoom:   domain.ZoomRange{Max: 20},
	}, logger.NewNop())

	extent := orb.Bound{Min: orb.Point{0, -50}, Max: orb.Point{100, 50.5}}
	req, err := src.BuildRequestKey(maptile.New(0, 0, 1), extent)
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "GetMap", q.Get("REQUEST"))
	assert.Equal(t, "ORTHOIMAGERY", q.Get("LAYERS"))
	assert.Equal(t, "0,-50,100,50.5", q.Get("BBOX"))
	assert.Equal(t, "image/jpeg", q.Get("FORMAT"))
	assert.Equal(t, "256", q.Get("WIDTH"))
}

func TestWFSRejectsUncoveredExtent(t *testing.T) {
	coverage := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	src := NewWFS(WFSConfig{Name: "roads", URL: "https://wfs.example", TypeName: "roads", Zoom: domain.ZoomRange{Max: 18}, Extent: &coverage}, logger.NewNop())

	_, err := src.BuildRequestKey(maptile.New(0, 0, 3), orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{30, 30}})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)

	req, err := src.BuildRequestKey(maptile.New(0, 0, 3), orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{15, 15}})
	require.NoError(t, err)
	assert.Contains(t, req.URL, "OUTPUTFORMAT=application%2Fjson")
}

func TestCachedFetchesUpstreamOnce(t *testing.T) {
	var hits atomic.Int32
	srv := tileServer(t, &hits)
	src := NewCached(NewTMS(TMSConfig{Name: "osm", URL: srv.URL + "/ok/{z}/{x}/{y}", Format: "png", Zoom: domain.ZoomRange{Max: 5}}, logger.NewNop()), cache.NewMapCache(), logger.NewNop())

	tile := maptile.New(2, 1, 2)
	req, err := src.BuildRequestKey(tile, tile.Bound())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		data, err := src.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "payload:/ok/2/2/1", string(data))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	var hits atomic.Int32
	srv := tileServer(t, &hits)
	src := NewCached(NewTMS(TMSConfig{Name: "bad", URL: srv.URL + "/broken/{z}/{x}/{y}", Format: "png", Zoom: domain.ZoomRange{Max: 5}}, logger.NewNop()), cache.NewMapCache(), logger.NewNop())

	req, err := src.BuildRequestKey(maptile.New(0, 0, 0), maptile.New(0, 0, 0).Bound())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrTransientFetch)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestMBTilesFlipsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
		INSERT INTO metadata VALUES ('format', 'png'), ('minzoom', '0'), ('maxzoom', '4');
		INSERT INTO tiles VALUES (2, 1, 2, x'89504e47');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := OpenMBTiles("local", path, "", nil, logger.NewNop())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "png", src.Format())
	assert.Equal(t, domain.ZoomRange{Min: 0, Max: 4}, src.ZoomRange())

	tile := maptile.New(1, 1, 2)
	req, err := src.BuildRequestKey(tile, tile.Bound())
	require.NoError(t, err)
	data, err := src.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	other := maptile.New(0, 0, 2)
	req, err = src.BuildRequestKey(other, other.Bound())
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestFromConfig(t *testing.T) {
	zmax := 12
	block := &config.SourceBlock{Type: "xyz", URL: "https://t.example/{z}/{x}/{y}.png", Format: "png", ZoomMax: &zmax}

	src, err := FromConfig("osm", block, cache.NewMapCache(), nil, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, src)
	assert.Equal(t, domain.ZoomRange{Min: 0, Max: 12}, src.ZoomRange())

	again, err := FromConfig("osm", block, nil, nil, logger.NewNop())
	require.NoError(t, err)
	assert.NotEqual(t, src.UID(), again.UID())

	_, err = FromConfig("x", &config.SourceBlock{Type: "ftp", ZoomMax: &zmax}, nil, nil, logger.NewNop())
	assert.Error(t, err)
}
