package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/layer"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/provider"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/testutil"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	router *gin.Engine
	stop   func()
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	world := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}
	sched := scheduler.New(scheduler.Config{MaxConcurrent: 2}, logger.NewNop())
	tree, err := usecase.NewTileTreeUseCase(usecase.Config{
		RootExtent:    world,
		FrameInterval: time.Millisecond,
		Backoff:       updatestate.DefaultBackoff,
		Tiles: provider.TileConfig{
			MaxLevel:          1,
			SSEThreshold:      1,
			MergeRatio:        0.5,
			TileSize:          256,
			Segments:          2,
			GeometryCacheSize: 4,
		},
	}, sched, logger.NewNop())
	require.NoError(t, err)

	src := testutil.NewFakeSource("ortho", "png", domain.ZoomRange{Min: 0, Max: 18}, testutil.PNGPayload)
	ortho, err := layer.New("ortho", src, layer.Options{Kind: domain.ColorLayer, Visible: true, Opacity: 1, CacheSize: 8})
	require.NoError(t, err)
	require.NoError(t, tree.Attach(ortho))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tree.Run(ctx)
	}()
	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)

	tiles := usecase.NewTileCacheUseCase([]source.Source{src}, world, logger.NewNop())
	h := handler.NewHandler(validator.New(), tree, tiles)
	return &api{router: NewRouter(h, logger.NewNop(), false), stop: stop}
}

func (a *api) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	w, _ := a.do(t, http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetViewGrowsTree(t *testing.T) {
	a := newAPI(t)

	w, resp := a.do(t, http.MethodPut, "/api/v1/view", `{"x":50,"y":50,"z":10,"fov":0,"screen_height":1000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)

	w, _ = a.do(t, http.MethodPut, "/api/v1/view", `{"x":50,"y":50,"z":10,"fov":1.57,"screen_height":1000,"visible":[0,0]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = a.do(t, http.MethodPut, "/api/v1/view", `{"x":50,"y":50,"z":10,"fov":1.57,"screen_height":1000}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	assert.Eventually(t, func() bool {
		_, resp := a.do(t, http.MethodGet, "/api/v1/tiles", "")
		var tiles []usecase.TileInfo
		if err := json.Unmarshal(resp.Data, &tiles); err != nil {
			return false
		}
		return len(tiles) == 4
	}, 5*time.Second, 5*time.Millisecond)

	w, resp = a.do(t, http.MethodGet, "/api/v1/tiles?leaves=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []usecase.TileInfo
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 5)

	w, resp = a.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st usecase.Stats
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.NotZero(t, st.Frames)
	assert.NotZero(t, st.Scheduler.Executed)

	w, _ = a.do(t, http.MethodPost, "/api/v1/notify", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestLayerEndpoints(t *testing.T) {
	a := newAPI(t)

	w, resp := a.do(t, http.MethodGet, "/api/v1/layers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"id":"ortho"`)
	assert.Contains(t, string(resp.Data), `"strategy":"min_network_traffic"`)

	w, _ = a.do(t, http.MethodPatch, "/api/v1/layers/ortho", `{"visible":false,"opacity":0.4}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodPatch, "/api/v1/layers/ortho", `{"opacity":0.4}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPatch, "/api/v1/layers/roads", `{"visible":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, resp = a.do(t, http.MethodGet, "/api/v1/layers", "")
	assert.Contains(t, string(resp.Data), `"visible":false`)
	assert.Contains(t, string(resp.Data), `"opacity":0.4`)

	w, _ = a.do(t, http.MethodPut, "/api/v1/layers/order", `{"order":["ortho"]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodPut, "/api/v1/layers/order", `{"order":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPut, "/api/v1/layers/order", `{"order":["roads"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodDelete, "/api/v1/layers/ortho/cache", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodDelete, "/api/v1/layers/roads/cache", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTileEndpoint(t *testing.T) {
	a := newAPI(t)

	w, _ := a.do(t, http.MethodGet, "/api/v1/tile/ortho/1/0/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	w, _ = a.do(t, http.MethodGet, "/api/v1/tile/ortho/1/2/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/v1/tile/ortho/one/0/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/v1/tile/relief/0/0/0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/v1/tile/ortho/20/0/0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoppedLoopIsUnavailable(t *testing.T) {
	a := newAPI(t)
	a.stop()

	w, resp := a.do(t, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPI(t)
	w, _ := a.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quadtree_tiles")
}
