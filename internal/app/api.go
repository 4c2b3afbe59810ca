package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/layer"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/provider"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/source"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/updatestate"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/telemetry"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize tracer", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				l.Error("tracer shutdown failed", "error", err)
			}
		}()
	}

	payloads, closePayloads, err := cache.New(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize payload cache", "backend", cfg.Cache.Backend, "error", err)
	}
	defer func() {
		if err := closePayloads(); err != nil {
			l.Error("payload cache close failed", "error", err)
		}
	}()

	root, err := rootExtent(cfg.Quadtree.RootExtent)
	if err != nil {
		l.Fatal("invalid root extent", "error", err)
	}

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent:    cfg.Scheduler.MaxConcurrent,
		CompletionBuffer: cfg.Scheduler.CompletionSize,
	}, l)

	tileTree, err := usecase.NewTileTreeUseCase(usecase.Config{
		RootExtent:    root,
		FrameInterval: cfg.Quadtree.FrameInterval,
		Backoff: updatestate.Backoff{
			Base:     cfg.Backoff.Base,
			Max:      cfg.Backoff.Max,
			MaxRetry: cfg.Backoff.MaxRetry,
		},
		Tiles: provider.TileConfig{
			MaxLevel:          cfg.Quadtree.MaxLevel,
			SSEThreshold:      cfg.Quadtree.SSEThreshold,
			MergeRatio:        cfg.Quadtree.MergeRatio,
			TileSize:          cfg.Quadtree.TileSize,
			Segments:          cfg.Quadtree.Segments,
			GeometryCacheSize: cfg.Quadtree.GeometryCacheSize,
			WaitForLayerData:  cfg.Quadtree.WaitForLayerData,
		},
	}, sched, l)
	if err != nil {
		l.Fatal("failed to initialize tile tree", "error", err)
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	sources, err := attachLayers(cfg, tileTree, payloads, client, l)
	for _, src := range sources {
		if c, ok := src.(io.Closer); ok {
			defer c.Close()
		}
	}
	if err != nil {
		l.Fatal("failed to load layers", "file", cfg.Layers.File, "error", err)
	}

	tileCacheUseCase := usecase.NewTileCacheUseCase(sources, root, l)

	validate := validator.New()
	handler := handler.NewHandler(validate, tileTree, tileCacheUseCase)
	router := v1.NewRouter(handler, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := tileTree.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		l.Info("http server stopped", "address", httpServer.Addr)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		l.Info("shutting down http server...", "address", httpServer.Addr)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		l.Info("http_server shutdown completed")
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error("application stopped with error", "error", err)
	}
	l.Info("application shutdown completed")
}

// attachLayers builds every layer of the layers file and attaches it to the
// tile tree. The sources built so far are returned even on error so they can
// be closed.
func attachLayers(cfg *config.Config, tree *usecase.TileTreeUseCase, payloads cache.TileCache, client *http.Client, l logger.Logger) ([]source.Source, error) {
	blocks, err := config.LoadLayers(cfg.Layers.File)
	if err != nil {
		return nil, err
	}

	var sources []source.Source
	for i, b := range blocks {
		src, err := source.FromConfig(b.ID, b.Source, payloads, client, l)
		if err != nil {
			return sources, err
		}
		sources = append(sources, src)

		lyr, err := layer.FromConfig(b, i, src, cfg.Quadtree.ArtifactCacheSize)
		if err != nil {
			return sources, err
		}
		if err := tree.Attach(lyr); err != nil {
			return sources, err
		}
	}
	l.Info("layers loaded", "count", len(blocks), "file", cfg.Layers.File)
	return sources, nil
}

func rootExtent(v []float64) (orb.Bound, error) {
	if len(v) != 4 {
		return orb.Bound{}, fmt.Errorf("want west,south,east,north, got %d values", len(v))
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return orb.Bound{}, fmt.Errorf("empty extent %v", v)
	}
	return b, nil
}
