package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		SQLite    SQLite    `envPrefix:"SQLITE_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Scheduler Scheduler `envPrefix:"SCHEDULER_"`
		Quadtree  Quadtree  `envPrefix:"QUADTREE_"`
		Backoff   Backoff   `envPrefix:"BACKOFF_"`
		Layers    Layers    `envPrefix:"LAYERS_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level    string `env:"LEVEL,required"`
		Encoding string `env:"ENCODING" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tiletree"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	SQLite struct {
		Path string `env:"PATH" envDefault:"file:cache.db?cache=shared&mode=memory"`
	}

	// Cache selects the raw payload cache put in front of every source.
	Cache struct {
		Backend  string `env:"BACKEND" envDefault:"map"` // none, map, sqlite, redis, filesystem
		Dir      string `env:"DIR" envDefault:"./tiles"`
		Compress bool   `env:"COMPRESS" envDefault:"true"`
	}

	Scheduler struct {
		MaxConcurrent  int `env:"MAX_CONCURRENT" envDefault:"16"`
		CompletionSize int `env:"COMPLETION_BUFFER" envDefault:"256"`
	}

	Quadtree struct {
		RootExtent        []float64     `env:"ROOT_EXTENT" envSeparator:"," envDefault:"-20037508.342789244,-20037508.342789244,20037508.342789244,20037508.342789244"`
		MaxLevel          int           `env:"MAX_LEVEL" envDefault:"18"`
		SSEThreshold      float64       `env:"SSE_THRESHOLD" envDefault:"1.5"`
		MergeRatio        float64       `env:"MERGE_RATIO" envDefault:"0.5"`
		TileSize          float64       `env:"TILE_SIZE" envDefault:"256"`
		Segments          int           `env:"SEGMENTS" envDefault:"16"`
		GeometryCacheSize int           `env:"GEOMETRY_CACHE_SIZE" envDefault:"512"`
		ArtifactCacheSize int           `env:"ARTIFACT_CACHE_SIZE" envDefault:"2048"`
		WaitForLayerData  bool          `env:"WAIT_FOR_LAYER_DATA" envDefault:"true"`
		FrameInterval     time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms"`
	}

	Backoff struct {
		Base     time.Duration `env:"BASE" envDefault:"1s"`
		Max      time.Duration `env:"MAX" envDefault:"60s"`
		MaxRetry int           `env:"MAX_RETRY" envDefault:"4"`
	}

	Layers struct {
		File string `env:"FILE" envDefault:"layers.hcl"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
