package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware())
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/stats", handler.Stats)
	v1.GET("/tiles", handler.Tiles)
	v1.PUT("/view", handler.SetView)
	v1.POST("/notify", handler.Notify)

	v1.GET("/layers", handler.Layers)
	v1.PUT("/layers/order", handler.SetLayerOrder)
	v1.PATCH("/layers/:id", handler.SetLayerVisibility)
	v1.DELETE("/layers/:id/cache", handler.ClearLayerCache)

	v1.GET("/tile/:source/:z/:x/:y", handler.Tile)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
