package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
)

func NewServer(ctx context.Context, cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withLoggingMiddleware(ctx, handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// withLoggingMiddleware puts the application logger into every request
// context and logs how long the request took.
func withLoggingMiddleware(ctx context.Context, next http.Handler) http.Handler {
	l := logger.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(logger.WithLogger(r.Context(), l)))

		l.Debug("request served", "method", r.Method, "path", r.URL.Path, "ip", r.RemoteAddr, "duration", time.Since(start))
	})
}
