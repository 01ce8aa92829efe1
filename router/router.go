// router/router.go
package router

import (
	"github.com/dalemusser/formcheck/config"
	"github.com/dalemusser/formcheck/logging"
	"github.com/dalemusser/formcheck/metrics"
	"github.com/dalemusser/formcheck/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New creates a chi.Router pre-wired with the standard middleware stack:
// - RequestID
// - RealIP, only with TrustProxy
// - Recoverer (panic → JSON 500)
// - body size limit (MaxRequestBodyBytes)
// - metrics HTTP middleware
// - request logging
// - NotFound / MethodNotAllowed JSON handlers
// Routes are mounted by the caller.
func New(cfg *config.Config, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if cfg != nil && cfg.HTTP.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(logging.Recoverer(logger))

	var maxBody int64
	if cfg != nil {
		maxBody = cfg.MaxRequestBodyBytes
	}
	r.Use(middleware.LimitBodySize(maxBody))

	r.Use(metrics.HTTPMetrics)
	r.Use(logging.RequestLogger(logger))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
