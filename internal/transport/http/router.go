package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	growthhandler "growthsheet/internal/growth/handler"
	"growthsheet/internal/platform/health"
	"growthsheet/pkg/platform/middleware/metadata"
	"growthsheet/pkg/platform/middleware/request"
	"growthsheet/pkg/validation"
)

// RouterDeps collects what the router mounts.
type RouterDeps struct {
	Growth   *growthhandler.Handler
	Health   *health.Handler
	Metadata *metadata.Middleware
	Metrics  *request.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration
}

// NewRouter wires all public endpoints with middleware.
// Handlers stay thin and delegate to the growth service.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(deps.Metadata.Handler)
	r.Use(request.Logger(deps.Logger))
	r.Use(request.LatencyMiddleware(deps.Metrics))
	r.Use(request.Timeout(deps.Timeout))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)

	deps.Health.Register(r)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	deps.Growth.Register(r)

	return r
}
