package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stream-relay/internal/config"
	"stream-relay/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, stream *StreamHandler, health *HealthHandler) {
	e.GET("/", Index)
	e.GET("/ping", health.Ping)
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	e.Match([]string{http.MethodGet, http.MethodHead}, "/stream", stream.Handle)
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
