package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"stream-relay/internal/allowlist"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves liveness and status endpoints.
type HealthHandler struct {
	allow   *allowlist.Allowlist
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(allow *allowlist.Allowlist, v Version) *HealthHandler {
	return &HealthHandler{allow: allow, version: v}
}

// Ping answers "pong" for plain-text liveness checks.
func (h *HealthHandler) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information. Allowed hosts are reported as a
// count only so the endpoint does not enumerate origins.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"allowed_origins": h.allow.Len(),
	})
}
