package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"stream-relay/internal/metrics"
	"stream-relay/internal/model"
	"stream-relay/internal/service"
)

const forbiddenMessage = "Forbidden: target host is not in the allowlist"

// secretParamPattern matches signed-URL credentials (S3/R2 presigned
// signatures, CDN tokens) in target URLs and error messages.
var secretParamPattern = regexp.MustCompile(`(?i)((?:x-amz-signature|x-amz-credential|x-amz-security-token|signature|sig|token|key)=)[^&\s"]+`)

// StreamHandler relays /stream requests to allowlisted origins.
type StreamHandler struct {
	service *service.RelayService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStreamHandler creates a StreamHandler. The metrics parameter is optional.
func NewStreamHandler(svc *service.RelayService, m *metrics.Metrics, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		metrics: m,
		logger:  logger.With("component", "stream_handler"),
	}
}

// Handle fetches ?url= from its origin and streams the body back with the
// relay's header policy applied.
func (h *StreamHandler) Handle(c echo.Context) error {
	req := c.Request()
	sr := &model.StreamRequest{
		Ctx:       req.Context(),
		Method:    req.Method,
		TargetURL: c.QueryParam("url"),
		Range:     req.Header.Get("Range"),
	}

	resp, err := h.service.Open(sr)
	if err != nil {
		return h.mapError(c, sr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.result(metrics.ResultOK)

	// Set rather than Add: middleware may already have written some of
	// these (e.g. Access-Control-Allow-Origin) and duplicates confuse players.
	out := c.Response().Header()
	for key, vals := range resp.Header {
		out[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	// Once the status line is out, nothing can be changed: a failed copy
	// leaves the client with a truncated body under the original status.
	n, err := io.Copy(c.Response(), resp.Body)
	if h.metrics != nil {
		h.metrics.BytesStreamed.Add(float64(n))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || req.Context().Err() != nil {
			h.logger.Debug("client went away mid-stream", "bytes", n)
			return nil
		}
		h.logger.Error("streaming response body",
			"err", sanitize(err.Error()),
			"target", sanitize(sr.TargetURL),
			"bytes", n,
		)
	}
	return nil
}

func (h *StreamHandler) mapError(c echo.Context, sr *model.StreamRequest, err error) error {
	target := sanitize(sr.TargetURL)

	var statusErr *service.UpstreamStatusError
	if errors.As(err, &statusErr) {
		h.result(metrics.ResultUpstreamStatus)
		h.logger.Info("origin returned non-success status",
			"status", statusErr.StatusCode,
			"target", target,
		)
		return writeText(c, statusErr.StatusCode,
			"Source Server Error: "+statusLine(statusErr.StatusCode))
	}

	var fetchErr *service.FetchError
	if errors.As(err, &fetchErr) {
		h.result(metrics.ResultFetchError)
		if errors.Is(err, context.Canceled) {
			h.logger.Debug("client went away before origin responded", "target", target)
		} else {
			h.logger.Error("origin fetch failed", "err", sanitize(err.Error()), "target", target)
		}
		return c.String(http.StatusBadRequest, "Proxy Error: "+sanitize(fetchErr.Err.Error()))
	}

	switch {
	case errors.Is(err, service.ErrHostNotAllowed):
		h.result(metrics.ResultForbidden)
		h.logger.Warn("target host denied", "err", err, "remote_ip", c.RealIP())
		return c.String(http.StatusForbidden, forbiddenMessage)
	case errors.Is(err, service.ErrMissingURL), errors.Is(err, service.ErrInvalidURL):
		h.result(metrics.ResultInvalid)
		h.logger.Debug("invalid stream request", "err", sanitize(err.Error()))
		return c.String(http.StatusBadRequest, "Error: "+err.Error())
	case errors.Is(err, service.ErrMethodNotAllowed):
		h.result(metrics.ResultInvalid)
		return c.String(http.StatusMethodNotAllowed, err.Error())
	}

	h.logger.Error("relay error", "err", sanitize(err.Error()), "target", target)
	return c.String(http.StatusInternalServerError, "Proxy Error: internal error")
}

func (h *StreamHandler) result(r string) {
	if h.metrics != nil {
		h.metrics.RelayResults.WithLabelValues(r).Inc()
	}
}

// writeText writes a short plain-text body, or none for statuses that
// forbid one (1xx, 204, 304).
func writeText(c echo.Context, code int, msg string) error {
	if code < 200 || code == http.StatusNoContent || code == http.StatusNotModified {
		return c.NoContent(code)
	}
	return c.String(code, msg)
}

func statusLine(code int) string {
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}

// sanitize redacts signed-URL credentials in log lines and error bodies.
func sanitize(s string) string {
	return secretParamPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
