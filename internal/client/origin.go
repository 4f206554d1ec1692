// Package client provides the HTTP client used to fetch media from origins.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"stream-relay/internal/allowlist"
	"stream-relay/internal/config"
	"stream-relay/internal/metrics"
	"stream-relay/internal/model"
)

const maxRedirects = 10

// ErrRedirectNotAllowed is returned when an origin redirects to a host outside
// the allowlist.
var ErrRedirectNotAllowed = errors.New("redirect target host is not allowed")

// OriginClient fetches media from allowlisted origins.
type OriginClient struct {
	httpClient *http.Client
	allow      *allowlist.Allowlist
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// No overall http.Client timeout is set: it would also bound reading the body
// and cut off long media transfers. Cancellation comes from the request context.
func NewOriginClient(cfg *config.Config, allow *allowlist.Allowlist, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseHeaderTimeoutSeconds) * time.Second,
		ForceAttemptHTTP2:     true,
		// Bodies are relayed byte-for-byte; never let the transport
		// negotiate gzip and decode it behind our back.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	c := &OriginClient{
		allow:   allow,
		logger:  logger.With("component", "origin_client"),
		metrics: m,
	}
	c.httpClient = &http.Client{
		Transport:     transport,
		CheckRedirect: c.checkRedirect,
	}
	return c
}

// checkRedirect applies the allowlist to every redirect hop, so an allowed
// origin cannot bounce the relay to an internal address.
func (c *OriginClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !c.allow.AllowsURL(req.URL) {
		return fmt.Errorf("%w: %q", ErrRedirectNotAllowed, req.URL.Hostname())
	}
	c.logger.Debug("following redirect", "host", req.URL.Hostname(), "hops", len(via))
	return nil
}

// Fetch performs a single exchange with the origin. The returned response
// carries the origin's unfiltered headers; the caller must close its body.
// The context controls the whole transfer: when it is canceled (e.g. the
// client disconnects), the upstream connection is torn down.
func (c *OriginClient) Fetch(ctx context.Context, or *model.OriginRequest) (*model.StreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, or.Method, or.URL.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = or.Header

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Hostname(),
		"range", req.Header.Get("Range"),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via StreamResponse
	duration := time.Since(start).Seconds()
	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.StreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
