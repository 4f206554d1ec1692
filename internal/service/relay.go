// Package service implements the stream relay: target validation, origin
// authorization, outbound request construction and response header policy.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"stream-relay/internal/allowlist"
	"stream-relay/internal/config"
	"stream-relay/internal/model"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mock_service stream-relay/internal/service Fetcher

// Fetcher performs one exchange with an origin. The caller owns the body of
// a returned response.
type Fetcher interface {
	Fetch(ctx context.Context, req *model.OriginRequest) (*model.StreamResponse, error)
}

// RelayService turns a StreamRequest into an origin fetch. It holds no
// per-request state and is safe for concurrent use.
type RelayService struct {
	fetcher   Fetcher
	allow     *allowlist.Allowlist
	policy    HeaderPolicy
	userAgent string
	logger    *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(f Fetcher, allow *allowlist.Allowlist, cfg *config.Config, logger *slog.Logger) *RelayService {
	return &RelayService{
		fetcher:   f,
		allow:     allow,
		policy:    NewHeaderPolicy(cfg),
		userAgent: cfg.Relay.UserAgent,
		logger:    logger.With("component", "relay_service"),
	}
}

// Open validates and authorizes sr, fetches the target from its origin and
// returns the response with the filtered header set. On success the caller
// must close the response body.
//
// Errors: ErrMethodNotAllowed, ErrMissingURL, ErrInvalidURL and
// ErrHostNotAllowed are returned before any network activity. A *FetchError
// means the origin could not be reached; an *UpstreamStatusError means it
// answered with a non-2xx status (its body is already closed).
func (s *RelayService) Open(sr *model.StreamRequest) (*model.StreamResponse, error) {
	if sr.Method != http.MethodGet && sr.Method != http.MethodHead {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, sr.Method)
	}

	target, err := s.parseTarget(sr.TargetURL)
	if err != nil {
		return nil, err
	}

	if !s.allow.AllowsURL(target) {
		return nil, fmt.Errorf("%w: %q", ErrHostNotAllowed, target.Hostname())
	}

	or := &model.OriginRequest{
		Method: sr.Method,
		URL:    target,
		Header: s.buildOriginHeader(sr.Range),
	}

	s.logger.Debug("relaying",
		"method", or.Method,
		"host", target.Hostname(),
		"range", sr.Range,
	)

	ctx := sr.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := s.fetcher.Fetch(ctx, or)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	resp.Header = s.policy.Apply(resp.Header)
	return resp, nil
}

// parseTarget requires an absolute http(s) URL with a host.
func (s *RelayService) parseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return u, nil
}

// buildOriginHeader presents the relay as a browser and forwards only Range.
func (s *RelayService) buildOriginHeader(rangeHeader string) http.Header {
	h := make(http.Header, 2)
	h.Set("User-Agent", s.userAgent)
	if rangeHeader != "" {
		h.Set("Range", rangeHeader)
	}
	return h
}

// drainAndClose discards at most a small error body so the connection can
// be reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, 4<<10)
	_ = body.Close()
}
