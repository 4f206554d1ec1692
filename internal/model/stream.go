// Package model defines the request-scoped types shared by the relay layers.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// StreamRequest is an inbound relay call: which media URL to fetch and the
// byte range the player asked for.
type StreamRequest struct {
	Ctx       context.Context
	Method    string
	TargetURL string
	Range     string // raw Range header value; empty means a full-content fetch
}

// OriginRequest is the outbound request sent to the origin.
type OriginRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
}

// StreamResponse is the relayed response. Body must be closed by the caller.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
