package service

import (
	"net/http"

	"stream-relay/internal/config"
)

type headerAction int

const (
	// copyIfPresent forwards the origin value; the header is omitted otherwise.
	copyIfPresent headerAction = iota
	// copyOrDefault forwards the origin value, falling back to a fixed value.
	copyOrDefault
	// override always sets a fixed value, ignoring the origin.
	override
)

// headerRule is one row of the response header policy.
type headerRule struct {
	Name   string
	Action headerAction
	Value  string
}

// HeaderPolicy is the complete set of headers the relay emits. Any origin
// header without a row here is dropped.
type HeaderPolicy []headerRule

// NewHeaderPolicy returns the relay's response header table. Content type
// default and cache directive come from [relay] config.
func NewHeaderPolicy(cfg *config.Config) HeaderPolicy {
	return HeaderPolicy{
		{Name: "Content-Type", Action: copyOrDefault, Value: cfg.Relay.DefaultContentType},
		{Name: "Content-Length", Action: copyIfPresent},
		{Name: "Content-Range", Action: copyIfPresent},
		{Name: "Accept-Ranges", Action: override, Value: "bytes"},
		{Name: "Last-Modified", Action: copyIfPresent},
		{Name: "ETag", Action: copyIfPresent},
		{Name: "Cache-Control", Action: override, Value: cfg.Relay.CacheControl},
		{Name: "Access-Control-Allow-Origin", Action: override, Value: "*"},
	}
}

// Apply builds the relayed header set from the origin's headers.
func (p HeaderPolicy) Apply(src http.Header) http.Header {
	dst := make(http.Header, len(p))
	for _, r := range p {
		v := src.Get(r.Name)
		switch r.Action {
		case copyIfPresent:
			if v != "" {
				dst.Set(r.Name, v)
			}
		case copyOrDefault:
			if v == "" {
				v = r.Value
			}
			if v != "" {
				dst.Set(r.Name, v)
			}
		case override:
			dst.Set(r.Name, r.Value)
		}
	}
	return dst
}
