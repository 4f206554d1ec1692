// Package allowlist decides which origin hosts the relay may fetch from.
package allowlist

import (
	"fmt"
	"net/url"

	"github.com/gobwas/glob"

	"stream-relay/internal/config"
)

// Allowlist is an immutable set of permitted origin hostnames. Hosts are
// matched exactly and case-sensitively; patterns are dot-separated globs
// (e.g. "pub-*.r2.dev"), where '*' never crosses a label boundary.
//
// An Allowlist is safe for concurrent use: it is never mutated after New.
type Allowlist struct {
	hosts    map[string]struct{}
	patterns []glob.Glob
}

// New builds an Allowlist from exact hostnames and glob patterns.
func New(hosts, patterns []string) (*Allowlist, error) {
	a := &Allowlist{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		a.hosts[h] = struct{}{}
	}
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("allowlist: compile pattern %q: %w", p, err)
		}
		a.patterns = append(a.patterns, g)
	}
	return a, nil
}

// FromConfig builds the Allowlist configured in [relay].
func FromConfig(cfg *config.Config) (*Allowlist, error) {
	return New(cfg.Relay.AllowedHosts, cfg.Relay.AllowedHostPatterns)
}

// Allows reports whether host (without port) may be fetched.
func (a *Allowlist) Allows(host string) bool {
	if host == "" {
		return false
	}
	if _, ok := a.hosts[host]; ok {
		return true
	}
	for _, g := range a.patterns {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// AllowsURL reports whether the host of u may be fetched.
func (a *Allowlist) AllowsURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return a.Allows(u.Hostname())
}

// Len returns the number of exact hosts plus patterns.
func (a *Allowlist) Len() int {
	return len(a.hosts) + len(a.patterns)
}
