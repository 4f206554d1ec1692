// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gobwas/glob"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/stream-relay/config.toml",
	"configs/config.toml",
}

// DefaultAllowedHosts is the origin set compiled into the binary. It applies when
// neither the config file nor the CLI names any allowed host.
var DefaultAllowedHosts = []string{
	"pub-9c8bcd6f32434fe08628852555cc2e5c.r2.dev",
}

const (
	DefaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultContentType        = "video/mp4"
	DefaultCacheControl       = "public, max-age=3600"
	defaultServerPort         = 8000
	defaultBodyMaxBytes int64 = 1024 * 1024
)

// reservedRoutes cannot be shadowed by the metrics endpoint.
var reservedRoutes = []string{"/stream", "/ping", "/healthz", "/relay/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel   string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	AllowHosts []string `kong:"name='allow-host',help='Allowed origin hostname; repeatable (replaces config list).',env='ALLOW_HOSTS'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Relay    RelayConfig    `toml:"relay"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RelayConfig holds the stream relay policy: which origins may be fetched and
// how the relayed response is presented.
type RelayConfig struct {
	AllowedHosts        []string `toml:"allowed_hosts"`
	AllowedHostPatterns []string `toml:"allowed_host_patterns"`
	UserAgent           string   `toml:"user_agent"`
	DefaultContentType  string   `toml:"default_content_type"`
	CacheControl        string   `toml:"cache_control"`
}

// UpstreamConfig holds origin connection settings. There is no
// total request timeout: a media transfer may legitimately last for hours.
type UpstreamConfig struct {
	ResponseHeaderTimeoutSeconds int `toml:"response_header_timeout_seconds"`
	IdleConnections              int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/stream-relay/config.toml then configs/config.toml. If neither exists the
// built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if len(cli.AllowHosts) > 0 {
		c.Relay.AllowedHosts = append([]string(nil), cli.AllowHosts...)
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.ResponseHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.response_header_timeout_seconds must be non-negative; got %d", c.Upstream.ResponseHeaderTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Relay allowlist.
	for _, h := range c.Relay.AllowedHosts {
		if err := validateHostname(h); err != nil {
			return fmt.Errorf("relay.allowed_hosts: %w", err)
		}
	}
	for _, p := range c.Relay.AllowedHostPatterns {
		if strings.TrimSpace(p) == "" {
			return errors.New("relay.allowed_host_patterns: empty pattern")
		}
		if _, err := glob.Compile(p, '.'); err != nil {
			return fmt.Errorf("relay.allowed_host_patterns: invalid pattern %q: %w", p, err)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if p == "/" {
			return fmt.Errorf("metrics.path %q conflicts with the player page", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateHostname rejects allowlist entries that could never equal a parsed
// URL hostname: entries carrying a scheme, port, path or whitespace.
func validateHostname(h string) error {
	if h == "" {
		return errors.New("empty hostname")
	}
	if strings.ContainsAny(h, "/:@?# \t") {
		return fmt.Errorf("%q must be a bare hostname (no scheme, port or path)", h)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = defaultBodyMaxBytes
	}
	if len(c.Relay.AllowedHosts) == 0 && len(c.Relay.AllowedHostPatterns) == 0 {
		c.Relay.AllowedHosts = append([]string(nil), DefaultAllowedHosts...)
	}
	if c.Relay.UserAgent == "" {
		c.Relay.UserAgent = DefaultUserAgent
	}
	if c.Relay.DefaultContentType == "" {
		c.Relay.DefaultContentType = DefaultContentType
	}
	if c.Relay.CacheControl == "" {
		c.Relay.CacheControl = DefaultCacheControl
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file that was loaded, or "" when running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
// A writable config lets another local user widen the origin allowlist.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
