package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bobmcallan/vire-gateway/internal/common"
)

// Config represents the gateway configuration.
type Config struct {
	Environment string               `toml:"environment" yaml:"environment"`
	Server      ServerConfig         `toml:"server" yaml:"server"`
	Peer        PeerConfig           `toml:"peer" yaml:"mcp_server"`
	Gateway     GatewayConfig        `toml:"gateway" yaml:"gateway"`
	Market      MarketConfig         `toml:"market" yaml:"market"`
	Cache       CacheConfig          `toml:"cache" yaml:"cache"`
	Logging     common.LoggingConfig `toml:"logging" yaml:"logging"`
}

// ServerConfig contains the local HTTP surface settings.
type ServerConfig struct {
	Host        string   `toml:"host" yaml:"host"`
	Port        int      `toml:"port" yaml:"port"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// PeerConfig describes the remote tool server.
type PeerConfig struct {
	URL               string   `toml:"url" yaml:"url"`
	Timeout           float64  `toml:"timeout" yaml:"timeout"` // seconds
	Routes            []string `toml:"routes" yaml:"routes"`
	HandshakeAttempts int      `toml:"handshake_attempts" yaml:"handshake_attempts"`
	BackoffUnit       string   `toml:"backoff_unit" yaml:"backoff_unit"`
	BearerToken       string   `toml:"bearer_token" yaml:"bearer_token"`
	ProtocolVersion   string   `toml:"protocol_version" yaml:"protocol_version"`
	ClientName        string   `toml:"client_name" yaml:"client_name"`
	ClientVersion     string   `toml:"client_version" yaml:"client_version"`
}

// RequestTimeout returns the per-request timeout.
func (c *PeerConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout * float64(time.Second))
}

// GetBackoffUnit parses the handshake backoff unit, defaulting to one second.
func (c *PeerConfig) GetBackoffUnit() time.Duration {
	d, err := time.ParseDuration(c.BackoffUnit)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// GatewayConfig tunes the resilience behaviour.
type GatewayConfig struct {
	StubCapabilities []string `toml:"stub_capabilities" yaml:"stub_capabilities"`
	FailureKeywords  []string `toml:"failure_keywords" yaml:"failure_keywords"`
	FallbackDays     int      `toml:"fallback_days" yaml:"fallback_days"`
}

// MarketConfig holds the exchange trading window.
type MarketConfig struct {
	Timezone  string `toml:"timezone" yaml:"timezone"`
	OpenHour  int    `toml:"open_hour" yaml:"open_hour"`
	CloseHour int    `toml:"close_hour" yaml:"close_hour"`
}

// Location loads the market time zone, falling back to UTC+7.
func (c *MarketConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*60*60)
}

// CacheConfig selects the quote cache backend.
type CacheConfig struct {
	Backend    string      `toml:"backend" yaml:"backend"` // memory, redis, none
	TTL        string      `toml:"ttl" yaml:"ttl"`
	MaxEntries int         `toml:"max_entries" yaml:"max_entries"`
	Redis      RedisConfig `toml:"redis" yaml:"redis"`
}

// GetTTL parses the cache TTL, defaulting to ten minutes.
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// RedisConfig contains the redis connection for the redis cache backend.
type RedisConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> .env -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> .env -> env.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_GATEWAY_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("VIRE_GATEWAY_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("VIRE_GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if origins := os.Getenv("BACKEND_CORS_ORIGINS"); origins != "" {
		config.Server.CORSOrigins = parseOrigins(origins)
	}
	if peerURL := os.Getenv("MCP_SERVER_URL"); peerURL != "" {
		config.Peer.URL = peerURL
	}
	if timeout := os.Getenv("MCP_TIMEOUT"); timeout != "" {
		if t, err := strconv.ParseFloat(timeout, 64); err == nil {
			config.Peer.Timeout = t
		}
	}
	if token := os.Getenv("VIRE_GATEWAY_BEARER_TOKEN"); token != "" {
		config.Peer.BearerToken = token
	}
	if backend := os.Getenv("VIRE_GATEWAY_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Cache.Redis.Addr = addr
	}
	if level := os.Getenv("VIRE_GATEWAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// parseOrigins accepts either a JSON list or a single origin.
func parseOrigins(v string) []string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") {
		var list []string
		if err := json.Unmarshal([]byte(v), &list); err == nil && len(list) > 0 {
			return list
		}
	}
	if v == "" {
		return []string{"*"}
	}
	return []string{v}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ApplyPeerOverrides replaces the peer address and timeout at runtime.
func ApplyPeerOverrides(config *Config, peerURL string, timeout float64) {
	if peerURL != "" {
		config.Peer.URL = peerURL
	}
	if timeout > 0 {
		config.Peer.Timeout = timeout
	}
}

// IsDevMode reports whether the gateway runs in development mode.
func (c *Config) IsDevMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "dev")
}

// Validate returns a human-readable list of configuration problems.
func (c *Config) Validate() []string {
	var issues []string

	u, err := url.Parse(c.Peer.URL)
	if c.Peer.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("peer.url must be an absolute http(s) URL (got %q)", c.Peer.URL))
	}
	if c.Peer.HandshakeAttempts < 1 {
		issues = append(issues, "peer.handshake_attempts must be at least 1")
	}
	if len(c.Peer.Routes) == 0 {
		issues = append(issues, "peer.routes must list at least one route")
	}
	for _, r := range c.Peer.Routes {
		if !strings.HasPrefix(r, "/") {
			issues = append(issues, fmt.Sprintf("peer.routes entry %q must start with /", r))
		}
	}
	switch c.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			issues = append(issues, "cache.redis.addr is required when cache.backend is redis")
		}
	default:
		issues = append(issues, fmt.Sprintf("cache.backend %q is not one of memory, redis, none", c.Cache.Backend))
	}
	if c.Market.OpenHour < 0 || c.Market.CloseHour > 24 || c.Market.OpenHour >= c.Market.CloseHour {
		issues = append(issues, "market.open_hour must be before market.close_hour within 0..24")
	}
	for _, o := range c.Server.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			issues = append(issues, fmt.Sprintf("server.cors_origins entry %q must be * or an http(s) origin", o))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	return issues
}
