package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCacheTTLSeconds is used when the TTL is absent or unparsable.
const DefaultCacheTTLSeconds = 3600

// Coordinate is a warm-up target parsed from "lat,lon" config strings.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Config holds service configuration loaded from YAML and env, validated
// once at startup. Components receive values from here instead of reading
// the environment ad hoc.
type Config struct {
	ServerPort string

	OriginURL     string
	OriginTimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend    string // "in_memory" or "memcached"
	CacheTTLSeconds int

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	WarmCache       bool
	WarmInterval    time.Duration
	WarmCoordinates []Coordinate

	TrackedKeys []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Origin struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"origin"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTLSeconds string `yaml:"ttl_seconds"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm            bool     `yaml:"warm"`
		WarmInterval    string   `yaml:"warm_interval"`
		WarmCoordinates []string `yaml:"warm_coordinates"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Coalesce struct {
		Enabled bool   `yaml:"enabled"`
		Timeout string `yaml:"timeout"`
	} `yaml:"coalesce"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedKeys []string `yaml:"tracked_keys"`
	} `yaml:"metrics"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) with env
// overrides for the cache backend, memcached addrs, and TTL. Call from
// project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.OriginURL = fc.Origin.URL
	if cfg.OriginURL == "" {
		cfg.OriginURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	}
	cfg.OriginTimeout = parseDuration(fc.Origin.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}

	cfg.CacheTTLSeconds = parseTTLSeconds(os.Getenv("CACHE_TTL_SECONDS"), fc.Cache.TTLSeconds)

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.CoalesceEnabled = fc.Coalesce.Enabled
	cfg.CoalesceTimeout = parseDuration(fc.Coalesce.Timeout, 5*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.WarmCoordinates, err = parseCoordinateList(fc.Cache.WarmCoordinates)
	if err != nil {
		return nil, err
	}

	cfg.TrackedKeys = fc.Metrics.TrackedKeys

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTTLSeconds resolves the cache TTL from the env override or the yaml
// value. Absent or unparsable values, and non-positive values, fall back to
// the default rather than failing.
func parseTTLSeconds(envVal, fileVal string) int {
	for _, s := range []string{envVal, fileVal} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return DefaultCacheTTLSeconds
		}
		return n
	}
	return DefaultCacheTTLSeconds
}

// parseCoordinateList parses "lat,lon" strings. Invalid entries are a load
// error; warm targets are validated at startup, not at warm time.
func parseCoordinateList(entries []string) ([]Coordinate, error) {
	var out []Coordinate
	for _, entry := range entries {
		parts := strings.Split(entry, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("cache.warm_coordinates entry %q must be \"lat,lon\"", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("cache.warm_coordinates entry %q: bad latitude: %w", entry, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("cache.warm_coordinates entry %q: bad longitude: %w", entry, err)
		}
		out = append(out, Coordinate{Latitude: lat, Longitude: lon})
	}
	return out, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero and negative results pass through.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The memcached store identifier has
// no default; selecting that backend without addrs is a startup error.
func validate(cfg *Config) error {
	if cfg.OriginTimeout <= 0 {
		return fmt.Errorf("origin.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.OriginTimeout {
		cfg.RequestTimeout = cfg.OriginTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory":
		// valid
	case "memcached":
		if cfg.MemcachedAddrs == "" {
			return fmt.Errorf("cache.memcached.addrs (or MEMCACHED_ADDRS) is required for the memcached backend")
		}
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
