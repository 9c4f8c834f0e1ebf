// Package config is environment-variable-driven application configuration
// for causalcached, following the teacher's own hand-rolled getEnv*/
// Validate() shape rather than reaching for a config library — the
// teacher itself never used one, so neither do we.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Cache     CacheConfig
	KVS       KVSConfig
	Peer      PeerConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Tracing   TracingConfig
}

// ServerConfig is the client-facing HTTP server.
type ServerConfig struct {
	Host string
	Port int
	TLS  TLSConfig
}

// TLSConfig is TLS/SSL configuration for the client-facing server.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	AutoCert bool
}

// LogConfig is logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig holds the causal cache's own tunables: the periodic
// report/migrate thresholds spec.md §4.10/§4.11 describe, plus this
// instance's site id used in vector clocks and the key-set report.
type CacheConfig struct {
	SiteID          string
	ReportInterval  time.Duration
	MigrateInterval time.Duration
	RequestTimeout  time.Duration
}

// KVSConfig selects and configures the backing KVS adapter.
type KVSConfig struct {
	Backend    string // "mock", "badger"
	DataDir    string
	SyncWrites bool
}

// PeerConfig configures the outbound peer dialer.
type PeerConfig struct {
	DialTimeout time.Duration
}

// RateLimitConfig configures the token-bucket limiter applied to the
// client GET/PUT surface.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	ByIP            bool
	ByAPIKey        bool
	// ByClientID limits /get and /put by the causal cache client_id
	// carried in the request body, instead of (or alongside) the
	// transport-level IP/API-key identifiers, so one noisy client_id
	// can't starve the bucket shared with every other client behind
	// the same NAT'd IP.
	ByClientID      bool
	CleanupInterval time.Duration
}

// AuthConfig configures the optional bearer-token check on client routes.
type AuthConfig struct {
	Enabled       bool
	JWTSecret     string
	TokenExpiry   time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// TracingConfig configures OpenTelemetry OTLP/HTTP export.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	OTLPEndpoint   string
	SampleRatio    float64
}

// Load builds a Config from environment variables, all under a
// CAUSALCACHE_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnvString("CAUSALCACHE_HOST", ""),
			Port: getEnvInt("CAUSALCACHE_PORT", 8420),
			TLS: TLSConfig{
				Enabled:  getEnvBool("CAUSALCACHE_TLS_ENABLED", false),
				CertFile: getEnvString("CAUSALCACHE_TLS_CERT_FILE", ""),
				KeyFile:  getEnvString("CAUSALCACHE_TLS_KEY_FILE", ""),
				AutoCert: getEnvBool("CAUSALCACHE_TLS_AUTOCERT", false),
			},
		},
		Log: LogConfig{
			Level:  getEnvString("CAUSALCACHE_LOG_LEVEL", "info"),
			Format: getEnvString("CAUSALCACHE_LOG_FORMAT", "json"),
		},
		Cache: CacheConfig{
			SiteID:          getEnvString("CAUSALCACHE_SITE_ID", defaultSiteID()),
			ReportInterval:  getEnvDuration("CAUSALCACHE_REPORT_INTERVAL", 30*time.Second),
			MigrateInterval: getEnvDuration("CAUSALCACHE_MIGRATE_INTERVAL", 1*time.Second),
			RequestTimeout:  getEnvDuration("CAUSALCACHE_REQUEST_TIMEOUT", 5*time.Second),
		},
		KVS: KVSConfig{
			Backend:    getEnvString("CAUSALCACHE_KVS_BACKEND", "mock"),
			DataDir:    getEnvString("CAUSALCACHE_KVS_DATA_DIR", "./data/kvs"),
			SyncWrites: getEnvBool("CAUSALCACHE_KVS_SYNC_WRITES", false),
		},
		Peer: PeerConfig{
			DialTimeout: getEnvDuration("CAUSALCACHE_PEER_DIAL_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("CAUSALCACHE_RATELIMIT_ENABLED", false),
			RequestsPerSec:  getEnvFloat("CAUSALCACHE_RATELIMIT_RPS", 100),
			Burst:           getEnvInt("CAUSALCACHE_RATELIMIT_BURST", 200),
			ByIP:            getEnvBool("CAUSALCACHE_RATELIMIT_BY_IP", true),
			ByAPIKey:        getEnvBool("CAUSALCACHE_RATELIMIT_BY_API_KEY", false),
			ByClientID:      getEnvBool("CAUSALCACHE_RATELIMIT_BY_CLIENT_ID", false),
			CleanupInterval: getEnvDuration("CAUSALCACHE_RATELIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Auth: AuthConfig{
			Enabled:       getEnvBool("CAUSALCACHE_AUTH_ENABLED", false),
			JWTSecret:     getEnvString("CAUSALCACHE_AUTH_JWT_SECRET", ""),
			TokenExpiry:   getEnvDuration("CAUSALCACHE_AUTH_TOKEN_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvDuration("CAUSALCACHE_AUTH_REFRESH_EXPIRY", 24*time.Hour),
			Issuer:        getEnvString("CAUSALCACHE_AUTH_ISSUER", "causalcache"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("CAUSALCACHE_TRACING_ENABLED", false),
			ServiceName:  getEnvString("CAUSALCACHE_TRACING_SERVICE_NAME", "causalcache"),
			OTLPEndpoint: getEnvString("CAUSALCACHE_TRACING_OTLP_ENDPOINT", "localhost:4318"),
			SampleRatio:  getEnvFloat("CAUSALCACHE_TRACING_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultSiteID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "causalcache-0"
	}
	return host
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Cache.SiteID == "" {
		return fmt.Errorf("cache site id must not be empty")
	}
	if c.Cache.ReportInterval <= 0 {
		return fmt.Errorf("cache report interval must be positive")
	}
	if c.Cache.MigrateInterval <= 0 {
		return fmt.Errorf("cache migrate interval must be positive")
	}

	switch c.KVS.Backend {
	case "mock", "badger":
	default:
		return fmt.Errorf("unsupported kvs backend: %s", c.KVS.Backend)
	}
	if c.KVS.Backend == "badger" && c.KVS.DataDir == "" {
		return fmt.Errorf("kvs data dir must be set for badger backend")
	}

	if c.Server.TLS.Enabled && !c.Server.TLS.AutoCert {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("tls enabled but cert/key file not set")
		}
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt secret not set")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSec <= 0 {
		return fmt.Errorf("rate limit enabled but requests per second is not positive")
	}

	return nil
}

// Address returns the host:port the client-facing server should bind.
func (c *Config) Address() string {
	if c.Server.Host == "" {
		return fmt.Sprintf(":%d", c.Server.Port)
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
