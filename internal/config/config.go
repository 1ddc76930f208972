// Package config provides centralized configuration management for the server.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	Retention RetentionConfig
	Redis     RedisConfig
	Report    ReportConfig
	Parser    ParserConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 3m).
	// Must not be shorter than UPLOAD_TIMEOUT.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"3m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 3m).
	// Must not be shorter than UPLOAD_TIMEOUT.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"3m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, or memory:// for the in-process store.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies embedded migrations on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`

	// AuthLimit is requests per minute for login and register (default: 20)
	AuthLimit int `env:"RATE_LIMIT_AUTH" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed browser origins (default: *)
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuthConfig holds account and token settings.
type AuthConfig struct {
	// TokenTTL is how long an issued token stays valid (default: 24h)
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`

	// MinPasswordLength is the shortest accepted password (default: 8)
	MinPasswordLength int `env:"AUTH_MIN_PASSWORD" default:"8"`

	// SweepInterval is how often expired tokens are purged (default: 1h, 0 disables)
	SweepInterval time.Duration `env:"AUTH_SWEEP_INTERVAL" default:"1h"`

	// AdminUsername and AdminPassword create an account at startup when both are set.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
}

// RetentionConfig controls how many sessions each user keeps.
type RetentionConfig struct {
	// Keep is the number of newest sessions retained per user (default: 5)
	Keep int `env:"RETENTION_KEEP" default:"5"`

	// HistoryLimit caps the history listing (default: 5)
	HistoryLimit int `env:"HISTORY_LIMIT" default:"5"`
}

// RedisConfig holds the optional summary cache settings.
type RedisConfig struct {
	// URL enables the cache when set, e.g. redis://localhost:6379/0
	URL string `env:"REDIS_URL"`

	// TTL is how long a cached summary lives (default: 10m)
	TTL time.Duration `env:"REDIS_SUMMARY_TTL" default:"10m"`
}

// ReportConfig holds PDF report settings.
type ReportConfig struct {
	// RowLimit caps the equipment rows listed in a report (default: 50)
	RowLimit int `env:"REPORT_ROW_LIMIT" default:"50"`
}

// ParserConfig holds CSV parser settings.
type ParserConfig struct {
	// AliasesFile optionally replaces the header alias table (YAML)
	AliasesFile string `env:"PARSER_ALIASES_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// AdminEnabled reports whether an admin account should be bootstrapped.
func (c *AuthConfig) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}
