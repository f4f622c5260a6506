// Package config loads the server configuration from environment variables.
// Every setting has a default, so an empty environment starts a working
// server with the in-memory audit trail.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Audit    AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"5000"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional Postgres connection for the audit trail.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty, audit entries
	// are kept in memory.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds file loading settings.
type UploadConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 512MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envAlt:"MAX_CONTENT_LENGTH" default:"536870912"`

	// LargeFileThreshold is the delimited-file size in bytes at which the
	// SQLite store is used (default: 25MB)
	LargeFileThreshold int64 `env:"LARGE_FILE_THRESHOLD" default:"26214400"`

	// MaxConcurrent is the maximum number of parallel loads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is rows per insert batch when loading a large file (default: 5000)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"5000"`

	// Timeout bounds a single upload request (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// DataDir holds uploads in flight and session backing files (default: data)
	DataDir string `env:"DATA_DIR" default:"data"`
}

// SessionConfig holds session lifetime and history settings.
type SessionConfig struct {
	// TTL is how long an idle session is kept (default: 2h)
	TTL time.Duration `env:"SESSION_TTL" default:"2h"`

	// CleanupInterval is how often expired sessions are closed (default: 10m)
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" default:"10m"`

	// MaxHistory is the number of undoable entries per session (default: 50)
	MaxHistory int `env:"SESSION_MAX_HISTORY" default:"50"`

	// MaxViewHistory is the number of undoable view changes (default: 30)
	MaxViewHistory int `env:"SESSION_MAX_VIEW_HISTORY" default:"30"`

	// LargeFileOperations lists the operations allowed on large files
	LargeFileOperations []string `env:"LARGE_FILE_OPERATIONS" default:"remove_duplicates,remove_empty,clean_text,merge_values"`

	// PreviewRows is the default preview sample size (default: 100)
	PreviewRows int `env:"PREVIEW_ROWS" default:"100"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins. Empty
	// disables CORS headers.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File is an optional log file, rotated by size
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" default:"28"`
}

// AuditConfig holds audit trail retention settings.
type AuditConfig struct {
	// RetentionDays is how long entries are kept (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	// BatchSize is rows deleted per purge statement (default: 5000)
	BatchSize int `env:"AUDIT_BATCH_SIZE" default:"5000"`

	// CheckInterval is how often the retention job runs (default: 24h)
	CheckInterval time.Duration `env:"AUDIT_CHECK_INTERVAL" default:"24h"`

	// MemoryCapacity bounds the in-memory trail used without a database (default: 10000)
	MemoryCapacity int `env:"AUDIT_MEMORY_CAPACITY" default:"10000"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
