package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danchege/Alchemist/internal/ops"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies defaults
// for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error. Use only in main.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// lookup returns the first non-empty value among the field's env names,
// falling back to its default.
func lookup(field reflect.StructField) (name, value string, err error) {
	name = field.Tag.Get("env")
	if name == "" {
		return "", "", nil
	}
	for _, key := range []string{name, field.Tag.Get("envAlt")} {
		if key == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return name, v, nil
		}
	}
	if field.Tag.Get("required") == "true" {
		return name, "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return name, field.Tag.Get("default"), nil
}

// loadStruct populates v's fields from the environment. Nested structs
// are loaded recursively.
func loadStruct(v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		name, value, err := lookup(field)
		if err != nil {
			return err
		}
		if name == "" || value == "" {
			continue
		}
		if err := setField(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(splitList(value)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// LargeFileKinds parses LargeFileOperations.
func (c *SessionConfig) LargeFileKinds() ([]ops.Kind, error) {
	kinds := make([]ops.Kind, 0, len(c.LargeFileOperations))
	for _, name := range c.LargeFileOperations {
		k, err := ops.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Validate checks the whole configuration and reports every failure.
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	// Server
	check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	check(c.Server.RequestTimeout > 0, "SERVER_REQUEST_TIMEOUT must be positive")

	// Database (only when configured)
	if c.Database.URL != "" {
		check(c.Database.MaxConns > 0, "DB_MAX_CONNS must be positive")
		check(c.Database.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
		check(c.Database.MaxConns >= c.Database.MinConns,
			"DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Upload
	check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	check(c.Upload.LargeFileThreshold > 0, "LARGE_FILE_THRESHOLD must be positive")
	check(c.Upload.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	check(c.Upload.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")
	check(c.Upload.BatchSize > 0, "UPLOAD_BATCH_SIZE must be positive")
	check(c.Upload.Timeout > 0, "UPLOAD_TIMEOUT must be positive")
	check(c.Upload.DataDir != "", "DATA_DIR must not be empty")

	// Session
	check(c.Session.TTL > 0, "SESSION_TTL must be positive")
	check(c.Session.CleanupInterval > 0, "SESSION_CLEANUP_INTERVAL must be positive")
	check(c.Session.MaxHistory > 0, "SESSION_MAX_HISTORY must be positive")
	check(c.Session.MaxViewHistory > 0, "SESSION_MAX_VIEW_HISTORY must be positive")
	check(c.Session.PreviewRows > 0, "PREVIEW_ROWS must be positive")
	if _, err := c.Session.LargeFileKinds(); err != nil {
		errs = append(errs, fmt.Sprintf("LARGE_FILE_OPERATIONS: %v", err))
	}

	// Rate limit
	check(!c.Rate.Enabled || c.Rate.RequestsPerMinute > 0,
		"RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	check(!c.Rate.Enabled || c.Rate.UploadLimit > 0,
		"RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	if c.Logging.File != "" {
		check(c.Logging.MaxSizeMB > 0, "LOG_MAX_SIZE_MB must be positive")
	}

	// Audit
	check(c.Audit.RetentionDays > 0, "AUDIT_RETENTION_DAYS must be positive")
	check(c.Audit.BatchSize > 0, "AUDIT_BATCH_SIZE must be positive")
	check(c.Audit.CheckInterval > 0, "AUDIT_CHECK_INTERVAL must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a representation safe for logs. The database URL is
// masked.
func (c *Config) String() string {
	db := "memory"
	if c.Database.URL != "" {
		db = "[MASKED]"
	}
	return fmt.Sprintf("Config{Server: {Addr: %q}, Audit: {DB: %s, RetentionDays: %d}, "+
		"Upload: {MaxFileSize: %d, LargeFileThreshold: %d, MaxConcurrent: %d, DataDir: %q}, "+
		"Session: {TTL: %s, MaxHistory: %d}, Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
		"Logging: {Level: %q, Format: %q, File: %q}}",
		c.Server.Addr(), db, c.Audit.RetentionDays,
		c.Upload.MaxFileSize, c.Upload.LargeFileThreshold, c.Upload.MaxConcurrent, c.Upload.DataDir,
		c.Session.TTL, c.Session.MaxHistory, c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Logging.Level, c.Logging.Format, c.Logging.File)
}
