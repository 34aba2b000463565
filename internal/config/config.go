// Package config provides centralized configuration management for the ledger
// service and CLI. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Import     ImportConfig
	Transfer   TransferConfig
	Classifier ClassifierConfig
	Backup     BackupConfig
	Security   SecurityConfig
	Rate       RateConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including pending backups (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// StoreConfig selects the ledger persistence.
type StoreConfig struct {
	// Driver is "memory" (optionally mirrored to Path) or "postgres" (default: memory)
	Driver string `env:"STORE_DRIVER" default:"memory"`

	// Path is the JSON ledger file of the memory driver; empty keeps the
	// ledger in memory only (default: data/ledger.json)
	Path string `env:"STORE_PATH" default:"data/ledger.json"`
}

// DatabaseConfig holds database connection settings for the postgres driver.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies pending schema migrations on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// ImportConfig holds statement import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum statement size in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// Timeout bounds a single import (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"5m"`

	// MaxWaitTime is how long a mutation waits for the ledger (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// ContextCheckInterval is how many rows pass between cancellation checks (default: 100)
	ContextCheckInterval int `env:"IMPORT_CONTEXT_CHECK_INTERVAL" default:"100"`

	UsageMaxLength int    `env:"IMPORT_USAGE_MAX_LENGTH" default:"50"`
	DefaultGroup   string `env:"IMPORT_DEFAULT_GROUP" default:"Accounts"`

	// DuplicateWindow and AmountTolerance define when a row repeats a
	// booked transaction (default: 24h, 0.01)
	DuplicateWindow time.Duration   `env:"IMPORT_DUPLICATE_WINDOW" default:"24h"`
	AmountTolerance decimal.Decimal `env:"IMPORT_AMOUNT_TOLERANCE" default:"0.01"`

	// Currency is the ISO code used to display amounts (default: EUR)
	Currency string `env:"LEDGER_CURRENCY" default:"EUR"`
}

// TransferConfig names the transfer categories and the suppressed pair.
type TransferConfig struct {
	Categories      []string `env:"TRANSFER_CATEGORIES" default:"Transfer,Umbuchung"`
	CashAccount     string   `env:"TRANSFER_CASH_ACCOUNT" default:"Bargeld"`
	CheckingAccount string   `env:"TRANSFER_CHECKING_ACCOUNT" default:"Girokonto"`
}

// ClassifierConfig holds classification settings.
type ClassifierConfig struct {
	// Rules are "Category:keyword|keyword" entries, comma separated
	Rules []string `env:"CLASSIFIER_RULES"`

	// Learn trains a Bayesian classifier on booked transactions (default: true)
	Learn bool `env:"CLASSIFIER_LEARN" default:"true"`

	// MinProbability is the posterior a learned guess needs (default: 0.6)
	MinProbability float64 `env:"CLASSIFIER_MIN_PROBABILITY" default:"0.6"`
}

// BackupConfig holds snapshot backup settings.
type BackupConfig struct {
	Enabled bool `env:"BACKUP_ENABLED" default:"true"`

	// Dir receives backups when no bucket is configured (default: data/backups)
	Dir string `env:"BACKUP_DIR" default:"data/backups"`

	// GCSBucket switches backups to Google Cloud Storage
	GCSBucket          string `env:"BACKUP_GCS_BUCKET"`
	GCSPrefix          string `env:"BACKUP_GCS_PREFIX" default:"ledger"`
	GCSCredentialsFile string `env:"BACKUP_GCS_CREDENTIALS_FILE" envAlt:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Keep is how many backups are retained (default: 30)
	Keep int `env:"BACKUP_KEEP" default:"30"`

	Timeout time.Duration `env:"BACKUP_TIMEOUT" default:"2m"`

	// Interval adds periodic backups; 0 disables them (default: 0)
	Interval time.Duration `env:"BACKUP_INTERVAL" default:"0s"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key header (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys are the accepted keys, comma separated
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RateConfig holds per-IP rate limiting settings for the API.
type RateConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_RPM" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
