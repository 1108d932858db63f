// Package config loads all runtime configuration from environment variables.
// No config files and no third-party config framework are used.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the document repository.
type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig
	Log     LogConfig
	JWT     JWTConfig
	Storage StorageConfig
	Upload  UploadConfig
	App     AppConfig
	Worker  WorkerConfig
	OTel    OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "docrepo.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// StorageConfig selects and configures the file store backend.
type StorageConfig struct {
	Driver string // "disk" (default) or "minio"
	Dir    string // disk: directory for stored files

	MinioEndpoint  string
	MinioBucket    string
	MinioAccessKey string
	MinioSecretKey string //nolint:gosec // intentional: holds object-store credential loaded from env
	MinioUseSSL    bool
}

// UploadConfig bounds what the upload endpoint accepts before the version
// ledger is invoked.
type UploadConfig struct {
	AllowedExtensions []string
	MaxBytes          int64
}

// AppConfig holds application-level settings such as seed credentials.
type AppConfig struct {
	SeedAdminEmail    string
	SeedAdminPassword string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
	SweepPeriod time.Duration
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "docrepo.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	var err error
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// Storage
	cfg.Storage.Driver = envStr("STORAGE_DRIVER", "disk")
	cfg.Storage.Dir = envStr("STORAGE_DIR", "./files")
	cfg.Storage.MinioEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.Storage.MinioBucket = envStr("MINIO_BUCKET", "documents")
	cfg.Storage.MinioAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.Storage.MinioSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.Storage.MinioUseSSL = envBool("MINIO_USE_SSL", false)
	if cfg.Storage.Driver == "minio" && cfg.Storage.MinioEndpoint == "" {
		return nil, errors.New("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
	}

	// Upload limits
	cfg.Upload.AllowedExtensions = envList("UPLOAD_ALLOWED_EXTENSIONS", []string{"pdf", "doc", "docx", "txt"})
	cfg.Upload.MaxBytes = envInt64("UPLOAD_MAX_BYTES", 10<<20)

	// App
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@docrepo.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)
	cfg.Worker.SweepPeriod, err = envDuration("WORKER_SWEEP_PERIOD", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("WORKER_SWEEP_PERIOD: %w", err)
	}

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
