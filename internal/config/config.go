// Package config loads the DICOMweb server configuration from the
// environment (with an optional .env file), the way the teacher
// connector's main.go destructures its own cfg.* fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DuplicatePolicy controls STOW-RS handling of an already-stored instance.
type DuplicatePolicy string

const (
	DuplicateReject  DuplicatePolicy = "reject"
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateAccept  DuplicatePolicy = "accept"
)

// LimitBy selects the key used by the rate limiter.
type LimitBy string

const (
	LimitByClientIP LimitBy = "clientIP"
	LimitByAPIKey   LimitBy = "apiKey"
)

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type CacheConfig struct {
	Enabled         bool
	Type            string // "memory" | "redis"
	DefaultTTL      time.Duration
	MaxEntries      int
	MaxBytes        int64
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
}

// AllowAllCORS returns the permissive CORS preset named in spec.md §6.
func AllowAllCORS() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Charset", "Content-Type", "Authorization", "X-Tenant-ID", "If-None-Match"},
		ExposedHeaders: []string{"X-Total-Count", "ETag", "Content-Range", "Accept-Ranges", "Location", "X-Cache"},
	}
}

type MetricsConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

type TLSConfig struct {
	CertificatePath string
	PrivateKeyPath  string
}

type RateLimitConfig struct {
	Enabled      bool
	MaxRequests  int
	WindowSeconds int
	LimitBy      LimitBy
}

type STOWConfig struct {
	DuplicatePolicy            DuplicatePolicy
	ValidateRequiredAttributes bool
	ValidateSOPClasses         bool
	AllowedSOPClasses          []string
	ValidateUIDFormat          bool
	AdditionalRequiredTags     []string
}

// STOWDefault is the "default" preset: replace, required+UID validation, no SOP class restriction.
func STOWDefault() STOWConfig {
	return STOWConfig{
		DuplicatePolicy:            DuplicateReplace,
		ValidateRequiredAttributes: true,
		ValidateSOPClasses:         false,
		ValidateUIDFormat:          true,
	}
}

// STOWStrict is the "strict" preset: reject, all validations.
func STOWStrict() STOWConfig {
	return STOWConfig{
		DuplicatePolicy:            DuplicateReject,
		ValidateRequiredAttributes: true,
		ValidateSOPClasses:         true,
		ValidateUIDFormat:          true,
	}
}

// STOWPermissive is the "permissive" preset: accept, no validation.
func STOWPermissive() STOWConfig {
	return STOWConfig{
		DuplicatePolicy:            DuplicateAccept,
		ValidateRequiredAttributes: false,
		ValidateSOPClasses:         false,
		ValidateUIDFormat:          false,
	}
}

type DICOMwebConfig struct {
	PathPrefix            string
	ServerName            string
	MaxRequestBodySize    int64
	MaxConcurrentRequests int
	TLS                   *TLSConfig
	CORS                  *CORSConfig
	RateLimit             *RateLimitConfig
	STOW                  STOWConfig
	Cache                 CacheConfig
}

// Config is the full server configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Metrics     MetricsConfig
	Log         LogConfig
	DICOMweb    DICOMwebConfig
	MultiTenant bool
}

// Load reads configuration from the environment, falling back to an
// optional .env file the same way the teacher's main.go does.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment only")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8042),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "dicomweb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Type:       getEnv("CACHE_TYPE", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 60*time.Second),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),
			MaxBytes:   int64(getEnvInt("CACHE_MAX_BYTES", 256<<20)),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		CORS: AllowAllCORS(),
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		MultiTenant: getEnvBool("MULTI_TENANT", false),
	}

	cfg.DICOMweb = DICOMwebConfig{
		PathPrefix:            getEnv("DICOMWEB_PATH_PREFIX", "/dicom-web"),
		ServerName:            getEnv("DICOMWEB_SERVER_NAME", "DICOMKit/1.0"),
		MaxRequestBodySize:    int64(getEnvInt("DICOMWEB_MAX_BODY_SIZE", 500<<20)),
		MaxConcurrentRequests: getEnvInt("DICOMWEB_MAX_CONCURRENT_REQUESTS", 100),
		STOW:                  stowPresetFromEnv("DICOMWEB_STOW_PRESET", "default"),
		Cache:                 cfg.Cache,
	}

	if getEnvBool("RATE_LIMIT_ENABLED", false) {
		cfg.DICOMweb.RateLimit = &RateLimitConfig{
			Enabled:       true,
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			LimitBy:       LimitBy(getEnv("RATE_LIMIT_BY", string(LimitByClientIP))),
		}
	}

	if certPath := getEnv("TLS_CERT_PATH", ""); certPath != "" {
		cfg.DICOMweb.TLS = &TLSConfig{
			CertificatePath: certPath,
			PrivateKeyPath:  getEnv("TLS_KEY_PATH", ""),
		}
	}

	return cfg, nil
}

// Validate fails fast on configuration combinations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.DICOMweb.PathPrefix == "" || !strings.HasPrefix(c.DICOMweb.PathPrefix, "/") {
		return fmt.Errorf("dicomweb path prefix must start with '/': %q", c.DICOMweb.PathPrefix)
	}
	if c.DICOMweb.MaxRequestBodySize <= 0 {
		return fmt.Errorf("dicomweb max request body size must be positive")
	}
	if c.DICOMweb.TLS != nil {
		if c.DICOMweb.TLS.CertificatePath == "" || c.DICOMweb.TLS.PrivateKeyPath == "" {
			return fmt.Errorf("tls configuration requires both certificatePath and privateKeyPath")
		}
	}
	switch c.DICOMweb.STOW.DuplicatePolicy {
	case DuplicateReject, DuplicateReplace, DuplicateAccept:
	default:
		return fmt.Errorf("invalid stow duplicate policy: %q", c.DICOMweb.STOW.DuplicatePolicy)
	}
	return nil
}

// BaseURL derives scheme://host:port<pathPrefix> per spec.md §6, substituting
// "localhost" for a wildcard bind host and using https iff TLS is configured.
func (c *Config) BaseURL() string {
	scheme := "http"
	if c.DICOMweb.TLS != nil {
		scheme = "https"
	}
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, c.Server.Port, c.DICOMweb.PathPrefix)
}

func stowPresetFromEnv(key, fallback string) STOWConfig {
	switch getEnv(key, fallback) {
	case "strict":
		return STOWStrict()
	case "permissive":
		return STOWPermissive()
	default:
		return STOWDefault()
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer env var, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration env var, using default")
		return fallback
	}
	return d
}
