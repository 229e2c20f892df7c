// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, sessions, email delivery and
// observability.
package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-newsletter-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path (sqlite driver)
	URL    string // DSN (postgres driver)
}

// SessionConfig configures the login session store and cookie.
type SessionConfig struct {
	RedisURL   string        // empty means in-process store
	TTL        time.Duration // idle lifetime of a session
	CookieName string
	Secure     bool // mark cookie Secure (HTTPS only)
}

// EmailConfig configures the outbound email provider.
type EmailConfig struct {
	Provider string // postmark|sendgrid
	BaseURL  string
	Sender   string
	APIKey   string
	Timeout  time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for the public routes

	// App
	BaseURL       string // public URL used in confirmation links
	HMACSecret    string // key for signed redirect messages
	AdminPassword string // password of the seed admin user
	HashWorkers   int    // concurrent argon2 computations

	// Storage
	Database DatabaseConfig
	Session  SessionConfig
	Email    EmailConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL   time.Duration // how long a stored publish response is replayed
	IdempotencyWait  time.Duration // how long a concurrent retry waits for the first run
	IdempotencyStale time.Duration // age after which an unfinished publish claim may be taken over

	// Observability
	OTEL OTELConfig
}

// MinHMACSecretLen is the shortest accepted HMAC_SECRET.
const MinHMACSecretLen = 32

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		// App
		BaseURL:       strings.TrimRight(getenv("BASE_URL", "http://127.0.0.1:8080"), "/"),
		HMACSecret:    getenv("HMAC_SECRET", ""),
		AdminPassword: getenv("ADMIN_PASSWORD", "everythinghastostartsomewhere"),
		HashWorkers:   getint("HASH_WORKERS", runtime.NumCPU()),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "newsletter.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Session: SessionConfig{
			RedisURL:   getenv("REDIS_URL", ""),
			TTL:        getdur("SESSION_TTL", 24*time.Hour),
			CookieName: getenv("SESSION_COOKIE_NAME", "id"),
			Secure:     getbool("SESSION_SECURE", false),
		},
		Email: EmailConfig{
			Provider: strings.ToLower(getenv("EMAIL_PROVIDER", "postmark")),
			BaseURL:  strings.TrimRight(getenv("EMAIL_BASE_URL", "https://api.postmarkapp.com"), "/"),
			Sender:   getenv("EMAIL_SENDER", "newsletter@example.com"),
			APIKey:   sysutil.FirstNonEmpty(os.Getenv("EMAIL_API_KEY"), os.Getenv("POSTMARK_SERVER_TOKEN"), os.Getenv("SENDGRID_API_KEY")),
			Timeout:  getdur("EMAIL_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:   getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyWait:  getdur("IDEMPOTENCY_WAIT", 10*time.Second),
		IdempotencyStale: getdur("IDEMPOTENCY_STALE_AFTER", 5*time.Minute),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-newsletter-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Email.Provider == "sendgrid" && os.Getenv("EMAIL_BASE_URL") == "" {
		cfg.Email.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Database.Driver == "postgresql" || cfg.Database.Driver == "pgx" {
		cfg.Database.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return cfg, errors.New("BASE_URL must be an absolute http(s) URL")
	}
	if len(cfg.HMACSecret) < MinHMACSecretLen {
		return cfg, errors.New("HMAC_SECRET must be at least 32 bytes")
	}
	if cfg.HashWorkers < 1 {
		return cfg, errors.New("HASH_WORKERS must be >= 1")
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Session.TTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		return cfg, errors.New("SESSION_COOKIE_NAME must not be empty")
	}
	switch cfg.Email.Provider {
	case "postmark", "sendgrid":
	default:
		return cfg, errors.New("EMAIL_PROVIDER must be one of: postmark, sendgrid")
	}
	if !strings.Contains(cfg.Email.Sender, "@") {
		return cfg, errors.New("EMAIL_SENDER must be an email address")
	}
	if cfg.Email.Timeout <= 0 {
		return cfg, errors.New("EMAIL_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.IdempotencyWait <= 0 {
		return cfg, errors.New("IDEMPOTENCY_WAIT must be > 0")
	}
	if cfg.IdempotencyStale <= 0 {
		return cfg, errors.New("IDEMPOTENCY_STALE_AFTER must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
