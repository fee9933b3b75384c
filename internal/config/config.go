// Package config loads and validates portald settings from PORTAL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lborres/portal/core"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type Config struct {
	// --- Server ---

	Port      int
	BasePath  string
	LogLevel  slog.Level
	LogFormat string

	// --- PostgreSQL ---

	// DatabaseURL, when set, wins over the DB* parts.
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	DBSSLMode   string

	// --- Auth backend (GoTrue) ---

	AuthURL       string
	AuthAPIKey    string
	AuthJWTSecret string
	AuthTimeout   time.Duration
	// RefreshMargin is how long before expiry the access token is refreshed.
	RefreshMargin time.Duration

	// --- Optional infrastructure ---

	RedisURL string
	AMQPURL  string

	// --- Session and permissions ---

	BootstrapAdminEmail string
	SignOutRecovery     time.Duration
	PermissionTimeout   time.Duration
	CacheTTL            time.Duration
	CacheSize           int

	ShutdownTimeout time.Duration
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Port, err = getEnvInt("PORTAL_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORTAL_PORT: %d out of range 1-65535", cfg.Port)
	}

	cfg.BasePath = getEnvDefault("PORTAL_BASE_PATH", "/api/auth")
	if !strings.HasPrefix(cfg.BasePath, "/") {
		return nil, fmt.Errorf("PORTAL_BASE_PATH: %q must start with /", cfg.BasePath)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PORTAL_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PORTAL_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("PORTAL_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PORTAL_LOG_FORMAT: invalid value %q, allowed: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DatabaseURL = os.Getenv("PORTAL_DATABASE_URL")
	cfg.DBHost = os.Getenv("PORTAL_DB_HOST")
	cfg.DBPort, err = getEnvInt("PORTAL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("PORTAL_DB_NAME", "portal")
	cfg.DBUser = getEnvDefault("PORTAL_DB_USER", "portal")
	cfg.DBPassword = os.Getenv("PORTAL_DB_PASSWORD")
	cfg.DBSSLMode = getEnvDefault("PORTAL_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PORTAL_DB_SSL_MODE: invalid value %q, allowed: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Auth backend ---

	cfg.AuthURL = strings.TrimRight(os.Getenv("PORTAL_AUTH_URL"), "/")
	cfg.AuthAPIKey = os.Getenv("PORTAL_AUTH_API_KEY")
	cfg.AuthJWTSecret = os.Getenv("PORTAL_AUTH_JWT_SECRET")
	if cfg.AuthURL != "" {
		if _, err := url.ParseRequestURI(cfg.AuthURL); err != nil {
			return nil, fmt.Errorf("PORTAL_AUTH_URL: %w", err)
		}
		if cfg.AuthAPIKey == "" {
			return nil, errors.New("PORTAL_AUTH_API_KEY: required when PORTAL_AUTH_URL is set")
		}
	}

	cfg.AuthTimeout, err = getEnvDuration("PORTAL_AUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_AUTH_TIMEOUT: %w", err)
	}
	cfg.RefreshMargin, err = getEnvDuration("PORTAL_AUTH_REFRESH_MARGIN", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_AUTH_REFRESH_MARGIN: %w", err)
	}

	// --- Optional infrastructure ---

	cfg.RedisURL = os.Getenv("PORTAL_REDIS_URL")
	cfg.AMQPURL = os.Getenv("PORTAL_AMQP_URL")

	// --- Session and permissions ---

	cfg.BootstrapAdminEmail = getEnvDefault("PORTAL_BOOTSTRAP_ADMIN_EMAIL", core.DefaultBootstrapAdminEmail)
	if strings.EqualFold(cfg.BootstrapAdminEmail, "none") {
		cfg.BootstrapAdminEmail = ""
	}
	if cfg.BootstrapAdminEmail != "" {
		if err := core.ValidateEmail(cfg.BootstrapAdminEmail); err != nil {
			return nil, fmt.Errorf("PORTAL_BOOTSTRAP_ADMIN_EMAIL: %w", err)
		}
	}

	cfg.SignOutRecovery, err = getEnvPositiveDuration("PORTAL_SIGNOUT_RECOVERY_TIMEOUT", core.DefaultSessionConfig().RecoveryTimeout)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_SIGNOUT_RECOVERY_TIMEOUT: %w", err)
	}
	cfg.PermissionTimeout, err = getEnvPositiveDuration("PORTAL_PERMISSION_TIMEOUT", core.DefaultPermissionConfig().Timeout)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_PERMISSION_TIMEOUT: %w", err)
	}
	cfg.CacheTTL, err = getEnvPositiveDuration("PORTAL_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_CACHE_TTL: %w", err)
	}
	cfg.CacheSize, err = getEnvInt("PORTAL_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("PORTAL_CACHE_SIZE: %d must be positive", cfg.CacheSize)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("PORTAL_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PORTAL_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DemoMode is true when no auth backend is configured. The portal then runs
// on in-memory adapters.
func (c *Config) DemoMode() bool {
	return c.AuthURL == ""
}

// HasDatabase reports whether PostgreSQL settings were provided.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != "" || c.DBHost != ""
}

// DatabaseDSN returns a postgres:// connection URL.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) SessionConfig() core.SessionConfig {
	return core.SessionConfig{RecoveryTimeout: c.SignOutRecovery}
}

func (c *Config) PermissionConfig() core.PermissionConfig {
	return core.PermissionConfig{
		Timeout:             c.PermissionTimeout,
		BootstrapAdminEmail: c.BootstrapAdminEmail,
	}
}

func (c *Config) CacheConfig() core.CacheConfig {
	return core.CacheConfig{TTL: c.CacheTTL, MaxSize: c.CacheSize}
}

// SetupLogger builds the process logger and installs it as slog's default.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With("version", Version)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %s must be positive", d)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
