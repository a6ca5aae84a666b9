package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kitchenops/sessionbridge/internal/tools/common"
)

// Config carries everything the session bridge needs at startup. The two
// provider settings are mandatory; a process without them must not come up.
type Config struct {
	Profile string

	AuthBaseURL string
	AuthAPIKey  string

	StoragePrefix          string
	TokenMaxAge            time.Duration
	SessionRefreshInterval time.Duration
	ProviderTimeout        time.Duration

	RedisAddr           string
	DatabaseDSN         string
	DatabaseDriver      string
	DirectoryAbsenceTTL time.Duration

	ListenAddr       string
	PublicRoutes     []string
	AuthRateLimitRPM int
	APIRateLimitRPM  int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

// Load reads configuration from the environment (plus an optional env file)
// and validates it eagerly. The validation outcome is recorded as a metric
// so broken rollouts show up even when the process exits immediately.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	profile := ""
	if cfg != nil {
		profile = cfg.Profile
	}
	recordConfigValidationEvent(ctx, profile, outcome, classifyConfigLoadError(err))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	if err := common.LoadEnvFile(envOr("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Profile:        envOr("APP_PROFILE", "dev"),
		AuthBaseURL:    strings.TrimRight(os.Getenv("AUTH_BASE_URL"), "/"),
		AuthAPIKey:     os.Getenv("AUTH_API_KEY"),
		StoragePrefix:  envOr("STORAGE_PREFIX", "backoffice_auth"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		DatabaseDriver: envOr("DATABASE_DRIVER", "postgres"),
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		PublicRoutes:   splitAndTrim(envOr("PUBLIC_ROUTES", "/api/v1/auth,/health")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		OTELServiceName:          envOr("OTEL_SERVICE_NAME", "sessionbridge"),
		OTELEnvironment:          envOr("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.TokenMaxAge, err = durationOr("TOKEN_MAX_AGE", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SessionRefreshInterval, err = durationOr("SESSION_REFRESH_INTERVAL", 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.ProviderTimeout, err = durationOr("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.DirectoryAbsenceTTL, err = durationOr("DIRECTORY_ABSENCE_TTL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = durationOr("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownTimeout, err = durationOr("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownHTTPDrainTimeout, err = durationOr("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownObservabilityTimeout, err = durationOr("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.AuthRateLimitRPM, err = intOr("AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return cfg, err
	}
	if cfg.APIRateLimitRPM, err = intOr("API_RATE_LIMIT_RPM", 120); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = boolOr("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = boolOr("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracesEnabled, err = boolOr("OTEL_TRACES_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = boolOr("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthBaseURL == "" {
		return fmt.Errorf("validate config: AUTH_BASE_URL is required")
	}
	u, err := url.Parse(c.AuthBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("validate config: AUTH_BASE_URL must be an http(s) URL")
	}
	if c.AuthAPIKey == "" {
		return fmt.Errorf("validate config: AUTH_API_KEY is required")
	}
	if c.SessionRefreshInterval < 30*time.Second {
		return fmt.Errorf("validate config: SESSION_REFRESH_INTERVAL must be at least 30s")
	}
	if c.TokenMaxAge <= 0 {
		return fmt.Errorf("validate config: TOKEN_MAX_AGE must be positive")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("validate config: DATABASE_DRIVER must be postgres or sqlite")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("validate config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// IsPublicRoute reports whether the path may be served without a session.
// Consulted by the routing guard instead of redirecting from the auth core.
func (c *Config) IsPublicRoute(path string) bool {
	for _, prefix := range c.PublicRoutes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intOr(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
