package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provision"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Identity provider configuration
	Provider ProviderConfig

	// Login flow configuration
	Login LoginConfig

	// Session configuration
	Session SessionConfig

	// Storage configuration
	Storage StorageConfig

	// Provisioning configuration
	Provisioning ProvisioningConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// SecureCookies should only be disabled for local development
	SecureCookies bool
}

// ProviderConfig holds identity provider settings
type ProviderConfig struct {
	// Issuer is the provider's issuer URL, used for discovery and for
	// issuer claim checks
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides. When empty they are discovered from the issuer.
	AuthEndpoint     string
	TokenEndpoint    string
	JWKSEndpoint     string
	UserInfoEndpoint string

	// AllowedAlgorithms restricts ID token signing algorithms. Empty
	// selects the asymmetric default set.
	AllowedAlgorithms []string

	ClockSkew          time.Duration
	MinRefreshInterval time.Duration
	HTTPTimeout        time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

// LoginConfig holds login flow settings
type LoginConfig struct {
	StateTTL time.Duration
}

// SessionConfig holds session settings
type SessionConfig struct {
	TTL time.Duration

	// SweepSchedule is a cron expression for the expired-session sweep
	SweepSchedule string
}

// StorageConfig selects the user and session store backend
type StorageConfig struct {
	// Type is "memory" or "postgres"
	Type        string
	PostgresURL string
}

// ProvisioningConfig holds user provisioning settings
type ProvisioningConfig struct {
	// RoleMapping maps provider group identifiers to application roles
	RoleMapping provision.RoleMapping

	// Claim name overrides
	EmailClaim       string
	DisplayNameClaim string
	GroupsClaim      string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	roleMapping, err := parseRoleMapping(getEnv("GATEHOUSE_ROLE_MAPPING", ""))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
			SecureCookies:   getEnvBool("GATEHOUSE_SECURE_COOKIES", true),
		},
		Provider: ProviderConfig{
			Issuer:             getEnv("GATEHOUSE_ISSUER", ""),
			ClientID:           getEnv("GATEHOUSE_CLIENT_ID", ""),
			ClientSecret:       getEnv("GATEHOUSE_CLIENT_SECRET", ""),
			RedirectURL:        getEnv("GATEHOUSE_REDIRECT_URL", ""),
			Scopes:             parseList(getEnv("GATEHOUSE_SCOPES", "openid,profile,email")),
			AuthEndpoint:       getEnv("GATEHOUSE_AUTH_ENDPOINT", ""),
			TokenEndpoint:      getEnv("GATEHOUSE_TOKEN_ENDPOINT", ""),
			JWKSEndpoint:       getEnv("GATEHOUSE_JWKS_ENDPOINT", ""),
			UserInfoEndpoint:   getEnv("GATEHOUSE_USERINFO_ENDPOINT", ""),
			AllowedAlgorithms:  parseList(getEnv("GATEHOUSE_ALLOWED_ALGORITHMS", "")),
			ClockSkew:          getEnvDuration("GATEHOUSE_CLOCK_SKEW", time.Minute),
			MinRefreshInterval: getEnvDuration("GATEHOUSE_JWKS_MIN_REFRESH", 5*time.Minute),
			HTTPTimeout:        getEnvDuration("GATEHOUSE_PROVIDER_TIMEOUT", 10*time.Second),
			MaxRetries:         getEnvInt("GATEHOUSE_EXCHANGE_MAX_RETRIES", 2),
			RetryDelay:         getEnvDuration("GATEHOUSE_EXCHANGE_RETRY_DELAY", 500*time.Millisecond),
		},
		Login: LoginConfig{
			StateTTL: getEnvDuration("GATEHOUSE_STATE_TTL", 10*time.Minute),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("GATEHOUSE_SESSION_TTL", 24*time.Hour),
			SweepSchedule: getEnv("GATEHOUSE_SESSION_SWEEP_SCHEDULE", "@every 10m"),
		},
		Storage: StorageConfig{
			Type:        getEnv("GATEHOUSE_STORAGE_TYPE", "memory"),
			PostgresURL: getEnv("GATEHOUSE_POSTGRES_URL", ""),
		},
		Provisioning: ProvisioningConfig{
			RoleMapping:      roleMapping,
			EmailClaim:       getEnv("GATEHOUSE_EMAIL_CLAIM", "email"),
			DisplayNameClaim: getEnv("GATEHOUSE_DISPLAY_NAME_CLAIM", "name"),
			GroupsClaim:      getEnv("GATEHOUSE_GROUPS_CLAIM", "groups"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Provider.Issuer == "" {
		return fmt.Errorf("provider issuer is required")
	}
	if c.Provider.ClientID == "" {
		return fmt.Errorf("provider client id is required")
	}
	if c.Provider.ClientSecret == "" {
		return fmt.Errorf("provider client secret is required")
	}
	if c.Provider.RedirectURL == "" {
		return fmt.Errorf("provider redirect URL is required")
	}

	// Endpoints are all-or-nothing: either pin the full set or discover
	// everything from the issuer.
	pinned := 0
	for _, endpoint := range []string{c.Provider.AuthEndpoint, c.Provider.TokenEndpoint, c.Provider.JWKSEndpoint} {
		if endpoint != "" {
			pinned++
		}
	}
	if pinned != 0 && pinned != 3 {
		return fmt.Errorf("auth, token, and JWKS endpoints must be set together or all discovered")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	return nil
}

// parseRoleMapping parses "group=role,group=role" pairs
func parseRoleMapping(raw string) (provision.RoleMapping, error) {
	mapping := provision.RoleMapping{}
	if raw == "" {
		return mapping, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid role mapping entry: %q", pair)
		}
		role := provision.Role(parts[1])
		if !role.Valid() {
			return nil, fmt.Errorf("invalid role %q in mapping entry %q", parts[1], pair)
		}
		mapping[parts[0]] = role
	}
	return mapping, nil
}

// parseList splits a comma-separated value, dropping empty entries
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
