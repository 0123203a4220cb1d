// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required for server, migrate, and seed.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "user-auth-service").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "user-auth-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// SessionTTL is the session lifetime for ordinary logins (e.g. "1h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionRememberTTL is the session lifetime when the caller sets remember-me (e.g. "720h" = 30d).
	SessionRememberTTL string `mapstructure:"SESSION_REMEMBER_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RedisAddr enables the login rate limiter when set (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// MaxLoginAttempts is the failed-login budget per identifier/IP within the cooldown window.
	MaxLoginAttempts int `mapstructure:"MAX_LOGIN_ATTEMPTS"`
	// LoginCooldown is the fixed rate-limit window for failed logins (e.g. "15m").
	LoginCooldown string `mapstructure:"LOGIN_COOLDOWN"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; telemetry is no-op when empty.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// CORSAllowedOrigins is a comma-separated list of allowed origins for the API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Auth event stream (optional). When Kafka brokers are set, the server publishes auth events to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the Kafka topic for auth events (default auth-events).
	KafkaTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "user-auth-service")
	v.SetDefault("JWT_AUDIENCE", "user-auth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_TTL", "1h")
	v.SetDefault("SESSION_REMEMBER_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("MAX_LOGIN_ATTEMPTS", 5)
	v.SetDefault("LOGIN_COOLDOWN", "15m")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "auth-events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.MaxLoginAttempts <= 0 {
		return nil, errors.New("config: MAX_LOGIN_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// SessionTTLDuration parses SessionTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SessionRememberTTLDuration parses SessionRememberTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) SessionRememberTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionRememberTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// LoginCooldownDuration parses LoginCooldown as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) LoginCooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.LoginCooldown)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the auth event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	return splitCSV(c.KafkaBrokers)
}

// CORSOriginsList returns allowed origins from the comma-separated config, or nil when unset.
func (c *Config) CORSOriginsList() []string {
	return splitCSV(c.CORSAllowedOrigins)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
