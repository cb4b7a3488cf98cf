package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Address       string
	Port          string
	StorageDriver string
	DatabaseURL   string
	Database      DatabaseConfig
	BcryptCost    int
	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
	RabbitMQURL   string
	EventExchange string
	CORSOrigins   []string
	LogLevel      string
	LogFormat     string
}

// DatabaseConfig bounds the connection pool and every statement run through it.
type DatabaseConfig struct {
	MaxConns         int32
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Address:       fallback(os.Getenv("APP_ADDRESS"), "0.0.0.0"),
		Port:          fallback(os.Getenv("PORT"), "8000"),
		StorageDriver: strings.ToLower(fallback(os.Getenv("STORAGE_DRIVER"), StorageDriverPostgres)),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Database: DatabaseConfig{
			MaxConns:         int32(positiveInt(os.Getenv("DB_MAX_CONNS"), 10)),
			AcquireTimeout:   time.Duration(positiveInt(os.Getenv("DB_ACQUIRE_TIMEOUT_MS"), 3000)) * time.Millisecond,
			StatementTimeout: time.Duration(positiveInt(os.Getenv("DB_STATEMENT_TIMEOUT_MS"), 5000)) * time.Millisecond,
		},
		BcryptCost:    positiveInt(os.Getenv("BCRYPT_COST"), 0),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:     fallback(os.Getenv("JWT_ISSUER"), "userhub"),
		JWTTTL:        time.Duration(positiveInt(os.Getenv("JWT_TTL_MINUTES"), 60)) * time.Minute,
		RabbitMQURL:   strings.TrimSpace(os.Getenv("RABBITMQ_URL")),
		EventExchange: fallback(os.Getenv("EVENTS_EXCHANGE"), "users"),
		CORSOrigins:   parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		LogLevel:      fallback(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:     fallback(os.Getenv("LOG_FORMAT"), "json"),
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required")
		}
	case StorageDriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return net.JoinHostPort(c.Address, c.Port)
}

// Redact strips the password from a URL-style DSN. Empty input reads "not set".
func Redact(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "not set"
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func positiveInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
