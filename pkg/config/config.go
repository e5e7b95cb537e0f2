package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Import        ImportConfig
	Antivirus     AntivirusConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	ShutdownTimeout    time.Duration
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	// Driver selects the ledger: "postgres" or "memory".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type ImportConfig struct {
	MaxUploadBytes int
	MaxRows        int
	SessionTTL     time.Duration
	BatchSize      int
	BatchTimeout   time.Duration
	PreviewRows    int
}

type AntivirusConfig struct {
	// Addr is the clamd TCP address. Empty disables scanning.
	Addr    string
	Timeout time.Duration
	// Policy is "fail_closed", "fail_open" or "disabled".
	Policy string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("LEDGER_DRIVER", DriverPostgres),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "smart_import"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "smart-import"),
		},
		Import: ImportConfig{
			MaxUploadBytes: getEnvAsInt("IMPORT_MAX_UPLOAD_BYTES", 15<<20),
			MaxRows:        getEnvAsInt("IMPORT_MAX_ROWS", 10000),
			SessionTTL:     getEnvAsDuration("IMPORT_SESSION_TTL", 15*time.Minute),
			BatchSize:      getEnvAsInt("IMPORT_BATCH_SIZE", 100),
			BatchTimeout:   getEnvAsDuration("IMPORT_BATCH_TIMEOUT", 60*time.Second),
			PreviewRows:    getEnvAsInt("IMPORT_PREVIEW_ROWS", 20),
		},
		Antivirus: AntivirusConfig{
			Addr:    getEnv("ANTIVIRUS_ADDR", ""),
			Timeout: getEnvAsDuration("ANTIVIRUS_TIMEOUT", 10*time.Second),
			Policy:  getEnv("ANTIVIRUS_POLICY", "fail_closed"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Database.Driver != DriverPostgres && cfg.Database.Driver != DriverMemory {
		return nil, fmt.Errorf("LEDGER_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}
	if cfg.Import.MaxUploadBytes <= 0 || cfg.Import.MaxRows <= 0 || cfg.Import.BatchSize <= 0 {
		return nil, errors.New("IMPORT_MAX_UPLOAD_BYTES, IMPORT_MAX_ROWS and IMPORT_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
