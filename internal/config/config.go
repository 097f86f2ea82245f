// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported storage backends
const (
	DBTypeMemory   = "memory"
	DBTypeMongo    = "mongo"
	DBTypePostgres = "postgres"
	DBTypeSQLite   = "sqlite"
)

// envPrefix is tried first for every variable; the bare name is the fallback.
const envPrefix = "TWILLER"

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration

	// Per-client HTTP throttle; zero RateLimit disables it.
	RateLimit float64
	RateBurst int
	// TrustProxy honours X-Forwarded-For / X-Real-IP for the client address.
	TrustProxy bool
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type     string // memory, mongo, postgres or sqlite
	MongoURI string
	Name     string // Mongo database name
	DSN      string // SQL data source; a file path or ":memory:" for sqlite
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	AllowedOrigins []string
	NotifyKeywords []string
	Debug          bool
}

// envSpec is the flat environment layout. TWILLER_PORT wins over PORT, and so on.
type envSpec struct {
	Port           int           `envconfig:"PORT" default:"5000"`
	Host           string        `envconfig:"HOST" default:"0.0.0.0"`
	MetricsEnabled bool          `envconfig:"METRICS_ENABLED" default:"true"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	RateLimit      float64       `envconfig:"RATE_LIMIT" default:"20"`
	RateBurst      int           `envconfig:"RATE_BURST" default:"40"`
	TrustProxy     bool          `envconfig:"TRUST_PROXY" default:"false"`

	// Empty DBType means: mongo when a Mongo URI is set, postgres when a DSN is set,
	// memory otherwise.
	DBType   string `envconfig:"DB_TYPE"`
	MongoURI string `envconfig:"MONGODB_URI"`
	DBName   string `envconfig:"DB_NAME" default:"database"`
	DSN      string `envconfig:"DATABASE_URL"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	NotifyKeywords []string `envconfig:"NOTIFY_KEYWORDS" default:"cricket,science"`
	Debug          bool     `envconfig:"DEBUG" default:"false"`
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           5000,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
		RateLimit:      20,
		RateBurst:      40,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type: DBTypeMemory,
		Name: "database",
	}
}

// NewForTesting returns a complete in-memory configuration.
func NewForTesting() *Config {
	return &Config{
		Server:         DefaultConfig(),
		Database:       DefaultDatabaseConfig(),
		AllowedOrigins: []string{"*"},
		NotifyKeywords: []string{"cricket", "science"},
	}
}

// LoadConfig loads configuration from a .env file (when present) and the environment.
func LoadConfig() (*Config, error) {
	loadDotEnv()

	var spec envSpec
	if err := envconfig.Process(envPrefix, &spec); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg := &Config{
		Server: &ServerConfig{
			Port:           spec.Port,
			Host:           spec.Host,
			MetricsEnabled: spec.MetricsEnabled,
			RequestTimeout: spec.RequestTimeout,
			RateLimit:      spec.RateLimit,
			RateBurst:      spec.RateBurst,
			TrustProxy:     spec.TrustProxy,
		},
		Database: &DatabaseConfig{
			Type:     spec.DBType,
			MongoURI: spec.MongoURI,
			Name:     spec.DBName,
			DSN:      spec.DSN,
		},
		AllowedOrigins: spec.AllowedOrigins,
		NotifyKeywords: spec.NotifyKeywords,
		Debug:          spec.Debug,
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveDefaults derives the database type and validates the result.
func (c *Config) ResolveDefaults() error {
	db := c.Database
	db.Type = strings.ToLower(strings.TrimSpace(db.Type))
	if db.Type == "" {
		switch {
		case db.MongoURI != "":
			db.Type = DBTypeMongo
		case db.DSN != "":
			db.Type = DBTypePostgres
		default:
			db.Type = DBTypeMemory
		}
	}

	switch db.Type {
	case DBTypeMemory:
	case DBTypeMongo:
		if db.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when DB_TYPE is mongo")
		}
		if db.Name == "" {
			db.Name = "database"
		}
	case DBTypePostgres, DBTypeSQLite:
		if db.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_TYPE is %s", db.Type)
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE: %s", db.Type)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// loadDotEnv tries the usual .env locations; a missing file is fine.
// Variables already present in the environment are never overridden.
func loadDotEnv() {
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/engine
	}
	for _, location := range envLocations {
		if _, err := os.Stat(location); err != nil {
			continue
		}
		if err := godotenv.Load(location); err == nil {
			return
		}
	}
}
