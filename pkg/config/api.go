package config

import (
	"fmt"
	"time"
)

const (
	// DefaultAPIListen is the default report server listen address.
	DefaultAPIListen = ":8080"

	// DefaultCacheSize is the default number of entries of the LRU cache.
	DefaultCacheSize = 1024

	// DefaultCacheTTL is the default lifetime of a cached report.
	DefaultCacheTTL = time.Hour
)

// APIConfig contains all report server configuration.
type APIConfig struct {
	Server   APIServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     APIAuthConfig     `yaml:"auth" mapstructure:"auth"`
	Database APIDatabaseConfig `yaml:"database" mapstructure:"database"`
	Cache    APICacheConfig    `yaml:"cache" mapstructure:"cache"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures rate limiting. Public reads are limited per
// client address, submissions per report db and machine.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Submit  RateLimitTier `yaml:"submit,omitempty" mapstructure:"submit"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings for report submission.
// Requests carrying the X-NO-LOGIN header bypass the login requirement.
type APIAuthConfig struct {
	RequireLogin bool            `yaml:"require_login" mapstructure:"require_login"`
	Users        []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user from config. Password holds a
// bcrypt hash.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// DSN returns the postgres connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// APICacheConfig selects the report cache backend.
type APICacheConfig struct {
	// Driver is one of "redis", "lru" or "none".
	Driver   string        `yaml:"driver" mapstructure:"driver"`
	RedisURL string        `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	Size     int           `yaml:"size,omitempty" mapstructure:"size"`
	TTL      time.Duration `yaml:"ttl,omitempty" mapstructure:"ttl"`
}

func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultAPIListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "mufat.db"
	}

	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "lru"
	}

	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
}

// ValidateAPI checks the report server configuration for errors.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api configuration section is required")
	}

	switch c.API.Database.Driver {
	case "sqlite":
		if c.API.Database.SQLite.Path == "" {
			return fmt.Errorf("api.database.sqlite.path is required")
		}
	case "postgres":
		if c.API.Database.Postgres.Host == "" {
			return fmt.Errorf("api.database.postgres.host is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.API.Database.Driver)
	}

	switch c.API.Cache.Driver {
	case "redis":
		if c.API.Cache.RedisURL == "" {
			return fmt.Errorf("api.cache.redis_url is required for the redis cache")
		}
	case "lru", "none":
	default:
		return fmt.Errorf("unsupported cache driver: %q", c.API.Cache.Driver)
	}

	for i, u := range c.API.Auth.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("api.auth.users[%d]: username and password are required", i)
		}
	}

	if c.API.Auth.RequireLogin && len(c.API.Auth.Users) == 0 {
		return fmt.Errorf("api.auth.require_login needs at least one user")
	}

	return nil
}
