package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/objrt/internal/inspect"
	"github.com/conduit-lang/objrt/internal/logging"
	"github.com/conduit-lang/objrt/internal/store"
)

// Config represents the objrt configuration
type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Types     []string         `mapstructure:"types"`
	Inspector InspectorConfig  `mapstructure:"inspector"`
	Store     StoreConfig      `mapstructure:"store"`
	Instances []InstanceConfig `mapstructure:"instances"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InspectorConfig represents inspector server configuration
type InspectorConfig struct {
	Addr           string        `mapstructure:"addr"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig represents property store configuration. An empty backend
// disables persistence.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Workers int         `mapstructure:"workers"`
	Redis   RedisConfig `mapstructure:"redis"`
	SQL     SQLConfig   `mapstructure:"sql"`
}

// RedisConfig represents redis store configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLConfig represents sql store configuration
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// InstanceConfig names an instance created when serving. With a store
// configured it is restored from and saved under Key.
type InstanceConfig struct {
	Type string `mapstructure:"type"`
	Key  string `mapstructure:"key"`
}

// Load reads objrt.yaml from the working directory, or path when set.
// Environment variables prefixed with OBJRT_ override file values, e.g.
// OBJRT_INSPECTOR_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("inspector.addr", "127.0.0.1:7070")
	v.SetDefault("inspector.jwt_secret", "")
	v.SetDefault("inspector.read_timeout", "10s")
	v.SetDefault("inspector.write_timeout", "10s")
	v.SetDefault("store.backend", "")
	v.SetDefault("store.workers", 4)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "objrt:object:")
	v.SetDefault("store.sql.driver", "sqlite3")
	v.SetDefault("store.sql.dsn", "objrt.db")
	v.SetDefault("store.sql.table", "objrt_properties")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("objrt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("OBJRT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file, defaults and environment only
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration for values the commands cannot use
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Inspector.Addr == "" {
		return fmt.Errorf("inspector.addr must not be empty")
	}
	if c.Inspector.ReadTimeout < 0 || c.Inspector.WriteTimeout < 0 {
		return fmt.Errorf("inspector timeouts must not be negative")
	}

	switch c.Store.Backend {
	case "", "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must not be empty")
		}
	case "sql":
		switch c.Store.SQL.Driver {
		case "sqlite3", "pgx", "postgres":
		default:
			return fmt.Errorf("store.sql.driver must be sqlite3, pgx or postgres, got: %s", c.Store.SQL.Driver)
		}
		if c.Store.SQL.DSN == "" {
			return fmt.Errorf("store.sql.dsn must not be empty")
		}
	default:
		return fmt.Errorf("store.backend must be memory, redis or sql, got: %s", c.Store.Backend)
	}
	if c.Store.Workers <= 0 {
		return fmt.Errorf("store.workers must be positive, got: %d", c.Store.Workers)
	}

	keys := make(map[string]bool, len(c.Instances))
	for i, inst := range c.Instances {
		if inst.Type == "" {
			return fmt.Errorf("instances[%d].type must not be empty", i)
		}
		if inst.Key == "" {
			continue
		}
		if keys[inst.Key] {
			return fmt.Errorf("instances[%d].key '%s' is used twice", i, inst.Key)
		}
		keys[inst.Key] = true
	}
	return nil
}

// Logging returns the logger configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// InspectorOptions returns the inspector server configuration
func (c *Config) InspectorOptions() inspect.Config {
	return inspect.Config{
		Addr:           c.Inspector.Addr,
		JWTSecret:      c.Inspector.JWTSecret,
		AllowedOrigins: c.Inspector.AllowedOrigins,
		ReadTimeout:    c.Inspector.ReadTimeout,
		WriteTimeout:   c.Inspector.WriteTimeout,
	}
}

// StoreEnabled reports whether a store backend is configured
func (c *Config) StoreEnabled() bool {
	return c.Store.Backend != ""
}

// StoreOptions returns the store backend configuration
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Backend: c.Store.Backend,
		Redis: store.RedisConfig{
			Addr:      c.Store.Redis.Addr,
			Password:  c.Store.Redis.Password,
			DB:        c.Store.Redis.DB,
			KeyPrefix: c.Store.Redis.Prefix,
		},
		Driver: c.Store.SQL.Driver,
		DSN:    c.Store.SQL.DSN,
		Table:  c.Store.SQL.Table,
	}
}
