// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Registry RegistryConfig
	Events   EventsConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

type RegistryConfig struct {
	Admin   string
	Name    string
	Symbol  string
	BaseURI string
}

type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	RedisStream  string
	RedisMaxLen  int64
	// Recent is how many envelopes the in-memory recorder keeps.
	Recent int
}

// Load reads configuration from the process environment, falling back to
// a .env file in the working directory and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "./rental.db")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REGISTRY_ADMIN", "")
	v.SetDefault("REGISTRY_NAME", "Kibiwoo")
	v.SetDefault("REGISTRY_SYMBOL", "KIBI")
	v.SetDefault("REGISTRY_BASE_URI", "/api/products")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "rental.events")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_STREAM", "rental:events")
	v.SetDefault("REDIS_MAXLEN", 10000)
	v.SetDefault("EVENTS_RECENT", 256)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
			SQLitePath:  v.GetString("SQLITE_PATH"),
			PostgresDSN: v.GetString("POSTGRES_DSN"),
		},
		Registry: RegistryConfig{
			Admin:   v.GetString("REGISTRY_ADMIN"),
			Name:    v.GetString("REGISTRY_NAME"),
			Symbol:  v.GetString("REGISTRY_SYMBOL"),
			BaseURI: v.GetString("REGISTRY_BASE_URI"),
		},
		Events: EventsConfig{
			KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
			KafkaTopic:   v.GetString("KAFKA_TOPIC"),
			RedisAddr:    v.GetString("REDIS_ADDR"),
			RedisStream:  v.GetString("REDIS_STREAM"),
			RedisMaxLen:  v.GetInt64("REDIS_MAXLEN"),
			Recent:       v.GetInt("EVENTS_RECENT"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected store driver has what it needs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the %s driver", DriverSQLite)
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
