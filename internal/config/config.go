// Package config loads runtime configuration for the graphmirror CLI from
// defaults, an optional config file, GRAPHMIRROR_-prefixed environment
// variables, and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "GRAPHMIRROR"
	defaultDatabasePath = "mirror.db"
	defaultEndpoint     = "https://api.github.com/graphql"
	defaultPageSize     = 100
	defaultLogLevel     = "info"
)

// Config captures runtime configuration for the sync driver.
type Config struct {
	DatabasePath string
	Endpoint     string
	Token        string
	SchemaPath   string // empty means the built-in schema
	PageSize     int
	LogLevel     string
}

// NewViper returns a viper instance with defaults and env bindings
// configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("graphql.endpoint", defaultEndpoint)
	v.SetDefault("graphql.page_size", defaultPageSize)
	v.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		DatabasePath: v.GetString("database.path"),
		Endpoint:     v.GetString("graphql.endpoint"),
		Token:        v.GetString("graphql.token"),
		SchemaPath:   v.GetString("schema.path"),
		PageSize:     v.GetInt("graphql.page_size"),
		LogLevel:     v.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("graphql.endpoint is required")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("graphql.page_size must be between 1 and 100, got %d", c.PageSize)
	}
	return nil
}
