// Package config provides configuration management for canvasd.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a replica process. Fields are
// bound to the flat, unprefixed env vars the external interface
// promises operators: ID, PRIMARY, ADDRESS, CONNECTIONS_FILE, PG_HOST,
// PG_DBNAME, PG_USER, PG_PASSWORD, PG_PORT, DEBUG, plus the ambient
// additions the distilled spec doesn't mention.
type Config struct {
	// ID is this replica's id in the connections manifest.
	ID uint16 `mapstructure:"id"`
	// Primary forces this replica to seed itself as primary
	// regardless of how the join sequence resolves.
	Primary bool `mapstructure:"primary"`
	// Address is the host:port the HTTP front end listens on.
	Address string `mapstructure:"address"`
	// ConnectionsFile is the path to the connections manifest.
	ConnectionsFile string `mapstructure:"connections_file"`
	// Debug makes secondaries apply and log ring writes without
	// forwarding them further around the ring.
	Debug bool `mapstructure:"debug"`

	PGHost     string `mapstructure:"pg_host"`
	PGDBName   string `mapstructure:"pg_dbname"`
	PGUser     string `mapstructure:"pg_user"`
	PGPassword string `mapstructure:"pg_password"`
	PGPort     int    `mapstructure:"pg_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	MetricsNamespace    string        `mapstructure:"metrics_namespace"`
}

// Load reads configuration from literal flat env vars via one BindEnv
// per key rather than a nested prefix scheme.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("address", "127.0.0.1:8000")
	v.SetDefault("connections_file", "../../process_connections.json")
	v.SetDefault("primary", false)
	v.SetDefault("debug", false)
	v.SetDefault("pg_host", "localhost")
	v.SetDefault("pg_dbname", "pixring")
	v.SetDefault("pg_user", "postgres")
	v.SetDefault("pg_port", 5432)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("shutdown_grace_period", "10s")
	v.SetDefault("metrics_namespace", "pixring")

	bindings := map[string]string{
		"id":                    "ID",
		"primary":               "PRIMARY",
		"address":               "ADDRESS",
		"connections_file":      "CONNECTIONS_FILE",
		"debug":                 "DEBUG",
		"pg_host":               "PG_HOST",
		"pg_dbname":             "PG_DBNAME",
		"pg_user":               "PG_USER",
		"pg_password":           "PG_PASSWORD",
		"pg_port":               "PG_PORT",
		"log_level":             "LOG_LEVEL",
		"log_format":            "LOG_FORMAT",
		"shutdown_grace_period": "SHUTDOWN_GRACE_PERIOD",
		"metrics_namespace":     "METRICS_NAMESPACE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return &cfg, nil
}

// Validate checks invariants Load cannot express as viper defaults.
func (c *Config) Validate() error {
	if c.ConnectionsFile == "" {
		return fmt.Errorf("CONNECTIONS_FILE is required")
	}
	if c.PGPort < 1 || c.PGPort > 65535 {
		return fmt.Errorf("invalid PG_PORT: %d", c.PGPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (valid: debug, info, warn, error)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (valid: json, console)", c.LogFormat)
	}
	return nil
}

// String renders the config without the Postgres password.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{ID: %d, Primary: %t, Address: %s, PG: %s@%s:%d/%s, LogLevel: %s}",
		c.ID, c.Primary, c.Address, c.PGUser, c.PGHost, c.PGPort, c.PGDBName, c.LogLevel,
	)
}

// PGConnString builds the pgx connection string from the PG_* fields.
func (c *Config) PGConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGDBName, c.PGUser, c.PGPassword,
	)
}
