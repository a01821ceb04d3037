package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Schema modes understood by the schema manager
const (
	SchemaNone       = "none"
	SchemaValidate   = "validate"
	SchemaUpdate     = "update"
	SchemaCreate     = "create"
	SchemaCreateDrop = "create-drop"
)

// DriverSQLite is the only supported datasource driver
const DriverSQLite = "sqlite3"

// EnvPrefix prefixes every environment override, e.g. TRAVEL_DATASOURCE_URL
const EnvPrefix = "TRAVEL_"

// Config represents the application configuration
type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Datasource  DatasourceConfig  `yaml:"datasource"`
	Schema      SchemaConfig      `yaml:"schema"`
	Server      ServerConfig      `yaml:"server"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ApplicationConfig identifies the running application
type ApplicationConfig struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
}

// DatasourceConfig represents the relational datasource
type DatasourceConfig struct {
	URL          string `yaml:"url"`    // sqlite:mem:<name>;... or sqlite:file:<path>;...
	Driver       string `yaml:"driver"` // sqlite3
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ShowSQL      bool   `yaml:"show_sql"`
	MaxOpenConns int    `yaml:"max_open_conns,omitempty"`
}

// SchemaConfig controls schema generation at startup and shutdown
type SchemaConfig struct {
	Mode string `yaml:"mode"` // none, validate, update, create, create-drop
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host       string  `yaml:"host"`
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin,omitempty"`
	RateLimit  float64 `yaml:"rate_limit,omitempty"` // requests per second, 0 disables
	RateBurst  int     `yaml:"rate_burst,omitempty"`
}

// SchedulerConfig represents the housekeeping scheduler configuration
type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	HeartbeatCron string        `yaml:"heartbeat_cron"`
	PurgeCron     string        `yaml:"purge_cron"`
	Retention     time.Duration `yaml:"retention"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:    "travelmanagement",
			Profile: "default",
		},
		Datasource: DatasourceConfig{
			URL:          "sqlite:file:travelmanagement.db",
			Driver:       DriverSQLite,
			Username:     "sa",
			MaxOpenConns: 4,
		},
		Schema: SchemaConfig{
			Mode: SchemaUpdate,
		},
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       "8080",
			CORSOrigin: "*",
			RateLimit:  50,
			RateBurst:  100,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			HeartbeatCron: "@every 30s",
			PurgeCron:     "@daily",
			Retention:     7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load loads configuration from file. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path, honouring TRAVEL_CONFIG_PATH
func GetConfigPath() string {
	if envPath := os.Getenv(EnvPrefix + "CONFIG_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".travelmanagement/config.yaml"
	}
	return filepath.Join(home, ".travelmanagement", "config.yaml")
}

// Exists checks if config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks the configuration for values the application cannot start with.
// The datasource URL syntax is checked by the datasource package when it is opened.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Application.Name) == "" {
		return fmt.Errorf("application.name is required")
	}

	if c.Datasource.Driver != DriverSQLite {
		return fmt.Errorf("unsupported datasource driver: %q", c.Datasource.Driver)
	}
	if strings.TrimSpace(c.Datasource.URL) == "" {
		return fmt.Errorf("datasource.url is required")
	}
	if c.Datasource.MaxOpenConns < 0 {
		return fmt.Errorf("datasource.max_open_conns must not be negative")
	}

	if !IsSchemaMode(c.Schema.Mode) {
		return fmt.Errorf("unknown schema mode: %q (expected none, validate, update, create or create-drop)", c.Schema.Mode)
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %q", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.HeartbeatCron); err != nil {
			return fmt.Errorf("invalid scheduler.heartbeat_cron %q: %w", c.Scheduler.HeartbeatCron, err)
		}
		if _, err := cron.ParseStandard(c.Scheduler.PurgeCron); err != nil {
			return fmt.Errorf("invalid scheduler.purge_cron %q: %w", c.Scheduler.PurgeCron, err)
		}
		if c.Scheduler.Retention <= 0 {
			return fmt.Errorf("scheduler.retention must be positive")
		}
	}

	return nil
}

// IsSchemaMode reports whether mode is a known schema mode
func IsSchemaMode(mode string) bool {
	switch mode {
	case SchemaNone, SchemaValidate, SchemaUpdate, SchemaCreate, SchemaCreateDrop:
		return true
	}
	return false
}
