package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type setter func(c *Config, value string) error

// properties maps dotted override keys onto config fields
var properties = map[string]setter{
	"application.name":    stringProp(func(c *Config) *string { return &c.Application.Name }),
	"application.profile": stringProp(func(c *Config) *string { return &c.Application.Profile }),

	"datasource.url":            stringProp(func(c *Config) *string { return &c.Datasource.URL }),
	"datasource.driver":         stringProp(func(c *Config) *string { return &c.Datasource.Driver }),
	"datasource.username":       stringProp(func(c *Config) *string { return &c.Datasource.Username }),
	"datasource.password":       stringProp(func(c *Config) *string { return &c.Datasource.Password }),
	"datasource.show_sql":       boolProp(func(c *Config) *bool { return &c.Datasource.ShowSQL }),
	"datasource.max_open_conns": intProp(func(c *Config) *int { return &c.Datasource.MaxOpenConns }),

	"schema.mode": func(c *Config, value string) error {
		value = strings.ToLower(strings.TrimSpace(value))
		if !IsSchemaMode(value) {
			return fmt.Errorf("unknown schema mode: %q", value)
		}
		c.Schema.Mode = value
		return nil
	},

	"server.host":        stringProp(func(c *Config) *string { return &c.Server.Host }),
	"server.port":        stringProp(func(c *Config) *string { return &c.Server.Port }),
	"server.cors_origin": stringProp(func(c *Config) *string { return &c.Server.CORSOrigin }),
	"server.rate_limit": func(c *Config, value string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid number: %q", value)
		}
		c.Server.RateLimit = f
		return nil
	},
	"server.rate_burst": intProp(func(c *Config) *int { return &c.Server.RateBurst }),

	"scheduler.enabled":        boolProp(func(c *Config) *bool { return &c.Scheduler.Enabled }),
	"scheduler.heartbeat_cron": stringProp(func(c *Config) *string { return &c.Scheduler.HeartbeatCron }),
	"scheduler.purge_cron":     stringProp(func(c *Config) *string { return &c.Scheduler.PurgeCron }),
	"scheduler.retention": func(c *Config, value string) error {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid duration: %q", value)
		}
		c.Scheduler.Retention = d
		return nil
	},

	"logging.level": stringProp(func(c *Config) *string { return &c.Logging.Level }),
}

func stringProp(field func(*Config) *string) setter {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

func boolProp(field func(*Config) *bool) setter {
	return func(c *Config, value string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid boolean: %q", value)
		}
		*field(c) = b
		return nil
	}
}

func intProp(field func(*Config) *int) setter {
	return func(c *Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid integer: %q", value)
		}
		*field(c) = n
		return nil
	}
}

// PropertyKeys returns every key accepted by ApplyProperties, sorted
func PropertyKeys() []string {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyProperties overrides config fields from dotted keys such as
// "datasource.url". Keys are applied in sorted order so errors are stable.
func (c *Config) ApplyProperties(props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := properties[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return fmt.Errorf("unknown property: %s", key)
		}
		if err := set(c, props[key]); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides key
func EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(key))
}

// ApplyEnv overrides config fields from TRAVEL_* variables found through lookup.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	props := make(map[string]string)
	for key := range properties {
		if value, ok := lookup(EnvName(key)); ok {
			props[key] = value
		}
	}
	return c.ApplyProperties(props)
}

// ParseProperties parses key=value pairs. The value may be empty ("datasource.password=").
func ParseProperties(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q (expected key=value)", pair)
		}
		props[key] = value
	}
	return props, nil
}

// InMemoryProperties returns the overrides that point the context at a
// throwaway in-memory store whose schema lives exactly as long as the context.
// name selects the in-memory database; empty means "testdb".
func InMemoryProperties(name string) map[string]string {
	if name == "" {
		name = "testdb"
	}
	return map[string]string{
		"datasource.url":      "sqlite:mem:" + name + ";DB_CLOSE_DELAY=-1;DB_CLOSE_ON_EXIT=FALSE",
		"datasource.driver":   DriverSQLite,
		"datasource.username": "sa",
		"datasource.password": "",
		"schema.mode":         SchemaCreateDrop,
		"datasource.show_sql": "false",
	}
}
