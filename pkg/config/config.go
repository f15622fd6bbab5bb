package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds configuration for dbx tooling.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables override YAML values. Secrets
// (passwords) should only come from environment variables.
type Config struct {
	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Pool defaults for pools created through ConnectCached
	Pool PoolConfig `yaml:"pool"`

	// Named datasources the CLI can address by name
	Datasources map[string]DatasourceConfig `yaml:"datasources"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is a zap level string: debug, info, warn, error.
	Level string `yaml:"level" env:"DBX_LOG_LEVEL" env-default:"info"`
}

// PoolConfig holds pool defaults.
type PoolConfig struct {
	// DefaultMax is the capacity for pools created without an explicit max.
	DefaultMax int `yaml:"default_max" env:"DBX_POOL_MAX" env-default:"5"`
}

// DatasourceConfig names a driver and its connection parameters.
type DatasourceConfig struct {
	// Driver is a registered driver name: postgres, mssql, sqlite.
	Driver string `yaml:"driver"`

	// Params is passed verbatim to the driver's Open. Password values may
	// reference environment variables as ${VAR}.
	Params map[string]any `yaml:"params"`
}

// Load reads configuration from the given YAML path, falling back to
// environment variables only when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read config from env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts of the config that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Pool.DefaultMax <= 0 {
		return fmt.Errorf("pool.default_max must be positive, got %d", c.Pool.DefaultMax)
	}
	for name, ds := range c.Datasources {
		if ds.Driver == "" {
			return fmt.Errorf("datasource %q: driver is required", name)
		}
	}
	return nil
}

// Expand resolves ${VAR} references in string params against the
// environment. Non-string values pass through.
func (d DatasourceConfig) Expand() map[string]any {
	out := make(map[string]any, len(d.Params))
	for k, v := range d.Params {
		if s, ok := v.(string); ok {
			out[k] = os.ExpandEnv(s)
			continue
		}
		out[k] = v
	}
	return out
}
