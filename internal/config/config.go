// Package config wraps viper with edgescan's defaults and a nil-safe accessor
// type that components can hold without caring whether a file was loaded.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. EDGESCAN_SCAN_INTERVAL.
const EnvPrefix = "EDGESCAN"

// Config is a read-only view over a viper instance. The zero value and a
// Config built from a nil viper return zero values for every key.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty Config.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Load reads the optional YAML file at path, applies defaults and binds
// EDGESCAN_* environment overrides. An empty path searches ./edgescan.yaml
// and /etc/edgescan/edgescan.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("edgescan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edgescan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// SetDefaults registers the default value of every known key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("data_dir", "./data")
	v.SetDefault("location", "default")

	v.SetDefault("scan.subnets", []string{})
	v.SetDefault("scan.interval", "0s")
	v.SetDefault("scan.schedule", "")
	v.SetDefault("scan.concurrency", 50)
	v.SetDefault("scan.ping_timeout", "1s")
	v.SetDefault("scan.port_timeout", "1s")
	v.SetDefault("scan.ports", []int{554, 80, 443, 8080})
	v.SetDefault("scan.min_prefix", 24)
	v.SetDefault("scan.privileged", false)
	v.SetDefault("scan.mac_resolution", "table")
	v.SetDefault("scan.interface", "")
	v.SetDefault("scan.mdns", false)

	v.SetDefault("registry.backend", "sqlite")
	v.SetDefault("registry.path", "")

	v.SetDefault("healthcheck.path", "./gatus/config.yaml")
	v.SetDefault("healthcheck.interval", "30s")
	v.SetDefault("healthcheck.placeholder_interval", "60s")
	v.SetDefault("healthcheck.web_port", 8080)
	v.SetDefault("healthcheck.metrics", true)
}

func (c *Config) GetString(key string) string {
	if c == nil || c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

func (c *Config) GetFloat64(key string) float64 {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetFloat64(key)
}

func (c *Config) GetBool(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

func (c *Config) GetStringSlice(key string) []string {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.GetStringSlice(key)
}

func (c *Config) GetIntSlice(key string) []int {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.GetIntSlice(key)
}

func (c *Config) IsSet(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree rooted at key. It never returns nil; a missing
// subtree yields an empty Config.
func (c *Config) Sub(key string) *Config {
	if c == nil || c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole configuration into target using mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}

// ConfigFileUsed returns the path of the loaded file, or "".
func (c *Config) ConfigFileUsed() string {
	if c == nil || c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}
