// Package procconfig is the ambient bootstrap configuration every binary
// reads before it can reach the storage service or the Configuration
// Manager: where the storage microservice lives, how to log, and where to
// expose metrics. It is viper-backed the way the rest of the corpus wires
// its own Config/LoadConfig, deliberately kept separate from
// internal/config's domain Configuration Manager.
package procconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the bootstrap configuration shared by every command.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig locates the storage microservice every component talks to.
type StorageConfig struct {
	Address string        `mapstructure:"address"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig controls pkg/logging's output.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	JSON     bool   `mapstructure:"json"`
	Filename string `mapstructure:"filename"`
}

// MetricsConfig controls where Prometheus counters are exposed.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads configPath if non-empty, then environment variables (FOGLAMP_*
// prefixed, dots replaced with underscores), then falls back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("foglamp")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("procconfig: read config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("procconfig: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.address", "localhost")
	v.SetDefault("storage.port", 8118)
	v.SetDefault("storage.timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.filename", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
