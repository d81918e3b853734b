// Package config loads the viewstate CLI configuration from .viewstate.toml,
// VIEWSTATE_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. VIEWSTATE_STORAGE_DSN.
const EnvPrefix = "VIEWSTATE"

// StorageConfig selects the side-channel backend.
type StorageConfig struct {
	DSN     string        `mapstructure:"dsn" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// LogConfig controls the slog handler built for the CLI.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// MetricsConfig selects where timer samples are forwarded.
type MetricsConfig struct {
	Sink      string `mapstructure:"sink" validate:"oneof=none prometheus otel"`
	Namespace string `mapstructure:"namespace"`
}

// Config holds all runtime configuration for the viewstate CLI.
type Config struct {
	Storage   StorageConfig `mapstructure:"storage"`
	Log       LogConfig     `mapstructure:"log"`
	Evaluator string        `mapstructure:"evaluator" validate:"oneof=expr cel js"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	Persist   []string      `mapstructure:"persist" validate:"dive,required"`
	Channel   string        `mapstructure:"channel"`
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewViper returns a viper instance reading cfgFile, or .viewstate.toml from
// the working directory and then the home directory.
func NewViper(cfgFile string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".viewstate")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.dsn", "file://~/.config/viewstate/settings.toml")
	v.SetDefault("storage.timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("evaluator", "expr")
	v.SetDefault("metrics.sink", "none")
	v.SetDefault("metrics.namespace", "viewstate")
	v.SetDefault("persist", []string{})
	v.SetDefault("channel", "viewstate")
}

// Load reads the config file when present, applies defaults and validates the
// result. A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = NewViper("")
	}
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Persist = compact(cfg.Persist)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
