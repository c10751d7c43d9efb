// Package config loads dispatcher configuration from a file and the
// environment.
//
// Keys are read from the file first and may be overridden by environment
// variables prefixed with MSGROUTE_, e.g. MSGROUTE_LOG_LEVEL=debug or
// MSGROUTE_DESTINATION_PREFIXES=/app,/user.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/bjaus/msgroute"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "MSGROUTE"

// Config is the top-level dispatcher configuration.
type Config struct {
	Destination DestinationConfig `mapstructure:"destination"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Log         LogConfig         `mapstructure:"log"`
}

// DestinationConfig controls destination filtering and pattern matching.
type DestinationConfig struct {
	Prefixes  []string `mapstructure:"prefixes"  validate:"dive,required"`
	Separator string   `mapstructure:"separator" validate:"required"`
}

// DispatchConfig toggles the built-in argument resolvers and return value
// handlers.
type DispatchConfig struct {
	DefaultArgumentResolvers   bool `mapstructure:"default_argument_resolvers"`
	DefaultReturnValueHandlers bool `mapstructure:"default_return_value_handlers"`
}

// LogConfig defines the dispatcher logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("destination.prefixes", []string{})
	v.SetDefault("destination.separator", "/")
	v.SetDefault("dispatch.default_argument_resolvers", true)
	v.SetDefault("dispatch.default_return_value_handlers", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Destination: DestinationConfig{Separator: "/"},
		Dispatch: DispatchConfig{
			DefaultArgumentResolvers:   true,
			DefaultReturnValueHandlers: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path, applies environment
// overrides and validates the result. An empty path loads defaults and
// environment variables only. The file format follows the extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Logger builds a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Options converts the configuration into dispatcher options, logging
// to w.
func (c *Config) Options(w io.Writer) []msgroute.Option {
	return []msgroute.Option{
		msgroute.WithLogger(c.Logger(w)),
		msgroute.WithDestinationPrefixes(c.Destination.Prefixes...),
		msgroute.WithDefaultArgumentResolvers(c.Dispatch.DefaultArgumentResolvers),
		msgroute.WithDefaultReturnValueHandlers(c.Dispatch.DefaultReturnValueHandlers),
	}
}

// RouteOptions converts the configuration into route strategy options.
func (c *Config) RouteOptions() []msgroute.RouteOption {
	return []msgroute.RouteOption{msgroute.WithPathSeparator(c.Destination.Separator)}
}

// NewRouteDispatcher creates a route dispatcher from the configuration.
// opts are applied after the configured options.
func (c *Config) NewRouteDispatcher(w io.Writer, opts ...msgroute.Option) *msgroute.Dispatcher[msgroute.Route] {
	strategy := msgroute.NewDestinationStrategy(c.RouteOptions()...)
	return msgroute.New[msgroute.Route](strategy, append(c.Options(w), opts...)...)
}
