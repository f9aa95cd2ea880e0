// Package config loads marka configuration from files, environment
// variables and flags through viper.
//
// Sources are merged with the usual precedence: command-line flags override
// MARKA_* environment variables, which override the configuration file
// (.marka.yml by default).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved marka configuration.
type Config struct {
	// Templates configures where templates are found and how they reload.
	Templates TemplatesConfig `mapstructure:"templates"`

	// Render configures rendering defaults.
	Render RenderConfig `mapstructure:"render"`

	// Serve configures the preview server.
	Serve ServeConfig `mapstructure:"serve"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat selects the log output format (text, json).
	LogFormat string `mapstructure:"log_format"`
}

// TemplatesConfig configures template lookup.
type TemplatesConfig struct {
	// Paths is the template search path, tried in order.
	Paths []string `mapstructure:"paths"`

	// AutoReload re-parses templates when their files change.
	AutoReload bool `mapstructure:"auto_reload"`
}

// RenderConfig configures rendering defaults.
type RenderConfig struct {
	// Method selects the output serializer: xml, xhtml, html or text.
	Method string `mapstructure:"method"`

	// Strict makes undefined variables fatal instead of rendering empty.
	Strict bool `mapstructure:"strict"`

	// MaxRecursion bounds macro, match and include recursion depth.
	MaxRecursion int `mapstructure:"max_recursion"`
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	// Host is the interface to bind.
	Host string `mapstructure:"host"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port"`
}

// Load reads configuration from the given file (or the default search
// locations when empty) plus the environment, and unmarshals it.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("templates.paths", []string{"."})
	v.SetDefault("templates.auto_reload", false)
	v.SetDefault("render.method", "xml")
	v.SetDefault("render.strict", false)
	v.SetDefault("render.max_recursion", 100)
	v.SetDefault("serve.host", "localhost")
	v.SetDefault("serve.port", 8420)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".marka")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MARKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would fail later in a
// less obvious way.
func (c *Config) Validate() error {
	switch c.Render.Method {
	case "xml", "xhtml", "html", "text":
	default:
		return fmt.Errorf("render.method %q is not one of xml, xhtml, html, text", c.Render.Method)
	}
	if c.Render.MaxRecursion <= 0 {
		return fmt.Errorf("render.max_recursion must be positive, got %d", c.Render.MaxRecursion)
	}
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d is out of range", c.Serve.Port)
	}
	if len(c.Templates.Paths) == 0 {
		return fmt.Errorf("templates.paths must not be empty")
	}
	return nil
}

// Addr returns the host:port the preview server binds.
func (c *ServeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
