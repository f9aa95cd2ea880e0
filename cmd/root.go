// Package cmd provides the marka command-line interface.
//
// Configuration is merged from three sources with the usual precedence:
//
//  1. Command-line flags (--config, --method, etc.)
//  2. MARKA_* environment variables (MARKA_RENDER_METHOD, MARKA_SERVE_PORT, ...)
//  3. A configuration file (.marka.yml in the current directory by default,
//     or the path given by --config / MARKA_CONFIG_FILE)
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/marka/internal/config"
	"github.com/conneroisu/marka/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "marka",
	Short: "Stream-based XML and text templating",
	Long: `Marka renders XML, XHTML, HTML and plain-text templates with
attribute directives for conditionals, loops, macros and match rules.

Quick Start:
  marka render page.html --data site.yml   Render a template to stdout
  marka check templates/                   Validate templates without rendering
  marka serve                              Preview templates with live reload`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .marka.yml, or MARKA_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlag)
}

// normalizeFlag lets config-file spellings like --log_level work as flags.
func normalizeFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// loadConfig resolves the configuration for a command invocation, honoring
// the --config flag and the MARKA_CONFIG_FILE environment variable.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("MARKA_CONFIG_FILE")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger from resolved configuration.
func newLogger(cfg *config.Config) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	return logging.NewLogger(lc)
}
