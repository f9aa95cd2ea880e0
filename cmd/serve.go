package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/marka/internal/preview"
)

var (
	serveHost     string
	servePort     int
	serveDataFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server with live reload",
	Long: `Serve templates over HTTP for previewing. Templates are rendered on
each request, and connected browsers reload automatically when a
template file changes.

Examples:
  marka serve
  marka serve --port 9000 --data site.yml
  marka serve --host 0.0.0.0`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
	serveCmd.Flags().StringVarP(&serveDataFile, "data", "d", "", "YAML file with template variables")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Serve.Host = serveHost
	}
	if servePort != 0 {
		cfg.Serve.Port = servePort
	}

	srv, err := preview.New(preview.Options{
		Addr:     cfg.Serve.Addr(),
		Paths:    cfg.Templates.Paths,
		DataFile: serveDataFile,
		Method:   cfg.Render.Method,
		Strict:   cfg.Render.Strict,
		Logger:   newLogger(cfg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
