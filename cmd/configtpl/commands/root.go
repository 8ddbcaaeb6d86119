package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/configtpl/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose       bool
	logFormat     string
	metricsAddr   string
	traceExporter string
	traceEndpoint string

	// tel is initialized before any subcommand runs.
	tel = telemetry.Nop()
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "configtpl",
		Short: "configtpl - layered configuration builder",
		Long: `configtpl builds configuration from layered sources and prints the
fully resolved result.

Sources:
  - Go templates rendered to YAML
  - CUE files and packages
  - Starlark scripts

Later sources deep-merge over earlier ones, then environment variables
and --set overrides are applied.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupTelemetry(cmd.Context(), version)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Flush(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush telemetry")
			}
			return tel.Shutdown(ctx)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "none", "trace exporter (stdout, otlp, none)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP collector endpoint")

	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

// setupTelemetry builds the shared telemetry from the global flags.
func setupTelemetry(ctx context.Context, version string) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Format = logFormat
	if verbose {
		cfg.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = traceEndpoint
	}

	t, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel = t
	log.Logger = tel.Logger.Zerolog()

	if ctx == nil {
		ctx = context.Background()
	}
	return tel.Metrics.StartMetricsServer(ctx, metricsAddr, tel.Logger)
}
