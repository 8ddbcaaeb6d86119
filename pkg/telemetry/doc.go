// Package telemetry provides logging, tracing and metrics for configtpl.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Telemetry value that
// the bridge and the CLI share.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Format = "json"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Libraries and tests that do not care about observability use Nop.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("bridge")
//	logger.WithHandle(3).Debug("builder created")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Tracing
//
// Every render is wrapped in a span named bridge.<operation> carrying the
// builder handle and the number of source paths. Exporters: stdout (pretty
// printed to stderr), otlp (gRPC), none.
//
// # Metrics
//
// All metrics live under the configured namespace (configtpl by default):
//
//	builders_created_total            counter
//	builders_released_total           counter
//	builders_live                     gauge
//	renders_total{operation,status}   counter
//	render_duration_seconds{operation} histogram
//	invalid_handles_total             counter
//
// Metrics are exposed over HTTP with Metrics.StartMetricsServer.
package telemetry
