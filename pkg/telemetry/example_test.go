package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openfroyo/configtpl/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Format = "json"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("configtpl started")

	// Output varies, no output specified
}

// Example_structuredLogging shows component loggers with handle fields.
func Example_structuredLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	logger := telemetry.NewLoggerWithWriter(cfg.Logging, os.Stdout).NewComponentLogger("bridge")

	logger.WithHandle(0).WithInstanceID("5f0c").Debug("builder created")
	logger.WithHandle(7).WithError(errors.New("invalid builder handle: 7")).Error("render failed")

	// Output varies, no output specified
}

// Example_renderInstrumentation shows how a render is instrumented.
func Example_renderInstrumentation() {
	tel := telemetry.Nop()

	ic := tel.StartRender(context.Background(), "render", 0, 2)
	// ... build using ic.Ctx ...
	time.Sleep(time.Millisecond)
	ic.End(telemetry.StatusSuccess, nil)

	fmt.Println("render recorded")
	// Output: render recorded
}
