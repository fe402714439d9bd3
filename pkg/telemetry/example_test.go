package telemetry_test

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/provisioner/pkg/telemetry"
)

func Example() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	fmt.Println(telemetry.FromContext(ctx) == tel)
	// Output: true
}

func ExampleLogger() {
	logger := telemetry.NewLoggerWriter(os.Stdout, telemetry.LoggingConfig{Level: "info", Format: "json", TimeFormat: "unix"})
	z := logger.NewComponentLogger("scheduler").Zerolog()
	z.Debug().Str("run_id", "run-123").Msg("not printed")
}
