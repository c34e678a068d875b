package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info().Msg("Application started")

	// Output varies, no output specified
}

// Example_events demonstrates subscribing to lifecycle events.
func Example_events() {
	events, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})

	events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.NodeID)
	}, telemetry.FilterByType(telemetry.EventTypeNodeInitialized))

	events.PublishNodeSkipped("reports")
	events.PublishNodeInitialized("quotes")

	// Output:
	// node.initialized quotes
}
