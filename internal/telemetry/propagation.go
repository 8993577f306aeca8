// Package telemetry configures OpenTelemetry context propagation for
// messages leaving the process.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

// RunIDKey is the baggage member carrying the run ID.
const RunIDKey = "run_id"

// InstallPropagator sets the global propagator to W3C trace context plus
// baggage.
func InstallPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// RunBaggage returns baggage holding runID under RunIDKey.
func RunBaggage(runID string) (baggage.Baggage, error) {
	m, err := baggage.NewMember(RunIDKey, runID)
	if err != nil {
		return baggage.Baggage{}, fmt.Errorf("run id baggage: %w", err)
	}
	b, err := baggage.New(m)
	if err != nil {
		return baggage.Baggage{}, fmt.Errorf("run id baggage: %w", err)
	}
	return b, nil
}

// WithRunID attaches the run ID baggage to ctx.
func WithRunID(ctx context.Context, runID string) (context.Context, error) {
	b, err := RunBaggage(runID)
	if err != nil {
		return ctx, err
	}
	return baggage.ContextWithBaggage(ctx, b), nil
}
