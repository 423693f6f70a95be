package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is looked up from the parent context the same way the
// teacher's ContextOpenTelemetryTracerKey is, falling back to "hldp" when
// absent.
type tracerNameKey struct{}

// TracerNameKey is the context key StartPaused/StartRequest's tracer lookup
// consults.
var TracerNameKey tracerNameKey

// OpenTelemetryAnnotator wraps the stop-and-serve loop and its request
// dispatch in otel spans. Grounded on the teacher's otelAnnotator
// (opentelemetry_annotator.go): current span/context kept as mutable
// fields, Start returns a closure that ends the span and restores the
// parent context.
type OpenTelemetryAnnotator struct {
	base
	parentContext  context.Context
	currentContext context.Context
	currentSpan    trace.Span
}

var _ Annotator = (*OpenTelemetryAnnotator)(nil)

// NewOpenTelemetryAnnotator returns a disabled annotator bound to
// parentContext; call Enable before use.
func NewOpenTelemetryAnnotator(parentContext context.Context) *OpenTelemetryAnnotator {
	return &OpenTelemetryAnnotator{parentContext: parentContext, currentContext: parentContext}
}

func (a *OpenTelemetryAnnotator) Enable() error {
	if a.parentContext == nil {
		return errors.New("telemetry: OpenTelemetryAnnotator requires a context linked to an otel tracer provider")
	}
	a.enabled = true
	return nil
}

func (a *OpenTelemetryAnnotator) tracer() trace.Tracer {
	name, ok := a.currentContext.Value(TracerNameKey).(string)
	if !ok || name == "" {
		name = "hldp"
	}
	return otel.GetTracerProvider().Tracer(name)
}

func (a *OpenTelemetryAnnotator) StartPaused(reason string, intParam int32) func() {
	if !a.enabled {
		return noop
	}
	oldContext := a.currentContext
	a.currentContext, a.currentSpan = a.tracer().Start(a.currentContext, "hldp.paused")
	a.currentSpan.SetAttributes(
		attribute.String("hldp.stop_reason", reason),
		attribute.Int("hldp.int_param", int(intParam)),
	)
	return func() {
		a.currentSpan.End()
		a.currentContext = oldContext
		a.currentSpan = trace.SpanFromContext(a.currentContext)
	}
}

func (a *OpenTelemetryAnnotator) StartRequest(packetType string) func() {
	if !a.enabled {
		return noop
	}
	oldContext := a.currentContext
	var span trace.Span
	a.currentContext, span = a.tracer().Start(a.currentContext, "hldp.request")
	span.SetAttributes(attribute.String("hldp.packet_type", packetType))
	return func() {
		span.End()
		a.currentContext = oldContext
	}
}
