package telemetry

import (
	"context"
	"errors"

	"go.opencensus.io/trace"
)

// OpenCensusAnnotator is the opencensus counterpart to
// OpenTelemetryAnnotator, grounded on the teacher's ocAnnotator
// (opencensus_annotator.go). The teacher pushes parent contexts onto a
// github.com/golang-collections/collections/stack; that package isn't part
// of this module's dependency set, so a plain slice serves the same
// purpose here (a private, unexported LIFO of two elements deep in
// practice — StartPaused then StartRequest never nest further).
type OpenCensusAnnotator struct {
	base
	currentContext context.Context
	currentSpan    *trace.Span
	contexts       []context.Context
}

// NewOpenCensusAnnotator returns a disabled annotator bound to
// parentContext; call Enable before use.
func NewOpenCensusAnnotator(parentContext context.Context) *OpenCensusAnnotator {
	return &OpenCensusAnnotator{currentContext: parentContext}
}

var _ Annotator = (*OpenCensusAnnotator)(nil)

func (a *OpenCensusAnnotator) Enable() error {
	if a.currentContext == nil {
		return errors.New("telemetry: OpenCensusAnnotator requires a context linked to opencensus")
	}
	a.enabled = true
	return nil
}

func (a *OpenCensusAnnotator) push() {
	a.contexts = append(a.contexts, a.currentContext)
}

func (a *OpenCensusAnnotator) pop() context.Context {
	n := len(a.contexts)
	ctx := a.contexts[n-1]
	a.contexts = a.contexts[:n-1]
	return ctx
}

func (a *OpenCensusAnnotator) StartPaused(reason string, intParam int32) func() {
	if !a.enabled {
		return noop
	}
	a.push()
	a.currentContext, a.currentSpan = trace.StartSpan(a.currentContext, "hldp.paused")
	a.currentSpan.AddAttributes(
		trace.StringAttribute("hldp.stop_reason", reason),
		trace.Int64Attribute("hldp.int_param", int64(intParam)),
	)
	return func() {
		a.currentSpan.End()
		a.currentContext = a.pop()
		a.currentSpan = trace.FromContext(a.currentContext)
	}
}

func (a *OpenCensusAnnotator) StartRequest(packetType string) func() {
	if !a.enabled {
		return noop
	}
	a.push()
	var span *trace.Span
	a.currentContext, span = trace.StartSpan(a.currentContext, "hldp.request")
	span.AddAttributes(trace.StringAttribute("hldp.packet_type", packetType))
	return func() {
		span.End()
		a.currentContext = a.pop()
	}
}
