// Package telemetry wraps the debugger's stop-and-serve loop and its
// request dispatch in spans, so an operator can see where the target (the
// interpreter under debug) spent its time paused and which requests drove
// that time. It mirrors the teacher's lisp.Profiler hook shape — Enable,
// IsEnabled, Start returning an end closure — retargeted at HLDP's pause/
// request boundaries instead of per-function-call profiling.
package telemetry

// Annotator is the pluggable tracing hook a debugger.Server may hold.
// StartPaused brackets the whole stop-and-serve loop for one stop; StartRequest
// brackets a single request handled within it. Both return a closure that
// ends the span; calling Start* while disabled returns a no-op closure.
type Annotator interface {
	IsEnabled() bool
	Enable() error
	StartPaused(reason string, intParam int32) func()
	StartRequest(packetType string) func()
}

// base is the shared bookkeeping every backend embeds, mirroring the
// teacher's profiler struct's enabled flag.
type base struct {
	enabled bool
}

func (b *base) IsEnabled() bool { return b.enabled }

// noop is returned by StartPaused/StartRequest when an Annotator is
// disabled, so callers never need a nil check.
func noop() {}
