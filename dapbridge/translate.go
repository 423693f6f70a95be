// Package dapbridge is an auxiliary export path: it translates HLDP stop
// and backtrace events into github.com/google/go-dap types so a generic
// DAP-aware log viewer can follow a session. It is not the wire protocol
// (HLDP keeps its own binary framing, see package hldp) and it does not
// promise full DAP request/response fidelity — it is best-effort, grounded
// on the teacher's dapserver/translate.go and dapserver/handler.go.
package dapbridge

import (
	"fmt"

	"github.com/google/go-dap"

	"github.com/sysprogs-oss/hldp/hldp"
)

// stopReasonNames maps hldp.StopReason to the DAP "reason" enum. DAP has no
// slot for BreakInRequested or SetNextStatement, so both degrade to "pause"
// and "goto" respectively, the closest DAP concepts.
var stopReasonNames = map[hldp.StopReason]string{
	hldp.InitialBreakIn:   "entry",
	hldp.Breakpoint:       "breakpoint",
	hldp.BreakInRequested: "pause",
	hldp.StepComplete:     "step",
	hldp.UnspecifiedEvent: "pause",
	hldp.Exception:        "exception",
	hldp.SetNextStatement: "goto",
}

// StopReasonToDAP translates an HLDP stop reason into a DAP stopped-event
// reason string.
func StopReasonToDAP(reason hldp.StopReason) string {
	if s, ok := stopReasonNames[reason]; ok {
		return s
	}
	return "unknown"
}

// TranslateStackFrames converts a decoded HLDP backtrace, innermost frame
// first on the wire, into DAP StackFrame values in the same order DAP
// clients expect (most recent call first). Mirrors translateStackFrames in
// the teacher, minus source-root resolution: HLDP's SourceFile is already
// whatever canonical path the breakpoint manager produced.
func TranslateStackFrames(frames []hldp.BacktraceEntry) []dap.StackFrame {
	out := make([]dap.StackFrame, 0, len(frames))
	for _, f := range frames {
		name := f.Function
		if name == "" {
			name = "(root)"
		}
		out = append(out, dap.StackFrame{
			Id:   int(f.FrameID),
			Name: name,
			Source: &dap.Source{
				Name: f.SourceFile,
				Path: f.SourceFile,
			},
			Line: int(f.Line),
		})
	}
	return out
}

// TranslateStopped builds a DAP StoppedEvent body from a decoded
// scTargetStopped. bpID is the breakpoint id carried as int_param when
// reason is hldp.Breakpoint; it is ignored otherwise (mirrors
// handler.go's sendStoppedEvent, which only sets HitBreakpointIds when an
// engine breakpoint fired).
func TranslateStopped(reason hldp.StopReason, bpID int32) dap.StoppedEventBody {
	body := dap.StoppedEventBody{
		Reason:            StopReasonToDAP(reason),
		ThreadId:          hldpThreadID,
		AllThreadsStopped: true,
	}
	if reason == hldp.Breakpoint {
		body.HitBreakpointIds = []int{int(bpID)}
	}
	return body
}

// hldpThreadID is the single DAP thread id used for the target: HLDP has no
// concept of multiple threads (spec.md describes one synchronous
// interpreter), matching the teacher's elpsThreadID convention.
const hldpThreadID = 1

// FormatBacktrace renders frames as human-readable lines, innermost first,
// for inclusion in an OutputEvent when a log viewer has no separate stack
// trace pane.
func FormatBacktrace(frames []hldp.BacktraceEntry) string {
	s := ""
	for _, f := range frames {
		fn := f.Function
		if fn == "" {
			fn = "(root)"
		}
		s += fmt.Sprintf("  #%d %s(%s) at %s:%d\n", f.FrameID, fn, f.Arguments, f.SourceFile, f.Line)
	}
	return s
}
