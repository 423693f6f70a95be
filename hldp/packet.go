// Package hldp implements the Sysprogs High-Level Debug Protocol wire
// format: framing, the packet type catalog, and the request/reply codec.
// It has no knowledge of the debugger state machine that drives it (see
// package debugger); this package only knows how to put bytes on, and take
// bytes off, the wire.
package hldp

// Banner is written, NUL-terminated, as the first bytes the server ever
// sends a client, before any framed packet.
const Banner = "Sysprogs High-Level Debug Protocol"

// Version is the handshake protocol version.
const Version int32 = 1

// Delimiter is the subexpression delimiter advertised during the
// handshake: an operator the client can assume never occurs in a valid
// top-level expression, used to decompose requests into sub-expression
// chains client-side.
const Delimiter = "$->"

// PacketType enumerates every HLDP packet. Names prefixed Sc are
// server-to-client; Cs are client-to-server. Order matches
// original_source/Source/Sysprogs/HLDP.h's HLDPPacketType exactly, since
// BeforeFirstBreakpointRelatedCommand/AfterLastBreakpointRelatedCommand are
// sentinels bracketing a contiguous numeric range, not just named markers.
type PacketType uint32

const (
	Invalid PacketType = iota
	ScError
	ScHandshake
	CsHandshake

	ScTargetStopped
	ScTargetRunning

	CsContinue
	CsStepIn
	CsStepOut
	CsStepOver
	CsBreakIn

	CsSetNextStatement

	CsTerminate
	CsDetach

	CsCreateExpression
	ScExpressionCreated
	CsQueryExpressionChildren
	ScExpressionChildrenQueried
	CsSetExpressionValue
	ScExpressionUpdated

	BeforeFirstBreakpointRelatedCommand
	CsCreateBreakpoint
	CsCreateFunctionBreakpoint
	CsCreateDomainSpecificBreakpoint
	ScBreakpointCreated
	CsDeleteBreakpoint
	CsUpdateBreakpoint
	CsQueryBreakpoint
	ScBreakpointQueried
	ScBreakpointUpdated
	AfterLastBreakpointRelatedCommand

	ScDebugMessage
	ScTargetExited
)

// IsBreakpointRelated reports whether t falls within the breakpoint
// management range, which may be handled both while the target is running
// and while it is stopped.
func (t PacketType) IsBreakpointRelated() bool {
	return t > BeforeFirstBreakpointRelatedCommand && t < AfterLastBreakpointRelatedCommand
}

func (t PacketType) String() string {
	if s, ok := packetTypeNames[t]; ok {
		return s
	}
	return "PacketType(unknown)"
}

var packetTypeNames = map[PacketType]string{
	Invalid:                              "Invalid",
	ScError:                              "scError",
	ScHandshake:                          "scHandshake",
	CsHandshake:                          "csHandshake",
	ScTargetStopped:                      "scTargetStopped",
	ScTargetRunning:                      "scTargetRunning",
	CsContinue:                           "csContinue",
	CsStepIn:                             "csStepIn",
	CsStepOut:                            "csStepOut",
	CsStepOver:                           "csStepOver",
	CsBreakIn:                            "csBreakIn",
	CsSetNextStatement:                   "csSetNextStatement",
	CsTerminate:                          "csTerminate",
	CsDetach:                             "csDetach",
	CsCreateExpression:                   "csCreateExpression",
	ScExpressionCreated:                  "scExpressionCreated",
	CsQueryExpressionChildren:            "csQueryExpressionChildren",
	ScExpressionChildrenQueried:          "scExpressionChildrenQueried",
	CsSetExpressionValue:                 "csSetExpressionValue",
	ScExpressionUpdated:                  "scExpressionUpdated",
	BeforeFirstBreakpointRelatedCommand:  "BeforeFirstBreakpointRelatedCommand",
	CsCreateBreakpoint:                   "csCreateBreakpoint",
	CsCreateFunctionBreakpoint:           "csCreateFunctionBreakpoint",
	CsCreateDomainSpecificBreakpoint:     "csCreateDomainSpecificBreakpoint",
	ScBreakpointCreated:                  "scBreakpointCreated",
	CsDeleteBreakpoint:                   "csDeleteBreakpoint",
	CsUpdateBreakpoint:                   "csUpdateBreakpoint",
	CsQueryBreakpoint:                    "csQueryBreakpoint",
	ScBreakpointQueried:                  "scBreakpointQueried",
	ScBreakpointUpdated:                  "scBreakpointUpdated",
	AfterLastBreakpointRelatedCommand:    "AfterLastBreakpointRelatedCommand",
	ScDebugMessage:                       "scDebugMessage",
	ScTargetExited:                       "scTargetExited",
}

// StopReason classifies why scTargetStopped was sent.
type StopReason int32

const (
	InitialBreakIn StopReason = iota
	Breakpoint
	BreakInRequested
	StepComplete
	UnspecifiedEvent
	Exception
	SetNextStatement
)

func (r StopReason) String() string {
	if s, ok := stopReasonStrings[r]; ok {
		return s
	}
	return "StopReason(unknown)"
}

var stopReasonStrings = map[StopReason]string{
	InitialBreakIn:   "InitialBreakIn",
	Breakpoint:       "Breakpoint",
	BreakInRequested: "BreakInRequested",
	StepComplete:     "StepComplete",
	UnspecifiedEvent: "UnspecifiedEvent",
	Exception:        "Exception",
	SetNextStatement: "SetNextStatement",
}

// BreakpointField identifies the mutable field in csUpdateBreakpoint. The
// wire format reserves room for future fields; IsEnabled is the only one
// implemented today (spec.md §6, SUPPLEMENTED FEATURES #1 in
// SPEC_FULL.md).
type BreakpointField int32

const (
	FieldIsEnabled BreakpointField = iota
)

// DomainSpecificKind identifies the variant carried by
// csCreateDomainSpecificBreakpoint.
type DomainSpecificKind int32

const (
	VariableAccessed DomainSpecificKind = iota
	VariableUpdated
	MessageSent
	TargetCreated
)

// Header is the fixed 8-byte frame header preceding every packet's
// payload.
type Header struct {
	Type        uint32
	PayloadSize uint32
}

// BacktraceEntry is one frame of a serialized call stack.
type BacktraceEntry struct {
	FrameID    int32
	Function   string
	Arguments  string
	SourceFile string
	Line       int32
}

// ExpressionDescriptor is the wire shape shared by scExpressionCreated and
// each element of scExpressionChildrenQueried's array.
type ExpressionDescriptor struct {
	ID         int32
	Name       string
	Type       string
	Value      string
	Flags      int32
	ChildCount int32
}
