// Package debugger implements the HLDP debugger state machine (spec.md
// §4.4-§4.8): the server-side interp.Hook that decides, on every
// statement, whether to stop the target and serve requests, and the
// stop-and-serve loop that blocks the interpreter until a flow-control
// verb resumes it.
package debugger

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sysprogs-oss/hldp/breakpoint"
	"github.com/sysprogs-oss/hldp/expr"
	"github.com/sysprogs-oss/hldp/hldp"
	"github.com/sysprogs-oss/hldp/interp"
	"github.com/sysprogs-oss/hldp/scope"
	"github.com/sysprogs-oss/hldp/telemetry"
)

// Server is the debugger session for one connected client. It implements
// interp.Hook and owns every piece of server-side state the state
// machine reads or mutates: the scope stack, the breakpoint manager, the
// expression cache, and the handful of scalar flags (break_in_pending,
// end_of_step_scope_id lives inside stack, next_one_based_line_to_execute,
// events_reported, detached, terminated) that spec.md §4.5-§4.6 name
// directly.
type Server struct {
	conn        *hldp.Conn
	log         *logrus.Entry
	breakpoints *breakpoint.Manager
	stack       *scope.Stack
	cache       *expr.Cache
	resolver    expr.Resolver
	runtime     *interp.Runtime

	breakInPending   bool
	nextOneBasedLine int
	eventsReported   bool
	detached         bool
	terminated       bool

	// FatalHandler is invoked, non-blocking, on each transport failure
	// (spec.md §7 class 1). It is the debugger's side of "signal the
	// interpreter's fatal-error flag" without the interp package needing
	// to know anything about HLDP. csTerminate does not invoke it; it sets
	// terminated, which AdjustNextStatement turns into ending the run.
	FatalHandler func(error)

	// Annotator, if set, wraps each stop-and-serve pause and each request
	// handled within it in a span. Nil is the common case: tracing is
	// opt-in, wired by cmd/hldpd's config.
	Annotator telemetry.Annotator
}

// NewServer wires a debugger session onto an already-handshaken
// connection and installs itself as rt's Hook. rt must not already have a
// Hook attached.
func NewServer(conn *hldp.Conn, rt *interp.Runtime, bp *breakpoint.Manager, log *logrus.Entry) *Server {
	s := &Server{
		conn:        conn,
		runtime:     rt,
		breakpoints: bp,
		stack:       scope.NewStack(),
		cache:       expr.NewCache(),
		log:         log,
		// The original HLDPServer constructor starts with break_in_pending
		// true, so the very first statement always stops, not just
		// statements reached after a client-initiated csBreakIn. That stop
		// reports InitialBreakIn (spec.md §8 scenario 1) unless a
		// breakpoint on the statement supplies the reason.
		breakInPending: true,
	}
	s.resolver = runtimeResolver{rt: rt}
	s.stack.SetOnStepOutComplete(func(int32) {
		s.breakInPending = true
	})
	rt.Hook = s
	return s
}

// ServeOption configures optional Server fields Serve's signature would
// otherwise have to grow a parameter for every time one is added.
type ServeOption func(*Server)

// WithAnnotator wires a telemetry.Annotator into the session Serve
// creates. Nil (the default) leaves tracing disabled.
func WithAnnotator(a telemetry.Annotator) ServeOption {
	return func(s *Server) {
		s.Annotator = a
	}
}

// Serve performs the server side of the handshake, then runs program to
// completion under the debugger's control, finally reporting the session
// outcome via scTargetExited (spec.md §6, §7's "destructor-time attempts
// ... are best-effort").
func Serve(nc net.Conn, program []interp.Statement, rt *interp.Runtime, bp *breakpoint.Manager, log *logrus.Entry, opts ...ServeOption) error {
	conn := hldp.NewConn(nc, log)
	if err := hldp.ServerHandshake(conn); err != nil {
		return err
	}
	srv := NewServer(conn, rt, bp, log)
	for _, opt := range opts {
		opt(srv)
	}
	runErr := rt.Run(program)
	_ = conn.WriteFrame(hldp.ScTargetExited, hldp.NewReplyBuilder().AppendInt32(0).Bytes())
	if srv.terminated {
		return nil
	}
	return runErr
}

func (s *Server) fatal(err error) {
	s.terminated = true
	if s.log != nil {
		s.log.WithError(err).Error("hldp: transport failure")
	}
	if s.FatalHandler != nil {
		s.FatalHandler(err)
	}
}

// noGuard is returned when the session is detached and no scope should be
// pushed at all (spec.md §4.5 step 1).
type noGuard struct{}

func (noGuard) Close() {}

// BeforeStatement implements interp.Hook, executing spec.md §4.5's
// eight-step stop-decision algorithm.
func (s *Server) BeforeStatement(fn *interp.FunctionRecord, pos interp.Location, args []string) (interp.Guard, bool) {
	// Step 1.
	if s.detached {
		return noGuard{}, false
	}
	// Step 2.
	guard := s.stack.Push(fn, pos, args)

	reason := hldp.UnspecifiedEvent
	var intParam int32
	var stringParam string

	// Step 3: location breakpoint, else function breakpoint.
	if id := s.breakpoints.TryGetAtLocation(pos.File, int32(pos.Line)); id != breakpoint.InvalidID {
		if bp, ok := s.breakpoints.TryLookup(id); ok && bp.Enabled {
			s.breakInPending = true
			reason = hldp.Breakpoint
			intParam = id
		}
	}
	if reason == hldp.UnspecifiedEvent {
		if id := s.breakpoints.TryGetForFunction(fn.OriginalName()); id != breakpoint.InvalidID {
			if bp, ok := s.breakpoints.TryLookup(id); ok && bp.Enabled {
				s.breakInPending = true
				reason = hldp.Breakpoint
				intParam = id
			}
		}
	}

	// Step 4: step completion.
	if s.stack.ParentScopeID() == s.stack.EndOfStepScopeID() {
		s.breakInPending = true
		if reason == hldp.UnspecifiedEvent {
			reason = hldp.StepComplete
		}
	}

	// Step 5.
	if !s.breakInPending {
		if !s.conn.HasIncomingData() {
			return guard, false
		}
		t, payload, err := s.conn.ReadFrame()
		if err != nil {
			s.fatal(err)
			return guard, false
		}
		switch {
		case t == hldp.Invalid:
			return guard, false
		case t == hldp.CsBreakIn:
			s.breakInPending = true
			reason = hldp.BreakInRequested
		case t.IsBreakpointRelated():
			s.handleBreakpointRequest(t, payload)
			return guard, false
		default:
			s.sendError(fmt.Sprintf("hldp: unexpected request %s while running", t))
			return guard, false
		}
	}

	// Step 6.
	if s.nextOneBasedLine != 0 && reason == hldp.UnspecifiedEvent {
		reason = hldp.SetNextStatement
	}
	// Step 7.
	if !s.eventsReported && reason == hldp.UnspecifiedEvent {
		reason = hldp.InitialBreakIn
		s.eventsReported = true
	}

	// Step 8.
	skip := s.stopAndServe(reason, intParam, stringParam)
	return guard, skip
}

// OnMessage implements interp.Hook (spec.md §4.8).
func (s *Server) OnMessage(kind interp.MessageKind, text string) {
	payload := hldp.NewReplyBuilder().AppendInt32(0).AppendString(text).Bytes()
	if err := s.conn.WriteFrame(hldp.ScDebugMessage, payload); err != nil {
		s.fatal(err)
		return
	}
	if kind.IsFatalClass() {
		s.stopAndServe(hldp.Exception, 0, "")
		return
	}
	id := s.breakpoints.FindEnabledDomainSpecific(func(ext breakpoint.Extension) bool {
		me, ok := ext.(breakpoint.MessageSentExt)
		return ok && me.Matches(text)
	})
	if id != breakpoint.InvalidID {
		s.stopAndServe(hldp.Breakpoint, id, "")
	}
}

// OnVariableAccess implements interp.Hook (spec.md §4.8).
func (s *Server) OnVariableAccess(name string, access interp.AccessKind, _ string) {
	if !s.breakpoints.IsWatched(name) {
		return
	}
	write := access == interp.AccessWrite
	id := s.breakpoints.FindEnabledDomainSpecific(func(ext breakpoint.Extension) bool {
		switch e := ext.(type) {
		case breakpoint.VariableAccessedExt:
			return e.MatchesAccess(name, write)
		case breakpoint.VariableUpdatedExt:
			return e.MatchesAccess(name, write)
		default:
			return false
		}
	})
	if id != breakpoint.InvalidID {
		s.stopAndServe(hldp.Breakpoint, id, "")
	}
}

// OnTargetCreated implements interp.Hook (spec.md §4.8).
func (s *Server) OnTargetCreated(_ interp.TargetType, name string) {
	id := s.breakpoints.FindEnabledDomainSpecific(func(ext breakpoint.Extension) bool {
		tc, ok := ext.(breakpoint.TargetCreatedExt)
		return ok && tc.Matches(name)
	})
	if id != breakpoint.InvalidID {
		s.stopAndServe(hldp.Breakpoint, id, "")
	}
}

// AdjustNextStatement implements interp.Hook. terminated forces the
// enclosing statement loop to end (csTerminate's "fatal abort to the
// interpreter", spec.md §4.6, without introducing a second Hook method).
// A pending next_one_based_line_to_execute redirects idx to the matching
// statement; the flag itself is left set for BeforeStatement's step 6 to
// observe, and is cleared by stopAndServe on entry (spec.md §4.6).
func (s *Server) AdjustNextStatement(stmts []interp.Statement, idx *int) {
	if s.terminated {
		*idx = len(stmts)
		return
	}
	if s.nextOneBasedLine == 0 {
		return
	}
	for i, st := range stmts {
		if st.Source.Line == s.nextOneBasedLine {
			*idx = i
			return
		}
	}
}

func (s *Server) sendError(details string) {
	if err := s.conn.WriteFrame(hldp.ScError, hldp.NewReplyBuilder().AppendString(details).Bytes()); err != nil {
		s.fatal(err)
	}
}

func (s *Server) sendRunning() {
	if err := s.conn.WriteFrame(hldp.ScTargetRunning, nil); err != nil {
		s.fatal(err)
	}
}
