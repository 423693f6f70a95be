package debugger

import (
	"fmt"
	"strings"

	"github.com/sysprogs-oss/hldp/breakpoint"
	"github.com/sysprogs-oss/hldp/hldp"
	"github.com/sysprogs-oss/hldp/scope"
)

// stopAndServe implements spec.md §4.6: report the stop, then block
// serving requests until a flow-control verb resumes the target. It
// returns skip_this_instruction for the statement BeforeStatement is
// currently evaluating.
func (s *Server) stopAndServe(reason hldp.StopReason, intParam int32, stringParam string) bool {
	s.breakInPending = false
	s.stack.SetEndOfStepScopeID(scope.NoScope)
	s.nextOneBasedLine = 0

	if err := s.sendStopped(reason, intParam, stringParam); err != nil {
		s.fatal(err)
		return false
	}

	if s.Annotator != nil {
		defer s.Annotator.StartPaused(reason.String(), intParam)()
	}

	skip := false
resumeLoop:
	for {
		t, payload, err := s.conn.ReadFrame()
		if err != nil {
			s.fatal(err)
			break resumeLoop
		}
		// Each request gets its own span, entered and left within one
		// iteration regardless of which case below resumes the loop.
		resume := func() bool {
			if s.Annotator != nil {
				defer s.Annotator.StartRequest(t.String())()
			}
			switch t {
			case hldp.CsBreakIn:
				// Already stopped. spec.md §9 records this as an open TODO
				// to resend the backtrace; we only guarantee no new stop
				// reason is reported.
			case hldp.CsContinue:
				s.stack.SetEndOfStepScopeID(scope.NoScope)
				s.sendRunning()
				return true
			case hldp.CsStepIn:
				s.breakInPending = true
				s.sendRunning()
				return true
			case hldp.CsStepOut:
				s.stack.PrepareStepOut()
				s.sendRunning()
				return true
			case hldp.CsStepOver:
				s.stack.PrepareStepOver()
				s.sendRunning()
				return true
			case hldp.CsSetNextStatement:
				if s.handleSetNextStatement(payload) {
					skip = true
					s.sendRunning()
					return true
				}
			case hldp.CsDetach:
				s.detached = true
				s.sendRunning()
				return true
			case hldp.CsTerminate:
				s.terminated = true
				return true
			case hldp.CsCreateExpression:
				s.handleCreateExpression(payload)
			case hldp.CsQueryExpressionChildren:
				s.handleQueryExpressionChildren(payload)
			case hldp.CsSetExpressionValue:
				s.handleSetExpressionValue(payload)
			default:
				if t.IsBreakpointRelated() {
					s.handleBreakpointRequest(t, payload)
				} else {
					s.sendError(fmt.Sprintf("hldp: unexpected request %s while stopped", t))
				}
			}
			return false
		}()
		if resume {
			break resumeLoop
		}
	}
	// Cleared exactly once, on the way out of the loop, for every exit
	// path (resume, detach, terminate, or transport failure). The
	// original left this call in code the resume paths' early returns
	// could never reach.
	s.cache.Clear()
	return skip
}

func (s *Server) sendStopped(reason hldp.StopReason, intParam int32, stringParam string) error {
	frames := s.stack.Entries()
	b := hldp.NewReplyBuilder().
		AppendInt32(int32(reason)).
		AppendInt32(intParam).
		AppendString(stringParam)
	countSlot := b.ReserveInt32()
	for i := len(frames) - 1; i >= 0; i-- {
		var fn, argList string
		if i > 0 {
			fn = frames[i-1].Function.OriginalName()
			argList = strings.Join(frames[i-1].Arguments, ",")
		}
		b.AppendBacktraceEntry(hldp.BacktraceEntry{
			FrameID:    int32(i),
			Function:   fn,
			Arguments:  argList,
			SourceFile: frames[i].Position.File,
			Line:       int32(frames[i].Position.Line),
		})
	}
	b.Patch(countSlot, int32(len(frames)))
	return s.conn.WriteFrame(hldp.ScTargetStopped, b.Bytes())
}

// handleSetNextStatement validates and applies csSetNextStatement,
// reporting its own error on failure. spec.md §4.6 requires the target
// file's canonical path to match the current top frame's, case-
// insensitively; a different file is rejected without state change.
func (s *Server) handleSetNextStatement(payload []byte) bool {
	r := hldp.NewRequestReader(payload)
	file, err := r.ReadString()
	if err != nil {
		s.sendError(err.Error())
		return false
	}
	line, err := r.ReadInt32()
	if err != nil {
		s.sendError(err.Error())
		return false
	}
	frames := s.stack.Entries()
	if len(frames) == 0 {
		s.sendError("hldp: no active frame to redirect")
		return false
	}
	top := frames[len(frames)-1]
	targetCanon, ok := s.breakpoints.Canonicalize(file)
	if !ok {
		s.sendError(fmt.Sprintf("hldp: cannot resolve %q", file))
		return false
	}
	currentCanon, ok := s.breakpoints.Canonicalize(top.Position.File)
	if !ok || !strings.EqualFold(targetCanon, currentCanon) {
		s.sendError("hldp: csSetNextStatement targets a different file")
		return false
	}
	s.nextOneBasedLine = int(line)
	s.breakInPending = true
	return true
}

func (s *Server) handleBreakpointRequest(t hldp.PacketType, payload []byte) {
	r := hldp.NewRequestReader(payload)
	switch t {
	case hldp.CsCreateBreakpoint:
		file, err := r.ReadString()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		line, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		id := s.breakpoints.CreateLocationBreakpoint(file, line)
		if id == breakpoint.InvalidID {
			s.sendError(fmt.Sprintf("hldp: cannot resolve %q", file))
			return
		}
		s.sendBreakpointCreated(id)

	case hldp.CsCreateFunctionBreakpoint:
		name, err := r.ReadString()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.sendBreakpointCreated(s.breakpoints.CreateFunctionBreakpoint(name))

	case hldp.CsCreateDomainSpecificBreakpoint:
		kind, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		stringArg, err := r.ReadString()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		if _, err := r.ReadInt32(); err != nil { // reserved
			s.sendError(err.Error())
			return
		}
		ext, err := newExtension(hldp.DomainSpecificKind(kind), stringArg)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.sendBreakpointCreated(s.breakpoints.CreateDomainSpecificBreakpoint(ext))

	case hldp.CsDeleteBreakpoint:
		id, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.breakpoints.Delete(id)
		s.sendBreakpointUpdated()

	case hldp.CsUpdateBreakpoint:
		id, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		field, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		int1, err := r.ReadInt32()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		if _, err := r.ReadInt32(); err != nil { // int2, unused by any field today
			s.sendError(err.Error())
			return
		}
		if _, err := r.ReadString(); err != nil { // string, unused by any field today
			s.sendError(err.Error())
			return
		}
		if hldp.BreakpointField(field) != hldp.FieldIsEnabled {
			s.sendError(fmt.Sprintf("hldp: unsupported breakpoint field %d", field))
			return
		}
		if !s.breakpoints.SetEnabled(id, int1 != 0) {
			s.sendError(fmt.Sprintf("hldp: unknown breakpoint id %d", id))
			return
		}
		s.sendBreakpointUpdated()

	case hldp.CsQueryBreakpoint:
		// The reply shape is left TBD by spec.md §6; no client in this
		// codebase issues it.
		s.sendError("hldp: csQueryBreakpoint is not implemented")

	default:
		s.sendError(fmt.Sprintf("hldp: unhandled breakpoint request %s", t))
	}
}

func (s *Server) sendBreakpointCreated(id int32) {
	if err := s.conn.WriteFrame(hldp.ScBreakpointCreated, hldp.NewReplyBuilder().AppendInt32(id).Bytes()); err != nil {
		s.fatal(err)
	}
}

func (s *Server) sendBreakpointUpdated() {
	if err := s.conn.WriteFrame(hldp.ScBreakpointUpdated, nil); err != nil {
		s.fatal(err)
	}
}

func newExtension(kind hldp.DomainSpecificKind, arg string) (breakpoint.Extension, error) {
	switch kind {
	case hldp.VariableAccessed:
		return breakpoint.VariableAccessedExt{Name: arg}, nil
	case hldp.VariableUpdated:
		return breakpoint.VariableUpdatedExt{Name: arg}, nil
	case hldp.MessageSent:
		return breakpoint.MessageSentExt{Substring: arg}, nil
	case hldp.TargetCreated:
		return breakpoint.TargetCreatedExt{Name: arg}, nil
	default:
		return nil, fmt.Errorf("hldp: unknown domain-specific breakpoint kind %d", kind)
	}
}
