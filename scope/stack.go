// Package scope implements the call-stack scope tracker (spec.md §3,
// §4.4): a server-owned stack of scope entries, pushed on statement entry
// and popped on statement exit via a guard value the interpreter closes.
// There is no self-referential scope object — see spec.md §9's design
// note — the interpreter only ever holds a Guard, never a pointer back
// into the stack itself.
package scope

import (
	"fmt"
	"sync"

	"github.com/sysprogs-oss/hldp/interp"
)

// Sentinel values for EndOfStepScopeID (spec.md §3, §4.4).
const (
	NoScope   int32 = -1
	RootScope int32 = -2
)

// Entry is one call-stack frame.
type Entry struct {
	ID        int32
	Function  *interp.FunctionRecord
	Position  interp.Location
	Arguments []string
}

// Guard releases its scope entry exactly once, on Close. It satisfies
// interp.Guard.
type Guard struct {
	stack  *Stack
	id     int32
	closed bool
}

// Close pops this guard's entry. Closing twice is a no-op.
func (g *Guard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.stack.pop(g.id)
}

// Stack is the server's call stack. Scope IDs are monotonic per session
// starting at 0.
type Stack struct {
	mu                sync.Mutex
	entries           []Entry
	nextID            int32
	endOfStepScopeID  int32
	onStepOutComplete func(poppedID int32)
}

// NewStack returns an empty stack with end-of-step tracking disarmed.
func NewStack() *Stack {
	return &Stack{endOfStepScopeID: NoScope}
}

// SetOnStepOutComplete installs the callback invoked when a pop completes
// a pending step-out (spec.md §4.4: "we were stepping out of a function
// and this pop completes the step"). The debugger.Server uses this to set
// its own break_in_pending flag, since that flag is Server state, not
// scope state.
func (s *Stack) SetOnStepOutComplete(f func(poppedID int32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStepOutComplete = f
}

// EndOfStepScopeID returns the scope id whose pop will complete the
// current step, or one of the NoScope/RootScope sentinels.
func (s *Stack) EndOfStepScopeID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endOfStepScopeID
}

// SetEndOfStepScopeID arms (or disarms, via NoScope) step-out tracking.
func (s *Stack) SetEndOfStepScopeID(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endOfStepScopeID = id
}

// Depth returns the number of live scope entries.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a snapshot of the stack, innermost (top) last.
func (s *Stack) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ParentScopeID returns stack[-2].ID if at least two frames are live,
// otherwise RootScope (spec.md §4.5 step 4's parent_scope_id computation).
func (s *Stack) ParentScopeID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= 2 {
		return s.entries[len(s.entries)-2].ID
	}
	return RootScope
}

// PrepareStepOut arms end_of_step_scope_id for a csStepOut request
// (spec.md §4.6): stack[-3].id if depth ≥ 3, RootScope if depth == 2,
// otherwise the armed value is left unchanged.
func (s *Stack) PrepareStepOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	switch {
	case n >= 3:
		s.endOfStepScopeID = s.entries[n-3].ID
	case n == 2:
		s.endOfStepScopeID = RootScope
	}
}

// PrepareStepOver arms end_of_step_scope_id for a csStepOver request
// (spec.md §4.6): stack[-2].id if depth ≥ 2, else RootScope.
func (s *Stack) PrepareStepOver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if n >= 2 {
		s.endOfStepScopeID = s.entries[n-2].ID
	} else {
		s.endOfStepScopeID = RootScope
	}
}

// Push creates a new innermost scope entry for a statement about to
// execute, returning the Guard the caller must Close on statement exit.
func (s *Stack) Push(fn *interp.FunctionRecord, pos interp.Location, args []string) *Guard {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, Entry{ID: id, Function: fn, Position: pos, Arguments: args})
	s.mu.Unlock()
	return &Guard{stack: s, id: id}
}

func (s *Stack) pop(id int32) {
	s.mu.Lock()
	n := len(s.entries)
	if n == 0 {
		s.mu.Unlock()
		panic("scope: pop on empty stack")
	}
	top := s.entries[n-1]
	if top.ID != id {
		s.mu.Unlock()
		panic(fmt.Sprintf("scope: stack imbalance: popped id %d, top of stack is %d", id, top.ID))
	}
	s.entries = s.entries[:n-1]
	// A pop completes the pending step if it hits the exact armed scope
	// id, or if the step was armed for the root (RootScope) and this pop
	// just returned the stack to the top level.
	completesStep := top.ID == s.endOfStepScopeID ||
		(s.endOfStepScopeID == RootScope && len(s.entries) == 0)
	cb := s.onStepOutComplete
	s.mu.Unlock()
	if completesStep && cb != nil {
		cb(top.ID)
	}
}
