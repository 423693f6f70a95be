package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sysprogs-oss/hldp/interp"
)

func TestPushPopMonotonicIDs(t *testing.T) {
	s := NewStack()
	g0 := s.Push(&interp.FunctionRecord{Name: "message"}, interp.Location{File: "a", Line: 1}, nil)
	g1 := s.Push(&interp.FunctionRecord{Name: "add_executable"}, interp.Location{File: "a", Line: 2}, nil)
	require.Equal(t, 2, s.Depth())

	entries := s.Entries()
	require.Equal(t, int32(0), entries[0].ID)
	require.Equal(t, int32(1), entries[1].ID)

	g1.Close()
	g0.Close()
	require.Equal(t, 0, s.Depth())
}

func TestPopImbalancePanics(t *testing.T) {
	s := NewStack()
	g0 := s.Push(&interp.FunctionRecord{Name: "a"}, interp.Location{}, nil)
	_ = s.Push(&interp.FunctionRecord{Name: "b"}, interp.Location{}, nil)
	require.Panics(t, func() { g0.Close() })
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewStack()
	g := s.Push(&interp.FunctionRecord{Name: "a"}, interp.Location{}, nil)
	g.Close()
	require.NotPanics(t, func() { g.Close() })
}

func TestStepOutCompletionCallback(t *testing.T) {
	s := NewStack()
	var completed int32 = -99
	s.SetOnStepOutComplete(func(id int32) { completed = id })

	outer := s.Push(&interp.FunctionRecord{Name: "outer"}, interp.Location{}, nil)
	inner := s.Push(&interp.FunctionRecord{Name: "inner"}, interp.Location{}, nil)

	s.PrepareStepOut() // depth 2 -> RootScope
	require.Equal(t, RootScope, s.EndOfStepScopeID())

	inner.Close()
	require.Equal(t, int32(-99), completed, "popping the inner frame alone must not complete a root-armed step")

	outer.Close()
	require.Equal(t, int32(0), completed, "returning to the top level completes a root-armed step")
}

func TestStepOverArmsParentScope(t *testing.T) {
	s := NewStack()
	outer := s.Push(&interp.FunctionRecord{Name: "outer"}, interp.Location{}, nil)
	_ = s.Push(&interp.FunctionRecord{Name: "inner"}, interp.Location{}, nil)

	s.PrepareStepOver()
	require.Equal(t, outer.id, s.EndOfStepScopeID())
}

func TestParentScopeIDIsRootAtTopLevel(t *testing.T) {
	s := NewStack()
	require.Equal(t, RootScope, s.ParentScopeID())
	g := s.Push(&interp.FunctionRecord{Name: "a"}, interp.Location{}, nil)
	require.Equal(t, RootScope, s.ParentScopeID())
	g.Close()
}
