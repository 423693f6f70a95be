package breakpoint

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempScript(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/CMakeLists.txt"
	require.NoError(t, os.WriteFile(path, []byte("message(STATUS hi)\n"), 0o644))
	return path
}

func TestLocationBreakpointLifecycle(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	file := tempScript(t)

	id := m.CreateLocationBreakpoint(file, 1)
	require.NotEqual(t, InvalidID, id)

	got := m.TryGetAtLocation(file, 1)
	require.Equal(t, id, got)

	bp, ok := m.TryLookup(id)
	require.True(t, ok)
	require.Equal(t, KindLocation, bp.Kind)

	m.Delete(id)
	require.Equal(t, InvalidID, m.TryGetAtLocation(file, 1))
	_, ok = m.TryLookup(id)
	require.False(t, ok)
}

func TestLocationBreakpointOnMissingFileIsInvalid(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	id := m.CreateLocationBreakpoint("/no/such/file.txt", 10)
	require.Equal(t, InvalidID, id)
	_, ok := m.TryLookup(id)
	require.False(t, ok)
}

func TestFunctionBreakpointCaseInsensitive(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	id := m.CreateFunctionBreakpoint("Add_Executable")
	require.Equal(t, id, m.TryGetForFunction("ADD_EXECUTABLE"))
	require.Equal(t, id, m.TryGetForFunction("add_executable"))
}

func TestDomainSpecificBreakpointPopulatesWatchedNames(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	require.False(t, m.IsWatched("X"))
	m.CreateDomainSpecificBreakpoint(VariableUpdatedExt{Name: "X"})
	require.True(t, m.IsWatched("x"))

	// Deletion does not prune the watched-name set (spec.md §4.8).
	id := m.FindEnabledDomainSpecific(func(e Extension) bool {
		_, ok := e.(VariableUpdatedExt)
		return ok
	})
	m.Delete(id)
	require.True(t, m.IsWatched("X"))
}

func TestFindEnabledDomainSpecificSkipsDisabled(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	id := m.CreateDomainSpecificBreakpoint(MessageSentExt{Substring: "error"})
	m.SetEnabled(id, false)
	found := m.FindEnabledDomainSpecific(func(e Extension) bool {
		ms, ok := e.(MessageSentExt)
		return ok && ms.Matches("fatal error occurred")
	})
	require.Equal(t, InvalidID, found)

	m.SetEnabled(id, true)
	found = m.FindEnabledDomainSpecific(func(e Extension) bool {
		ms, ok := e.(MessageSentExt)
		return ok && ms.Matches("fatal error occurred")
	})
	require.Equal(t, id, found)
}

// TestIndexConsistency is the §8 property: the by-id map's key set equals
// the union of ids referenced by the by-location and by-function indexes,
// for any sequence of create/delete operations (domain-specific
// breakpoints are by-id only and excluded per spec.md §8).
func TestIndexConsistency(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()
	fileA := tempScript(t)
	fileB := tempScript(t)

	var ids []int32
	ids = append(ids, m.CreateLocationBreakpoint(fileA, 1))
	ids = append(ids, m.CreateLocationBreakpoint(fileB, 2))
	ids = append(ids, m.CreateFunctionBreakpoint("foo"))
	ids = append(ids, m.CreateFunctionBreakpoint("bar"))

	m.Delete(ids[1])

	referenced := map[int32]bool{}
	for _, loc := range []struct {
		file string
		line int32
	}{{fileA, 1}, {fileB, 2}} {
		if id := m.TryGetAtLocation(loc.file, loc.line); id != InvalidID {
			referenced[id] = true
		}
	}
	for _, name := range []string{"foo", "bar"} {
		if id := m.TryGetForFunction(name); id != InvalidID {
			referenced[id] = true
		}
	}

	for id := range referenced {
		_, ok := m.TryLookup(id)
		require.True(t, ok, "id %d referenced by a secondary index must exist in by-id", id)
	}
	for _, id := range ids {
		if id == ids[1] {
			continue
		}
		require.True(t, referenced[id], "surviving id %d must be reachable from a secondary index", id)
	}
}
