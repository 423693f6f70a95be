package expr

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sysprogs-oss/hldp/interp"
)

type fakeResolver struct {
	vars    map[string]string
	targets map[string]*interp.Target
	cache   map[string]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{vars: map[string]string{}, targets: map[string]*interp.Target{}, cache: map[string]string{}}
}

func (f *fakeResolver) LookupVariable(name string) (string, bool) { v, ok := f.vars[name]; return v, ok }
func (f *fakeResolver) SetVariable(name, value string) bool {
	_, ok := f.vars[name]
	f.vars[name] = value
	return ok
}
func (f *fakeResolver) LookupTarget(name string) (*interp.Target, bool) { t, ok := f.targets[name]; return t, ok }
func (f *fakeResolver) LookupCache(key string) (string, bool)          { v, ok := f.cache[key]; return v, ok }

func TestCreateTopLevelLookupOrder(t *testing.T) {
	r := newFakeResolver()
	r.vars["X"] = "script-value"
	r.targets["X"] = &interp.Target{Name: "X"}
	r.cache["X"] = "cache-value"

	n, err := CreateTopLevel(r, "X")
	require.NoError(t, err)
	require.Equal(t, KindScriptVariable, n.Kind, "script variable must win over target and cache")

	delete(r.vars, "X")
	n, err = CreateTopLevel(r, "X")
	require.NoError(t, err)
	require.Equal(t, KindTarget, n.Kind, "target must win over cache once no variable exists")

	delete(r.targets, "X")
	n, err = CreateTopLevel(r, "X")
	require.NoError(t, err)
	require.Equal(t, KindCacheEntry, n.Kind)

	delete(r.cache, "X")
	_, err = CreateTopLevel(r, "X")
	require.Error(t, err)
}

func TestEnvironmentMeta(t *testing.T) {
	r := newFakeResolver()
	n, err := CreateTopLevel(r, "ENV")
	require.NoError(t, err)
	require.Equal(t, KindEnvironmentMeta, n.Kind)
	require.Equal(t, Unknown, n.ChildCountOrSentinel)

	children, err := n.CreateChildren()
	require.NoError(t, err)
	require.NotEmpty(t, children)
	for _, c := range children {
		require.Equal(t, KindEnvironmentVariable, c.Kind)
	}
}

func TestEnvironmentVariableRoundTrip(t *testing.T) {
	require.NoError(t, os.Setenv("HLDP_EXPR_TEST", "before"))
	defer os.Unsetenv("HLDP_EXPR_TEST")

	r := newFakeResolver()
	n, err := CreateTopLevel(r, "ENV{HLDP_EXPR_TEST}")
	require.NoError(t, err)
	require.Equal(t, KindEnvironmentVariable, n.Kind)
	require.Equal(t, "before", n.Value)

	require.NoError(t, n.UpdateValue("after"))
	require.Equal(t, "after", n.Value)
	require.Equal(t, "after", os.Getenv("HLDP_EXPR_TEST"))
}

func TestScriptVariableUpdate(t *testing.T) {
	r := newFakeResolver()
	r.vars["X"] = "1"
	n, err := CreateTopLevel(r, "X")
	require.NoError(t, err)
	require.NoError(t, n.UpdateValue("2"))
	require.Equal(t, "2", r.vars["X"])
}

func TestTargetChildrenAndNoUpdate(t *testing.T) {
	r := newFakeResolver()
	r.targets["app"] = &interp.Target{Name: "app", Properties: map[string]string{"OUTPUT_NAME": "app.exe"}}
	n, err := CreateTopLevel(r, "app")
	require.NoError(t, err)
	require.Equal(t, KindTarget, n.Kind)

	children, err := n.CreateChildren()
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "OUTPUT_NAME", children[0].Name)
	require.Equal(t, "app.exe", children[0].Value)

	require.Error(t, n.UpdateValue("nope"))
}

func TestCacheClearInvalidatesIDsButKeepsCounterMonotonic(t *testing.T) {
	c := NewCache()
	n1 := &Node{Name: "a"}
	id1 := c.Register(n1)
	c.Clear()
	_, ok := c.Get(id1)
	require.False(t, ok)

	n2 := &Node{Name: "b"}
	id2 := c.Register(n2)
	require.Greater(t, id2, id1)
}
