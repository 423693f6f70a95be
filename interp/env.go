package interp

import "strings"

// frame is one level of variable scoping: the global frame, or one pushed
// per user-function invocation.
type frame struct {
	values map[string]string
	names  map[string]string // lower(name) -> display name
}

func newFrame() *frame {
	return &frame{values: make(map[string]string), names: make(map[string]string)}
}

// VariableStore is the script's variable table. Names are matched
// case-insensitively, matching CMake variable semantics, but the first
// spelling used to set a name is preserved for display. A function call
// pushes a new frame so its parameters and local sets shadow, without
// clobbering, the caller's variables; reads fall through to outer frames.
type VariableStore struct {
	frames []*frame
}

// NewVariableStore returns an empty variable store with just a global
// frame.
func NewVariableStore() *VariableStore {
	return &VariableStore{frames: []*frame{newFrame()}}
}

// PushScope opens a new, innermost frame, used when entering a user-defined
// function body.
func (s *VariableStore) PushScope() {
	s.frames = append(s.frames, newFrame())
}

// PopScope discards the innermost frame. It is a no-op on the global frame
// so a mismatched Pop can never corrupt the global scope.
func (s *VariableStore) PopScope() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Get returns the value bound to name, searching from the innermost frame
// outward, and whether it is set anywhere in the chain.
func (s *VariableStore) Get(name string) (string, bool) {
	key := strings.ToLower(name)
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].values[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Set binds name to value in the innermost frame, creating the binding if
// it did not already exist there. Returns true if this was a write to a
// variable already set somewhere in the chain.
func (s *VariableStore) Set(name, value string) (wasSet bool) {
	_, wasSet = s.Get(name)
	key := strings.ToLower(name)
	top := s.frames[len(s.frames)-1]
	top.values[key] = value
	top.names[key] = name
	return wasSet
}

// Unset removes a binding from the innermost frame that holds it.
func (s *VariableStore) Unset(name string) {
	key := strings.ToLower(name)
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].values[key]; ok {
			delete(s.frames[i].values, key)
			delete(s.frames[i].names, key)
			return
		}
	}
}

// Names returns the display names of every variable visible in the current
// scope chain, in no particular order.
func (s *VariableStore) Names() []string {
	seen := make(map[string]string)
	for _, f := range s.frames {
		for k, n := range f.names {
			seen[k] = n
		}
	}
	out := make([]string, 0, len(seen))
	for _, n := range seen {
		out = append(out, n)
	}
	return out
}

// Cache models the persistent build cache (CMakeCache.txt in the original).
// It is a flat string->string store independent of variable scoping.
type Cache struct {
	entries map[string]string
	order   []string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns a cache entry's value and whether it exists.
func (c *Cache) Get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Set creates or overwrites a cache entry.
func (c *Cache) Set(key, value string) {
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = value
}

// Keys returns cache keys in insertion order.
func (c *Cache) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// TargetType distinguishes the build products a script can declare.
type TargetType int

const (
	TargetExecutable TargetType = iota
	TargetStaticLibrary
	TargetSharedLibrary
	TargetCustom
)

// Target is a build product created by a command such as add_executable.
type Target struct {
	Name       string
	Type       TargetType
	Properties map[string]string
}

// TargetRegistry tracks targets declared during script evaluation.
type TargetRegistry struct {
	byName map[string]*Target
	order  []string
}

// NewTargetRegistry returns an empty registry.
func NewTargetRegistry() *TargetRegistry {
	return &TargetRegistry{byName: make(map[string]*Target)}
}

// Create registers a new target, returning it. Re-declaring an existing
// name overwrites its type but preserves properties.
func (r *TargetRegistry) Create(name string, typ TargetType) *Target {
	if t, ok := r.byName[name]; ok {
		t.Type = typ
		return t
	}
	t := &Target{Name: name, Type: typ, Properties: make(map[string]string)}
	r.byName[name] = t
	r.order = append(r.order, name)
	return t
}

// Get looks up a target by name.
func (r *TargetRegistry) Get(name string) (*Target, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns target names in declaration order.
func (r *TargetRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
