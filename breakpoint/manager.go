package breakpoint

import (
	"sync"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"github.com/sirupsen/logrus"
)

// Manager is the breakpoint manager (spec.md §3, §4.3): three indexes that
// must stay consistent — an owning by-id map, a by-location index, and a
// by-function-name index — plus the watched-variable-name set that the
// event hooks consult.
type Manager struct {
	mu     sync.Mutex
	log    *logrus.Entry
	canon  *pathCanonicalizer
	nextID int32

	byID       map[int32]*Breakpoint
	byLocation map[CanonicalLocation]*treeset.Set // values are int ids
	byFunction map[string]*treeset.Set            // keyed by lower(name), values are int ids

	watchedNames map[string]struct{} // lower(name) -> present
}

// NewManager returns an empty breakpoint manager. log may be nil.
func NewManager(log *logrus.Entry) *Manager {
	return &Manager{
		log:          log,
		canon:        newPathCanonicalizer(log),
		nextID:       1,
		byID:         make(map[int32]*Breakpoint),
		byLocation:   make(map[CanonicalLocation]*treeset.Set),
		byFunction:   make(map[string]*treeset.Set),
		watchedNames: make(map[string]struct{}),
	}
}

// Close releases the canonical-path cache's fsnotify watcher.
func (m *Manager) Close() error {
	return m.canon.Close()
}

// CreateLocationBreakpoint canonicalizes file (memoized; a cache miss
// performs a real-path lookup) and registers a new breakpoint there. A
// file with no canonical path (does not exist) yields InvalidID and is not
// inserted (spec.md §4.3 edge case).
func (m *Manager) CreateLocationBreakpoint(file string, line int32) int32 {
	path, ok := m.canon.Canonicalize(file)
	if !ok {
		return InvalidID
	}
	loc := CanonicalLocation{Path: path, Line: line}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	bp := &Breakpoint{ID: id, Kind: KindLocation, Enabled: true, Location: loc}
	m.byID[id] = bp
	set, ok := m.byLocation[loc]
	if !ok {
		set = treeset.NewWith(utils.IntComparator)
		m.byLocation[loc] = set
	}
	set.Add(int(id))
	return id
}

// CreateFunctionBreakpoint always succeeds; name is stored case-insensitively.
func (m *Manager) CreateFunctionBreakpoint(name string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	bp := &Breakpoint{ID: id, Kind: KindFunction, Enabled: true, Function: CaseInsensitiveName{Name: name}}
	m.byID[id] = bp
	key := bp.Function.key()
	set, ok := m.byFunction[key]
	if !ok {
		set = treeset.NewWith(utils.IntComparator)
		m.byFunction[key] = set
	}
	set.Add(int(id))
	return id
}

// CreateDomainSpecificBreakpoint always succeeds. If ext watches a
// variable name, that name is added to the watched-name set, which is
// never pruned on deletion (spec.md §4.8, conservative over-approximation).
func (m *Manager) CreateDomainSpecificBreakpoint(ext Extension) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	bp := &Breakpoint{ID: id, Kind: KindDomainSpecific, Enabled: true, Extension: ext}
	m.byID[id] = bp
	if name, ok := ext.WatchedName(); ok {
		m.watchedNames[lower(name)] = struct{}{}
	}
	return id
}

// Delete removes id from all indexes. No-op if absent.
func (m *Manager) Delete(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bp, ok := m.byID[id]
	if !ok {
		return
	}
	switch bp.Kind {
	case KindLocation:
		if set, ok := m.byLocation[bp.Location]; ok {
			set.Remove(int(id))
		}
	case KindFunction:
		if set, ok := m.byFunction[bp.Function.key()]; ok {
			set.Remove(int(id))
		}
	}
	delete(m.byID, id)
}

// TryGetAtLocation canonicalizes (file, line) and returns the first id
// registered there, or InvalidID.
func (m *Manager) TryGetAtLocation(file string, line int32) int32 {
	path, ok := m.canon.Canonicalize(file)
	if !ok {
		return InvalidID
	}
	loc := CanonicalLocation{Path: path, Line: line}

	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byLocation[loc]
	if !ok || set.Empty() {
		return InvalidID
	}
	return int32(set.Values()[0].(int))
}

// TryGetForFunction returns the first id registered for the (case-
// insensitive) function name, or InvalidID.
func (m *Manager) TryGetForFunction(name string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byFunction[lower(name)]
	if !ok || set.Empty() {
		return InvalidID
	}
	return int32(set.Values()[0].(int))
}

// TryLookup returns the breakpoint record for id, if any.
func (m *Manager) TryLookup(id int32) (*Breakpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bp, ok := m.byID[id]
	return bp, ok
}

// SetEnabled implements the one mutable breakpoint field the wire protocol
// exposes today (csUpdateBreakpoint field 0, IsEnabled).
func (m *Manager) SetEnabled(id int32, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	bp, ok := m.byID[id]
	if !ok {
		return false
	}
	bp.Enabled = enabled
	return true
}

// FindEnabledDomainSpecific linearly scans breakpoints in ascending id
// order (spec.md §4.3), returning the first enabled domain-specific
// breakpoint whose extension satisfies predicate, or InvalidID.
func (m *Manager) FindEnabledDomainSpecific(predicate func(Extension) bool) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := int32(1); id < m.nextID; id++ {
		bp, ok := m.byID[id]
		if !ok || bp.Kind != KindDomainSpecific || !bp.Enabled {
			continue
		}
		if predicate(bp.Extension) {
			return id
		}
	}
	return InvalidID
}

// Canonicalize resolves file the same way breakpoint creation and lookup
// do, so callers outside this package (csSetNextStatement's file-match
// check) apply an identical notion of "same file".
func (m *Manager) Canonicalize(file string) (string, bool) {
	return m.canon.Canonicalize(file)
}

// IsWatched reports whether name is in the watched-variable-name set.
func (m *Manager) IsWatched(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchedNames[lower(name)]
	return ok
}

func lower(s string) string {
	return CaseInsensitiveName{Name: s}.key()
}
