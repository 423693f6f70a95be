// Package interp implements a minimal build-script evaluator modeled on
// CMake's listfile execution engine. It stands in for the real interpreter
// that spec.md treats as an external collaborator: list-file parsing,
// command dispatch, the variable store, the target registry and the cache
// are all implemented here just well enough to drive and test the
// debugger package against real statement execution.
package interp

import "fmt"

// Location identifies a point in a build-script source file as reported by
// the parser. It is intentionally uncanonicalized; the debugger's
// breakpoint manager is responsible for turning File into an absolute,
// symlink-resolved path (see package breakpoint).
type Location struct {
	File string
	Line int
	Col  int
}

// String renders the location the way diagnostics and log lines expect.
func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// IsZero reports whether l carries no useful location information.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0
}
