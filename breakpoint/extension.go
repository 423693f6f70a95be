package breakpoint

import (
	"strings"

	"github.com/sysprogs-oss/hldp/hldp"
)

// Extension is a domain-specific breakpoint trigger: something other than
// a source location or function name (spec.md §3's "domain-specific
// breakpoint extension" variant). Owned exclusively by its Breakpoint
// record.
type Extension interface {
	// Kind returns the wire-level kind code for csCreateDomainSpecificBreakpoint.
	Kind() hldp.DomainSpecificKind
	// WatchedName returns the variable name this extension watches, and
	// true, if it is a VariableAccessed/VariableUpdated extension (used to
	// populate the watched-name set as a side effect of creation).
	WatchedName() (string, bool)
}

// VariableAccessedExt fires on any read of Name.
type VariableAccessedExt struct{ Name string }

func (e VariableAccessedExt) Kind() hldp.DomainSpecificKind { return hldp.VariableAccessed }
func (e VariableAccessedExt) WatchedName() (string, bool)   { return e.Name, true }

// MatchesAccess reports whether a read of name should trigger this
// extension.
func (e VariableAccessedExt) MatchesAccess(name string, write bool) bool {
	return !write && strings.EqualFold(e.Name, name)
}

// VariableUpdatedExt fires on any write of Name.
type VariableUpdatedExt struct{ Name string }

func (e VariableUpdatedExt) Kind() hldp.DomainSpecificKind { return hldp.VariableUpdated }
func (e VariableUpdatedExt) WatchedName() (string, bool)   { return e.Name, true }

// MatchesAccess reports whether a write of name should trigger this
// extension.
func (e VariableUpdatedExt) MatchesAccess(name string, write bool) bool {
	return write && strings.EqualFold(e.Name, name)
}

// MessageSentExt fires when a produced message contains Substring.
type MessageSentExt struct{ Substring string }

func (e MessageSentExt) Kind() hldp.DomainSpecificKind { return hldp.MessageSent }
func (e MessageSentExt) WatchedName() (string, bool)   { return "", false }

// Matches reports whether text should trigger this extension.
func (e MessageSentExt) Matches(text string) bool {
	return strings.Contains(text, e.Substring)
}

// TargetCreatedExt fires when a target named Name (or, if Name is empty,
// any target) is declared.
type TargetCreatedExt struct{ Name string }

func (e TargetCreatedExt) Kind() hldp.DomainSpecificKind { return hldp.TargetCreated }
func (e TargetCreatedExt) WatchedName() (string, bool)   { return "", false }

// Matches reports whether the creation of a target named name should
// trigger this extension.
func (e TargetCreatedExt) Matches(name string) bool {
	return e.Name == "" || strings.EqualFold(e.Name, name)
}
