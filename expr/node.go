// Package expr implements the polymorphic expression tree the debugger
// evaluates csCreateExpression/csQueryExpressionChildren/
// csSetExpressionValue against (spec.md §3, §4.7): a tagged-variant Node
// in place of the original's class-per-variant hierarchy (spec.md §9
// design note), and a per-session Cache cleared on every resume.
package expr

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sysprogs-oss/hldp/interp"
)

// Kind tags which of the six expression variants a Node is.
type Kind int

const (
	KindEnvironmentMeta Kind = iota
	KindEnvironmentVariable
	KindScriptVariable
	KindTarget
	KindCacheEntry
	KindSimple
)

// Resolver is the live interpreter state a Node consults to enumerate
// children or apply an update. It is the expression tree's view of
// interp.Runtime, narrowed to what §4.7 needs.
type Resolver interface {
	LookupVariable(name string) (string, bool)
	SetVariable(name, value string) bool
	LookupTarget(name string) (*interp.Target, bool)
	LookupCache(key string) (string, bool)
}

// Node is one expression tree node. Its Kind selects which fields are
// meaningful and how CreateChildren/UpdateValue behave (spec.md §4.7's
// table).
type Node struct {
	ID                   int32
	Name                 string
	Type                 string
	Value                string
	Kind                 Kind
	ChildCountOrSentinel int32
	ChildrenRegistered   bool
	RegisteredChildren   []int32

	varName    string // EnvironmentVariable / ScriptVariable target name
	target     *interp.Target
	resolver   Resolver
}

// Unknown is the child-count sentinel meaning "not yet computed".
const Unknown int32 = -1

// CreateTopLevel resolves text against resolver in the fixed order
// spec.md §4.7 mandates: environment-meta, environment-variable, script-
// variable, target, cache-entry, not-found.
func CreateTopLevel(resolver Resolver, text string) (*Node, error) {
	if text == "ENV" || text == "$ENV" {
		return &Node{Name: text, Type: "environment", Kind: KindEnvironmentMeta, ChildCountOrSentinel: Unknown, resolver: resolver}, nil
	}
	if name, ok := parseEnvRef(text); ok {
		if v, exists := os.LookupEnv(name); exists {
			return &Node{Name: text, Type: "environment-variable", Value: v, Kind: KindEnvironmentVariable, ChildCountOrSentinel: 0, varName: name, resolver: resolver}, nil
		}
	}
	if v, ok := resolver.LookupVariable(text); ok {
		return &Node{Name: text, Type: "variable", Value: v, Kind: KindScriptVariable, ChildCountOrSentinel: 0, varName: text, resolver: resolver}, nil
	}
	if t, ok := resolver.LookupTarget(text); ok {
		return &Node{Name: text, Type: "target", Value: t.Name, Kind: KindTarget, ChildCountOrSentinel: Unknown, target: t, resolver: resolver}, nil
	}
	if v, ok := resolver.LookupCache(text); ok {
		return &Node{Name: text, Type: "cache", Value: v, Kind: KindCacheEntry, ChildCountOrSentinel: 0, resolver: resolver}, nil
	}
	return nil, fmt.Errorf("expr: cannot resolve %q", text)
}

// parseEnvRef recognizes the "ENV{X}" syntax and extracts X.
func parseEnvRef(text string) (string, bool) {
	const prefix, suffix = "ENV{", "}"
	if strings.HasPrefix(text, prefix) && strings.HasSuffix(text, suffix) {
		return text[len(prefix) : len(text)-len(suffix)], true
	}
	return "", false
}

// CreateChildren enumerates this node's children, if its Kind supports
// lazy expansion (EnvironmentMeta, Target); other kinds have none.
func (n *Node) CreateChildren() ([]*Node, error) {
	switch n.Kind {
	case KindEnvironmentMeta:
		return environmentChildren(n.resolver), nil
	case KindTarget:
		return targetChildren(n.target, n.resolver), nil
	default:
		return nil, nil
	}
}

func environmentChildren(resolver Resolver) []*Node {
	env := os.Environ()
	sort.Strings(env)
	var out []*Node
	for _, kv := range env {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		name, value := kv[:eq], kv[eq+1:]
		out = append(out, &Node{
			Name: "[" + name + "]", Type: "environment-variable", Value: value,
			Kind: KindEnvironmentVariable, ChildCountOrSentinel: 0, varName: name, resolver: resolver,
		})
	}
	return out
}

func targetChildren(t *interp.Target, resolver Resolver) []*Node {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.Properties))
	for k := range t.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, &Node{Name: k, Type: "property", Value: t.Properties[k], Kind: KindSimple, ChildCountOrSentinel: 0, resolver: resolver})
	}
	return out
}

// UpdateValue applies an in-place edit. Only EnvironmentVariable and
// ScriptVariable support it (spec.md §4.7's table); every other kind
// returns an error the caller relays as scError.
func (n *Node) UpdateValue(newValue string) error {
	switch n.Kind {
	case KindEnvironmentVariable:
		if err := os.Setenv(n.varName, newValue); err != nil {
			return fmt.Errorf("expr: setenv %s: %w", n.varName, err)
		}
		n.Value = newValue
		return nil
	case KindScriptVariable:
		n.resolver.SetVariable(n.varName, newValue)
		n.Value = newValue
		return nil
	default:
		return fmt.Errorf("expr: %s does not support value updates", n.typeName())
	}
}

func (n *Node) typeName() string {
	switch n.Kind {
	case KindEnvironmentMeta:
		return "an environment collection"
	case KindTarget:
		return "a target"
	case KindCacheEntry:
		return "a cache entry"
	default:
		return "this expression"
	}
}
