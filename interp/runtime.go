package interp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// noopGuard is used when no Hook is attached.
type noopGuard struct{}

func (noopGuard) Close() {}

// noopHook is substituted whenever Runtime.Hook is nil, so call sites never
// need a nil check of their own.
type noopHook struct{}

func (noopHook) BeforeStatement(*FunctionRecord, Location, []string) (Guard, bool) {
	return noopGuard{}, false
}
func (noopHook) OnMessage(MessageKind, string)                          {}
func (noopHook) OnVariableAccess(string, AccessKind, string)             {}
func (noopHook) OnTargetCreated(TargetType, string)                     {}
func (noopHook) AdjustNextStatement([]Statement, *int)                   {}

// Runtime evaluates parsed Statements, driving the attached Hook exactly
// once per statement, the way the original cmMakefile::ExecuteCommand loop
// drives HLDPServer::OnExecutingInitialPass. It implements just enough of
// CMake's listfile command set (set/unset/message/add_executable/
// add_library/function/endfunction) to exercise every debugger code path;
// a real build-script language is explicitly out of scope (spec.md §1 and
// §9 treat the interpreter as an external collaborator).
type Runtime struct {
	Hook      Hook
	Variables *VariableStore
	Cache     *Cache
	Targets   *TargetRegistry
	Functions map[string]*FunctionRecord
}

// NewRuntime returns a Runtime with empty state and no attached Hook.
func NewRuntime() *Runtime {
	return &Runtime{
		Variables: NewVariableStore(),
		Cache:     NewCache(),
		Targets:   NewTargetRegistry(),
		Functions: make(map[string]*FunctionRecord),
	}
}

func (rt *Runtime) hook() Hook {
	if rt.Hook == nil {
		return noopHook{}
	}
	return rt.Hook
}

// Run evaluates a top-level statement list. function()/endfunction() blocks
// are registered rather than executed in place, matching CMake's
// first-pass treatment of function bodies.
func (rt *Runtime) Run(stmts []Statement) error {
	top, err := rt.extractFunctions(stmts)
	if err != nil {
		return err
	}
	return rt.execBlock(top)
}

// extractFunctions pulls every function(...)...endfunction() block out of
// stmts, registering each as a FunctionRecord, and returns the remaining
// top-level statements in their original order.
func (rt *Runtime) extractFunctions(stmts []Statement) ([]Statement, error) {
	var out []Statement
	for i := 0; i < len(stmts); i++ {
		s := stmts[i]
		if !strings.EqualFold(s.Command, "function") {
			out = append(out, s)
			continue
		}
		if len(s.Args) == 0 {
			return nil, fmt.Errorf("interp: function() requires a name at %s", s.Source)
		}
		depth := 1
		j := i + 1
		bodyStart := j
		for ; j < len(stmts); j++ {
			switch {
			case strings.EqualFold(stmts[j].Command, "function"):
				depth++
			case strings.EqualFold(stmts[j].Command, "endfunction"):
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if depth != 0 {
			return nil, fmt.Errorf("interp: function(%s) at %s has no matching endfunction()", s.Args[0], s.Source)
		}
		fn := &FunctionRecord{
			Name:      s.Args[0],
			ParamList: append([]string(nil), s.Args[1:]...),
			Body:      append([]Statement(nil), stmts[bodyStart:j]...),
			Source:    s.Source,
		}
		rt.Functions[strings.ToLower(fn.Name)] = fn
		i = j
	}
	return out, nil
}

func (rt *Runtime) lookupFunction(name string) *FunctionRecord {
	if fn, ok := rt.Functions[strings.ToLower(name)]; ok {
		return fn
	}
	return &FunctionRecord{Name: name, Builtin: true}
}

// execBlock runs stmts in order, consulting AdjustNextStatement before each
// one so a debugger-driven csSetNextStatement can redirect the index.
func (rt *Runtime) execBlock(stmts []Statement) error {
	for i := 0; i < len(stmts); i++ {
		rt.hook().AdjustNextStatement(stmts, &i)
		if i < 0 || i >= len(stmts) {
			return nil
		}
		if err := rt.execOne(stmts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) execOne(stmt Statement) error {
	fn := rt.lookupFunction(stmt.Command)
	guard, skip := rt.hook().BeforeStatement(fn, stmt.Source, stmt.Args)
	defer guard.Close()
	if skip {
		return nil
	}
	args, err := rt.interpolateArgs(stmt.Args)
	if err != nil {
		return err
	}
	if !fn.Builtin {
		return rt.invoke(fn, args)
	}
	return rt.dispatchBuiltin(stmt.Command, args, stmt.Source)
}

var varrefRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateArgs substitutes ${VAR} references, reporting each resolved
// read through the Hook's variable-access event.
func (rt *Runtime) interpolateArgs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = varrefRE.ReplaceAllStringFunc(a, func(m string) string {
			name := m[2 : len(m)-1]
			v, _ := rt.Variables.Get(name)
			rt.hook().OnVariableAccess(name, AccessRead, v)
			return v
		})
	}
	return out, nil
}

func (rt *Runtime) invoke(fn *FunctionRecord, args []string) error {
	rt.Variables.PushScope()
	defer rt.Variables.PopScope()
	for i, p := range fn.ParamList {
		v := ""
		if i < len(args) {
			v = args[i]
		}
		rt.Variables.Set(p, v)
	}
	rt.Variables.Set("ARGC", strconv.Itoa(len(args)))
	for i, a := range args {
		rt.Variables.Set(fmt.Sprintf("ARGV%d", i), a)
	}
	return rt.execBlock(fn.Body)
}

func (rt *Runtime) dispatchBuiltin(command string, args []string, pos Location) error {
	switch strings.ToLower(command) {
	case "set":
		return rt.doSet(args)
	case "unset":
		return rt.doUnset(args)
	case "message":
		return rt.doMessage(args)
	case "add_executable":
		return rt.doAddTarget(TargetExecutable, args)
	case "add_library":
		return rt.doAddLibrary(args)
	default:
		// Unrecognized commands are accepted silently: the interpreter's
		// job is to drive the debugger through statements, not to
		// implement CMake's full command set.
		return nil
	}
}

func (rt *Runtime) doSet(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("interp: set() requires a variable name")
	}
	name := args[0]
	value := strings.Join(args[1:], ";")
	rt.Variables.Set(name, value)
	rt.hook().OnVariableAccess(name, AccessWrite, value)
	return nil
}

func (rt *Runtime) doUnset(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("interp: unset() requires a variable name")
	}
	name := args[0]
	rt.Variables.Unset(name)
	rt.hook().OnVariableAccess(name, AccessWrite, "")
	return nil
}

var messageKinds = map[string]MessageKind{
	"STATUS":            MessageStatus,
	"WARNING":           MessageWarning,
	"AUTHOR_WARNING":    MessageAuthorWarning,
	"SEND_ERROR":        MessageError,
	"FATAL_ERROR":       MessageFatalError,
	"INTERNAL_ERROR":    MessageInternalError,
	"AUTHOR_ERROR":      MessageAuthorError,
	"DEPRECATION_ERROR": MessageDeprecationError,
}

func (rt *Runtime) doMessage(args []string) error {
	kind := MessageStatus
	rest := args
	if len(args) > 0 {
		if k, ok := messageKinds[strings.ToUpper(args[0])]; ok {
			kind = k
			rest = args[1:]
		}
	}
	text := strings.Join(rest, "")
	rt.hook().OnMessage(kind, text)
	return nil
}

func (rt *Runtime) doAddTarget(kind TargetType, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("interp: add_executable() requires a target name")
	}
	name := args[0]
	rt.Targets.Create(name, kind)
	rt.hook().OnTargetCreated(kind, name)
	return nil
}

func (rt *Runtime) doAddLibrary(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("interp: add_library() requires a target name")
	}
	name := args[0]
	kind := TargetStaticLibrary
	if len(args) > 1 {
		switch strings.ToUpper(args[1]) {
		case "SHARED":
			kind = TargetSharedLibrary
		case "STATIC":
			kind = TargetStaticLibrary
		default:
			kind = TargetCustom
		}
	}
	rt.Targets.Create(name, kind)
	rt.hook().OnTargetCreated(kind, name)
	return nil
}
