package interp

import (
	"fmt"
	"strconv"

	parsec "github.com/prataprc/goparsec"
)

// Parse reads zero or more list-file statements from source text. Each
// statement has the shape `command_name(arg1 "quoted arg" ${VAR} ...)`,
// matching the subset of CMake listfile syntax the debugger needs to
// exercise: command dispatch, string arguments, and variable references.
//
// This is a hand-rolled, goparsec-based grammar in the same style as the
// teacher's lisp reader (parser/regexparser), generalized from s-expressions
// to CMake-like command syntax.
func Parse(file string, source []byte) ([]Statement, error) {
	ident := parsec.Token(`[A-Za-z_][A-Za-z0-9_]*`, "IDENT")
	openP := parsec.Atom("(", "OPENP")
	closeP := parsec.Atom(")", "CLOSEP")
	varref := parsec.Token(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`, "VARREF")
	word := parsec.Token(`[^\s()"]+`, "WORD")
	str := parsec.String()

	argTok := parsec.OrdChoice(firstNode, varref, str, word)
	argList := parsec.Kleene(nil, argTok)

	statement := parsec.And(
		func(nodes []parsec.ParsecNode) parsec.ParsecNode {
			return buildStatement(nodes)
		},
		ident, openP, argList, closeP,
	)

	s := parsec.NewScanner(source)
	var out []Statement
	for {
		_, s = s.SkipWS()
		if s.Endof() {
			break
		}
		before := s.GetCursor()
		node, rest := statement(s)
		if node == nil {
			return nil, fmt.Errorf("interp: parse error near byte %d in %s", before, file)
		}
		stmt, ok := node.(Statement)
		if !ok {
			return nil, fmt.Errorf("interp: internal parser error in %s", file)
		}
		stmt.Source.File = file
		stmt.Source.Line = 1 + countNewlines(source[:before])
		out = append(out, stmt)
		s = rest
	}
	return out, nil
}

func firstNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

// buildStatement assembles a Statement from the [ident, openP, argList,
// closeP] nodes produced by the `statement` parser above.
func buildStatement(nodes []parsec.ParsecNode) Statement {
	var stmt Statement
	if len(nodes) == 0 {
		return stmt
	}
	if term, ok := nodes[0].(*parsec.Terminal); ok {
		stmt.Command = term.GetValue()
	}
	if len(nodes) >= 3 {
		if args, ok := nodes[2].([]parsec.ParsecNode); ok {
			for _, a := range args {
				stmt.Args = append(stmt.Args, argValue(a))
			}
		}
	}
	return stmt
}

func argValue(node parsec.ParsecNode) string {
	term, ok := node.(*parsec.Terminal)
	if !ok {
		return ""
	}
	v := term.GetValue()
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		unquoted, err := strconv.Unquote(v)
		if err == nil {
			return unquoted
		}
		return v[1 : len(v)-1]
	}
	return v
}
