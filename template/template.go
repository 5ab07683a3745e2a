/*Package template parses and instantiates argument templates: a shell-style
tokenized pattern string containing at most one variadic placeholder ({...})
and any number of positional placeholders ({}), used to transform the
arguments a client sends through Send into a concrete command line.*/
package template

import (
	"strings"

	"golang.org/x/xerrors"
)

// ErrParse is returned by Parse when the source string is malformed (an
// unterminated quote, or more than one variadic placeholder).
var ErrParse = xerrors.New("template: parse error")

// ErrArity is returned by Instantiate when the supplied argument count does
// not satisfy the template's required arity.
var ErrArity = xerrors.New("template: arity mismatch")

// kind identifies what a parsed piece of a template represents.
type kind int

const (
	kindStatic kind = iota
	kindArg
	kindVarArg
)

// piece is one element of a parsed Template, in source order.
type piece struct {
	kind  kind
	value string // only meaningful for kindStatic
}

// Template is a parsed argument template: a sequence of literal, positional,
// and at most one variadic piece, tagged with the arity it requires.
type Template struct {
	pieces     []piece
	exact      bool // true when no VarArg is present
	minArity   int  // required arity if exact, minimum arity otherwise
	prefixArgs int  // number of Arg pieces before the VarArg (or all Args if exact)
	suffixArgs int  // number of Arg pieces after the VarArg
}

// Parse tokenizes src the way a shell would split a command line (honoring
// single/double quoting and backslash escapes) and classifies each resulting
// word as a literal Static token, a positional Arg ("{}"), or the single
// allowed variadic VarArg ("{...}"). A second "{...}" token is a parse error.
func Parse(src string) (*Template, error) {
	words, err := tokenize(src)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrParse, err)
	}

	t := &Template{pieces: make([]piece, 0, len(words))}
	sawVarArg := false
	for _, w := range words {
		switch w {
		case "{}":
			t.pieces = append(t.pieces, piece{kind: kindArg})
			if sawVarArg {
				t.suffixArgs++
			} else {
				t.prefixArgs++
			}
		case "{...}":
			if sawVarArg {
				return nil, xerrors.Errorf("%w: {...} may appear at most once", ErrParse)
			}
			sawVarArg = true
			t.pieces = append(t.pieces, piece{kind: kindVarArg})
		default:
			t.pieces = append(t.pieces, piece{kind: kindStatic, value: w})
		}
	}

	t.exact = !sawVarArg
	if t.exact {
		t.minArity = t.prefixArgs
	} else {
		t.minArity = t.prefixArgs + t.suffixArgs
	}
	return t, nil
}

// Instantiate expands the template against args, producing the concrete
// command-line token sequence. It fails with ErrArity if args does not
// satisfy the template's required arity: exactly minArity when there is no
// VarArg, or at least minArity when there is.
func (t *Template) Instantiate(args []string) ([]string, error) {
	n := len(args)
	if t.exact && n != t.minArity {
		return nil, xerrors.Errorf("%w: template requires exactly %d argument(s), got %d", ErrArity, t.minArity, n)
	}
	if !t.exact && n < t.minArity {
		return nil, xerrors.Errorf("%w: template requires at least %d argument(s), got %d", ErrArity, t.minArity, n)
	}

	middleCount := n - t.minArity
	out := make([]string, 0, len(t.pieces)+n)
	idx := 0
	for _, p := range t.pieces {
		switch p.kind {
		case kindStatic:
			out = append(out, p.value)
		case kindArg:
			out = append(out, args[idx])
			idx++
		case kindVarArg:
			out = append(out, args[idx:idx+middleCount]...)
			idx += middleCount
		}
	}
	return out, nil
}

// String renders the template back into source form: Arg/VarArg pieces
// render as "{}"/"{...}", and Static pieces are shell-quoted so that
// Parse(t.String()) reproduces an equivalent template.
func (t *Template) String() string {
	parts := make([]string, 0, len(t.pieces))
	for _, p := range t.pieces {
		switch p.kind {
		case kindArg:
			parts = append(parts, "{}")
		case kindVarArg:
			parts = append(parts, "{...}")
		case kindStatic:
			parts = append(parts, quote(p.value))
		}
	}
	return strings.Join(parts, " ")
}
