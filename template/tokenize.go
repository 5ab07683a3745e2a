package template

import (
	"strings"

	"golang.org/x/xerrors"
)

// ErrUnterminatedQuote is wrapped into ErrParse when a quote is left open at
// the end of the source string.
var ErrUnterminatedQuote = xerrors.New("unterminated quote")

// tokenize splits src into words the way a POSIX shell would for the simple
// cases this grammar needs: unquoted whitespace separates words, single
// quotes preserve their contents literally, double quotes allow backslash
// escaping of '"', '\', and '$', and a backslash outside any quoting escapes
// the following character. No globbing, variable expansion, or command
// substitution is performed; this is argument-vector construction, not a
// shell.
func tokenize(src string) ([]string, error) {
	var words []string
	var cur strings.Builder
	haveWord := false

	runes := []rune(src)
	i, n := 0, len(runes)

	flush := func() {
		if haveWord {
			words = append(words, cur.String())
			cur.Reset()
			haveWord = false
		}
	}

	for i < n {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
			i++
		case r == '\'':
			haveWord = true
			i++
			start := i
			for i < n && runes[i] != '\'' {
				i++
			}
			if i >= n {
				return nil, xerrors.Errorf("%w: single quote opened at position %d never closed", ErrUnterminatedQuote, start-1)
			}
			cur.WriteString(string(runes[start:i]))
			i++ // skip closing quote
		case r == '"':
			haveWord = true
			i++
			start := i
			for i < n && runes[i] != '"' {
				if runes[i] == '\\' && i+1 < n && isDoubleQuoteEscapable(runes[i+1]) {
					cur.WriteString(string(runes[start:i]))
					cur.WriteRune(runes[i+1])
					i += 2
					start = i
					continue
				}
				i++
			}
			if i >= n {
				return nil, xerrors.Errorf("%w: double quote never closed", ErrUnterminatedQuote)
			}
			cur.WriteString(string(runes[start:i]))
			i++ // skip closing quote
		case r == '\\':
			haveWord = true
			if i+1 >= n {
				return nil, xerrors.Errorf("%w: trailing backslash", ErrUnterminatedQuote)
			}
			cur.WriteRune(runes[i+1])
			i += 2
		default:
			haveWord = true
			cur.WriteRune(r)
			i++
		}
	}
	flush()
	return words, nil
}

func isDoubleQuoteEscapable(r rune) bool {
	return r == '"' || r == '\\' || r == '$'
}

// quote renders s as a single shell word, using single-quoting when s
// contains anything that would otherwise be split or reinterpreted, so that
// tokenize(quote(s)) == []string{s}.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !needsQuoting(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func needsQuoting(s string) bool {
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return true
		case r == '\'' || r == '"' || r == '\\' || r == '$':
			return true
		}
	}
	return false
}
