package sparql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokVar
	tokIRI
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' || r == '-' || r == '.'
}

// tokenize splits a query into the tokens needed for form detection, brace
// matching and variable substitution. Comments are dropped.
func tokenize(q string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(q) {
		r, size := utf8.DecodeRuneInString(q[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '#':
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				i = len(q)
			} else {
				i += end + 1
			}

		case r == '"' || r == '\'':
			end, err := scanString(q, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: q[i:end], pos: i})
			i = end

		case r == '<':
			if end := scanIRI(q, i); end > 0 {
				toks = append(toks, token{kind: tokIRI, text: q[i:end], pos: i})
				i = end
			} else {
				toks = append(toks, token{kind: tokPunct, text: "<", pos: i})
				i++
			}

		case (r == '?' || r == '$') && i+1 < len(q) && isNameStart(q[i+1:]):
			j := i + 1
			for j < len(q) {
				r2, s2 := utf8.DecodeRuneInString(q[j:])
				if !(unicode.IsLetter(r2) || unicode.IsDigit(r2) || r2 == '_') {
					break
				}
				j += s2
			}
			toks = append(toks, token{kind: tokVar, text: q[i:j], pos: i})
			i = j

		case isNameRune(r):
			j := i
			for j < len(q) {
				r2, s2 := utf8.DecodeRuneInString(q[j:])
				if !isNameRune(r2) {
					break
				}
				j += s2
			}
			// A trailing dot terminates a triple pattern, not the name.
			for j > i+1 && q[j-1] == '.' {
				j--
			}
			toks = append(toks, token{kind: tokWord, text: q[i:j], pos: i})
			i = j

		default:
			toks = append(toks, token{kind: tokPunct, text: string(r), pos: i})
			i += size
		}
	}
	return toks, nil
}

func isNameStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// scanString returns the offset just past the string literal starting at i.
func scanString(q string, i int) (int, error) {
	quote := q[i]
	long := strings.Repeat(string(quote), 3)
	if strings.HasPrefix(q[i:], long) {
		end := strings.Index(q[i+3:], long)
		if end < 0 {
			return 0, positionError(q, i, "unterminated string literal")
		}
		return i + 3 + end + 3, nil
	}
	for j := i + 1; j < len(q); j++ {
		switch q[j] {
		case '\\':
			j++
		case '\n':
			return 0, positionError(q, i, "unterminated string literal")
		case quote:
			return j + 1, nil
		}
	}
	return 0, positionError(q, i, "unterminated string literal")
}

// scanIRI returns the offset just past an IRI reference starting at i, or
// zero when the '<' is a comparison operator.
func scanIRI(q string, i int) int {
	for j := i + 1; j < len(q); j++ {
		switch c := q[j]; {
		case c == '>':
			return j + 1
		case c <= ' ', c == '<', c == '"', c == '{', c == '}', c == '|', c == '^', c == '`', c == '\\':
			return 0
		}
	}
	return 0
}

// position converts a byte offset to a 1-based line and rune column.
func position(q string, offset int) (line, col int) {
	line = 1
	lineStart := 0
	for i := 0; i < offset && i < len(q); i++ {
		if q[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, utf8.RuneCountInString(q[lineStart:offset]) + 1
}

func positionError(q string, offset int, msg string) *SyntaxError {
	line, col := position(q, offset)
	return &SyntaxError{Line: line, Column: col, Msg: msg}
}
