package sparql

import (
	"errors"
	"fmt"
	"strings"
)

// Form is the SPARQL query form.
type Form string

// Query forms.
const (
	FormSelect    Form = "SELECT"
	FormConstruct Form = "CONSTRUCT"
	FormAsk       Form = "ASK"
	FormDescribe  Form = "DESCRIBE"
)

// IsGraph reports whether the form returns RDF triples.
func (f Form) IsGraph() bool {
	return f == FormConstruct || f == FormDescribe
}

// Lower returns the lowercase form name.
func (f Form) Lower() string { return strings.ToLower(string(f)) }

var updateKeywords = map[string]bool{
	"INSERT": true, "DELETE": true, "LOAD": true, "CLEAR": true,
	"CREATE": true, "DROP": true, "COPY": true, "MOVE": true, "ADD": true, "WITH": true,
}

// DetectForm returns the form of a query, skipping comments and the
// BASE/PREFIX prologue.
func DetectForm(query string) (Form, error) {
	toks, err := tokenize(query)
	if err != nil {
		return "", err
	}
	form, _, err := detectForm(query, toks)
	return form, err
}

func detectForm(query string, toks []token) (Form, int, error) {
	i := 0
	for i < len(toks) {
		t := toks[i]
		word := strings.ToUpper(t.text)
		switch {
		case t.kind == tokWord && word == "PREFIX":
			if i+2 >= len(toks) || toks[i+1].kind != tokWord || !strings.HasSuffix(toks[i+1].text, ":") || toks[i+2].kind != tokIRI {
				return "", 0, positionError(query, t.pos, "malformed PREFIX declaration")
			}
			i += 3
		case t.kind == tokWord && word == "BASE":
			if i+1 >= len(toks) || toks[i+1].kind != tokIRI {
				return "", 0, positionError(query, t.pos, "malformed BASE declaration")
			}
			i += 2
		case t.kind == tokWord:
			switch Form(word) {
			case FormSelect, FormConstruct, FormAsk, FormDescribe:
				return Form(word), i, nil
			}
			if updateKeywords[word] {
				return "", 0, positionError(query, t.pos, fmt.Sprintf("%s is an update operation, not a query", word))
			}
			return "", 0, positionError(query, t.pos, fmt.Sprintf("unknown query form %q", t.text))
		default:
			return "", 0, positionError(query, t.pos, fmt.Sprintf("unexpected %q before query form", t.text))
		}
	}
	return "", 0, &SyntaxError{Msg: "no query form found"}
}

// Check performs the syntax pre-checks done before a query is forwarded:
// non-empty, known form, balanced braces, and a group pattern for forms
// that require one. It returns the detected form.
func Check(query string) (Form, error) {
	if strings.TrimSpace(query) == "" {
		return "", &SyntaxError{Msg: ErrEmptyQuery.Error()}
	}

	toks, err := tokenize(query)
	if err != nil {
		return "", err
	}
	form, at, err := detectForm(query, toks)
	if err != nil {
		return "", err
	}

	var open []int
	sawBrace := false
	for _, t := range toks[at:] {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "{":
			open = append(open, t.pos)
			sawBrace = true
		case "}":
			if len(open) == 0 {
				return "", positionError(query, t.pos, "unexpected '}'")
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return "", positionError(query, open[len(open)-1], "unclosed '{'")
	}
	if !sawBrace && form != FormDescribe {
		return "", &SyntaxError{Msg: fmt.Sprintf("%s query requires a group graph pattern", form)}
	}
	return form, nil
}

// ValidationResult is the outcome of checking a query without running it.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	QueryType string `json:"query_type,omitempty"`
	Message   string `json:"message"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
}

// Validate checks a query and describes the result.
func Validate(query string) ValidationResult {
	form, err := Check(query)
	if err != nil {
		res := ValidationResult{Message: err.Error()}
		var se *SyntaxError
		if errors.As(err, &se) {
			res.Line, res.Column = se.Line, se.Column
		}
		return res
	}
	return ValidationResult{Valid: true, QueryType: form.Lower(), Message: "Query syntax is valid"}
}
