package sparql

import (
	"regexp"
	"strings"

	"github.com/c360studio/ontogate/rdfterm"
)

var (
	numericPattern      = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	prefixedNamePattern = regexp.MustCompile(`^[A-Za-z][\w.-]*:[\w.-]*$`)
)

// ApplyBindings substitutes variables with values. Only whole variable
// tokens outside strings, IRIs and comments are replaced, so binding ?s
// leaves ?subject untouched. Bindings may be keyed with or without the
// leading "?" or "$".
func ApplyBindings(query string, bindings map[string]string) (string, error) {
	if len(bindings) == 0 {
		return query, nil
	}
	values := make(map[string]string, len(bindings))
	for k, v := range bindings {
		values[strings.TrimLeft(k, "?$")] = FormatValue(v)
	}

	toks, err := tokenize(query)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	last := 0
	for _, t := range toks {
		if t.kind != tokVar {
			continue
		}
		v, ok := values[t.text[1:]]
		if !ok {
			continue
		}
		sb.WriteString(query[last:t.pos])
		sb.WriteString(v)
		last = t.pos + len(t.text)
	}
	sb.WriteString(query[last:])
	return sb.String(), nil
}

// FormatValue renders a binding value as a SPARQL term. IRIs, prefixed
// names, blank nodes, numbers, booleans and pre-quoted literals keep their
// form once they check out as well-formed; anything else becomes a quoted
// string literal. Quoted literal bodies are re-escaped.
func FormatValue(v string) string {
	switch {
	case strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") && len(v) > 1:
		if rdfterm.ValidIRI(v[1:len(v)-1]) == nil {
			return v
		}
	case strings.HasPrefix(v, "\""):
		if lit, ok := quotedLiteral(v); ok {
			return lit
		}
	case strings.Contains(v, "://"):
		if rdfterm.ValidIRI(v) == nil {
			return "<" + v + ">"
		}
	case strings.HasPrefix(v, "_:"):
		if rdfterm.Blank(v).Validate() == nil {
			return v
		}
	case v == "true" || v == "false":
		return v
	case numericPattern.MatchString(v):
		return v
	case prefixedNamePattern.MatchString(v):
		return v
	}
	return `"` + rdfterm.EscapeString(v) + `"`
}

// quotedLiteral rewrites `"body"`, `"body"@lang` or `"body"^^dt` with the
// body escaped. The suffix must be a valid language tag or datatype.
func quotedLiteral(v string) (string, bool) {
	end := strings.LastIndex(v, "\"")
	if end <= 0 {
		return "", false
	}
	body, suffix := v[1:end], v[end+1:]
	lit := `"` + rdfterm.EscapeString(body) + `"`
	switch {
	case suffix == "":
		return lit, true
	case strings.HasPrefix(suffix, "@"):
		if rdfterm.LangLiteral(body, suffix[1:]).Validate() != nil {
			return "", false
		}
		return lit + suffix, true
	case strings.HasPrefix(suffix, "^^<") && strings.HasSuffix(suffix, ">"):
		if rdfterm.ValidIRI(suffix[3:len(suffix)-1]) != nil {
			return "", false
		}
		return lit + suffix, true
	case strings.HasPrefix(suffix, "^^") && prefixedNamePattern.MatchString(suffix[2:]):
		return lit + suffix, true
	}
	return "", false
}
