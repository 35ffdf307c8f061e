package sparql

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectForm(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Form
	}{
		{"select", "SELECT * WHERE { ?s ?p ?o }", FormSelect},
		{"lowercase", "select ?s where { ?s ?p ?o }", FormSelect},
		{"prefixed", "PREFIX ex: <http://example.org/>\nPREFIX : <http://d/>\nASK { ex:a ?p ?o }", FormAsk},
		{"base and comment", "# find things\nBASE <http://example.org/>\nCONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o }", FormConstruct},
		{"describe", "DESCRIBE <http://example.org/a>", FormDescribe},
		{"keyword in comment", "# SELECT nothing\nASK { ?s ?p ?o }", FormAsk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectForm(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheck_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		line   int
		column int
	}{
		{"empty", "   ", 0, 0},
		{"unknown form", "FETCH ?s", 1, 1},
		{"update", "INSERT DATA { <a> <b> <c> }", 1, 1},
		{"unclosed brace", "SELECT ?s\nWHERE { ?s ?p ?o", 2, 7},
		{"extra brace", "SELECT ?s WHERE { ?s ?p ?o } }", 1, 30},
		{"no pattern", "SELECT ?s", 0, 0},
		{"unterminated string", "SELECT ?s WHERE { ?s ?p \"abc }", 1, 25},
		{"bad prefix", "PREFIX ex <http://e/> SELECT * { }", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.query)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.line, se.Line)
			assert.Equal(t, tt.column, se.Column)
		})
	}
}

func TestCheck_BracesInsideStringsAndIRIs(t *testing.T) {
	form, err := Check(`SELECT ?s WHERE { ?s <http://e/p> "}{" . FILTER(?x < 5) }`)
	require.NoError(t, err)
	assert.Equal(t, FormSelect, form)
}

func TestValidate(t *testing.T) {
	ok := Validate("ASK { ?s ?p ?o }")
	assert.True(t, ok.Valid)
	assert.Equal(t, "ask", ok.QueryType)

	bad := Validate("SELECT ?s WHERE {")
	assert.False(t, bad.Valid)
	assert.Equal(t, 1, bad.Line)
}

func TestTimeoutPolicy(t *testing.T) {
	p := TimeoutPolicy{Default: 30 * time.Second, Max: time.Minute, Adaptive: true}

	assert.Equal(t, 10*time.Second, p.Decide(10*time.Second, 5))
	assert.Equal(t, time.Minute, p.Decide(time.Hour, 5))
	assert.Equal(t, 5*time.Second, p.Decide(0, 9_999))
	assert.Equal(t, 15*time.Second, p.Decide(0, 10_000))
	assert.Equal(t, 30*time.Second, p.Decide(0, 100_000))
	assert.Equal(t, 30*time.Second, p.Decide(0, -1))

	p.Adaptive = false
	assert.Equal(t, 30*time.Second, p.Decide(0, 10))
	assert.Equal(t, DefaultTimeout, TimeoutPolicy{}.Decide(0, 10))
}

func TestApplyBindings(t *testing.T) {
	q := `SELECT ?subject WHERE { ?s ?p "?s" . ?subject <http://e/?s> ?o }`
	got, err := ApplyBindings(q, map[string]string{
		"?s": "http://example.org/a",
		"o":  "hello world",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT ?subject WHERE { <http://example.org/a> ?p "?s" . ?subject <http://e/?s> "hello world" }`, got)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "<http://e/x>", FormatValue("http://e/x"))
	assert.Equal(t, "<http://e/x>", FormatValue("<http://e/x>"))
	assert.Equal(t, "ex:thing", FormatValue("ex:thing"))
	assert.Equal(t, "42", FormatValue("42"))
	assert.Equal(t, "true", FormatValue("true"))
	assert.Equal(t, `"say \"hi\""`, FormatValue(`say "hi"`))
}

func TestFormatValue_Hostile(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"iri with closing bracket", "<http://e/x> } ; DROP ALL ; #>", `"<http://e/x> } ; DROP ALL ; #>"`},
		{"bare iri with brace", "http://e/x}", `"http://e/x}"`},
		{"quoted literal with inner quote", `"a" } ; DROP ALL ; "b"`, `"a\" } ; DROP ALL ; \"b"`},
		{"quoted literal", `"hello"`, `"hello"`},
		{"quoted url", `"see http://e/x"`, `"see http://e/x"`},
		{"lang literal", `"chat"@fr`, `"chat"@fr`},
		{"bad lang", `"x"@en }`, `"\"x\"@en }"`},
		{"typed literal", `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`, `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"prefixed datatype", `"5"^^xsd:integer`, `"5"^^xsd:integer`},
		{"bad datatype", `"5"^^<http://x> }>`, `"\"5\"^^<http://x> }>"`},
		{"blank", "_:b1", "_:b1"},
		{"bad blank", "_:b1 }", `"_:b1 }"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}
