package rdfterm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermString(t *testing.T) {
	tests := []struct {
		name string
		term Term
		want string
	}{
		{"iri", IRI("http://example.org/a"), "<http://example.org/a>"},
		{"blank", Blank("_:b0"), "_:b0"},
		{"plain literal", Literal("hello"), `"hello"`},
		{"lang literal", LangLiteral("chat", "fr"), `"chat"@fr`},
		{"typed literal", TypedLiteral("42", "http://www.w3.org/2001/XMLSchema#integer"), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"xsd string collapses", TypedLiteral("x", "http://www.w3.org/2001/XMLSchema#string"), `"x"`},
		{"escaped", Literal("a \"quoted\"\nline"), `"a \"quoted\"\nline"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.term.String())
		})
	}
}

func TestParseNode(t *testing.T) {
	assert.Equal(t, Blank("n1"), ParseNode("_:n1"))
	assert.Equal(t, IRI("http://example.org/x"), ParseNode("<http://example.org/x>"))
	assert.Equal(t, IRI("http://example.org/x"), ParseNode(" http://example.org/x "))
	assert.Equal(t, "_:n1", ParseNode("_:n1").Key())
}

func TestTripleValidate(t *testing.T) {
	ok := Triple{Subject: IRI("http://e/s"), Predicate: IRI("http://e/p"), Object: Literal("o")}
	require.NoError(t, ok.Validate())
	assert.Equal(t, `<http://e/s> <http://e/p> "o" .`, ok.String())

	badSubject := ok
	badSubject.Subject = Literal("s")
	assert.Error(t, badSubject.Validate())

	badPredicate := ok
	badPredicate.Predicate = Blank("p")
	assert.Error(t, badPredicate.Validate())

	noObject := ok
	noObject.Object = Term{}
	assert.Error(t, noObject.Validate())
}

func TestTermValidate(t *testing.T) {
	tests := []struct {
		name    string
		term    Term
		wantErr bool
	}{
		{"iri", IRI("http://e/a"), false},
		{"relative iri", IRI("a"), true},
		{"iri closing bracket", IRI("http://e/a> } ; DROP ALL ; INSERT DATA { <http://x"), true},
		{"iri space", IRI("http://e/a b"), true},
		{"blank", Blank("b0"), false},
		{"blank with dots", Blank("node.1"), false},
		{"blank trailing dot", Blank("b."), true},
		{"blank brace", Blank("b } ; DROP ALL"), true},
		{"lang", LangLiteral("chat", "fr"), false},
		{"lang subtag", LangLiteral("color", "en-US"), false},
		{"lang injection", LangLiteral("x", `en } ; DROP ALL ; INSERT DATA { <http://a> <http://b> "c"@en`), true},
		{"lang digit first", LangLiteral("x", "1en"), true},
		{"datatype", TypedLiteral("42", "http://www.w3.org/2001/XMLSchema#integer"), false},
		{"datatype injection", TypedLiteral("42", "http://x> } ; DROP ALL ; INSERT DATA { <http://a"), true},
		{"datatype quote", TypedLiteral("42", `http://x"`), true},
		{"unknown type", Term{Type: "graph", Value: "g"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.term.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTripleValidate_WrapsInvalidTriple(t *testing.T) {
	tr := Triple{
		Subject:   IRI("http://e/s"),
		Predicate: IRI("http://e/p"),
		Object:    LangLiteral("x", "en } ; DROP ALL"),
	}
	err := tr.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTriple)
	assert.Contains(t, err.Error(), "object")
}

func TestNTriples(t *testing.T) {
	out := NTriples([]Triple{
		{Subject: IRI("http://e/s"), Predicate: IRI("http://e/p"), Object: IRI("http://e/o")},
		{Subject: Blank("b"), Predicate: IRI("http://e/p"), Object: Literal("v")},
	})
	assert.Equal(t, "<http://e/s> <http://e/p> <http://e/o> .\n_:b <http://e/p> \"v\" .\n", out)
}
