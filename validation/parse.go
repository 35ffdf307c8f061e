package validation

import (
	"fmt"
	"strings"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/turtle"
	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// Parsed is a SHACL report decoded from RDF.
type Parsed struct {
	// Conforms is the engine's sh:conforms value. HasConforms is false when
	// the graph carried none.
	Conforms    bool
	HasConforms bool
	Results     []Result
	// UnknownSeverities lists severity IRIs that were mapped to Violation.
	UnknownSeverities []string
}

// ParseTurtle decodes a SHACL validation report graph. Results are found
// both through sh:result links and through rdf:type sh:ValidationResult.
func ParseTurtle(data []byte) (*Parsed, error) {
	triples, err := turtle.ParseBytes(data, turtle.FormatTurtle)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return parseGraph(triples), nil
}

type graph map[string]map[string][]rdfterm.Term

func (g graph) first(node, pred string) (rdfterm.Term, bool) {
	objs := g[node][pred]
	if len(objs) == 0 {
		return rdfterm.Term{}, false
	}
	return objs[0], true
}

func parseGraph(triples []rdfterm.Triple) *Parsed {
	g := make(graph)
	var resultNodes []string
	seen := make(map[string]bool)
	addNode := func(key string) {
		if !seen[key] {
			seen[key] = true
			resultNodes = append(resultNodes, key)
		}
	}

	out := &Parsed{}
	for _, tr := range triples {
		subj := tr.Subject.Key()
		if g[subj] == nil {
			g[subj] = make(map[string][]rdfterm.Term)
		}
		g[subj][tr.Predicate.Value] = append(g[subj][tr.Predicate.Value], tr.Object)

		switch tr.Predicate.Value {
		case shacl.Result:
			addNode(tr.Object.Key())
		case shacl.RDFType:
			if tr.Object.Value == shacl.ClassValidationResult {
				addNode(subj)
			}
		case shacl.Conforms:
			out.HasConforms = true
			out.Conforms = strings.EqualFold(strings.TrimSpace(tr.Object.Value), "true")
		}
	}

	unknown := make(map[string]bool)
	for _, node := range resultNodes {
		res := Result{}
		if t, ok := g.first(node, shacl.FocusNode); ok {
			res.FocusNode = t.Key()
		}
		if t, ok := g.first(node, shacl.ResultPath); ok {
			res.ResultPath = t.Key()
		}
		if t, ok := g.first(node, shacl.Value); ok {
			v := t
			res.Value = &v
		}
		res.Message = pickMessage(g[node][shacl.ResultMessage])
		if t, ok := g.first(node, shacl.SourceConstraintComponent); ok {
			res.SourceConstraint = t.Key()
		}
		if t, ok := g.first(node, shacl.SourceShape); ok {
			res.SourceShape = t.Key()
		}
		if t, ok := g.first(node, shacl.ResultSeverity); ok {
			sev, known := SeverityFromIRI(t.Value)
			res.Severity = sev
			if !known && !unknown[t.Value] {
				unknown[t.Value] = true
				out.UnknownSeverities = append(out.UnknownSeverities, t.Value)
			}
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// pickMessage prefers an untagged message, then English, then the first.
func pickMessage(msgs []rdfterm.Term) string {
	if len(msgs) == 0 {
		return ""
	}
	for _, m := range msgs {
		if m.Lang == "" {
			return m.Value
		}
	}
	for _, m := range msgs {
		if strings.HasPrefix(strings.ToLower(m.Lang), "en") {
			return m.Value
		}
	}
	return msgs[0].Value
}
