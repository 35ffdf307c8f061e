package turtle

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// PredicateObject is one predicate-object pair of a subject block.
type PredicateObject struct {
	Predicate rdfterm.Term
	Object    rdfterm.Term
}

// Writer writes RDF in Turtle format, compacting IRIs against its prefixes.
type Writer struct {
	prefixes map[string]string
	sb       strings.Builder
}

var localNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// NewWriter creates a Turtle writer with the given prefix bindings.
func NewWriter(prefixes map[string]string) *Writer {
	p := make(map[string]string, len(prefixes))
	for k, v := range prefixes {
		p[k] = v
	}
	return &Writer{prefixes: p}
}

// SetPrefix sets a namespace prefix.
func (w *Writer) SetPrefix(prefix, iri string) {
	w.prefixes[prefix] = iri
}

// WritePrefixes writes prefix declarations sorted by name.
func (w *Writer) WritePrefixes() {
	keys := make([]string, 0, len(w.prefixes))
	for k := range w.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, prefix := range keys {
		w.sb.WriteString(fmt.Sprintf("@prefix %s: <%s> .\n", prefix, w.prefixes[prefix]))
	}
	w.sb.WriteString("\n")
}

// WriteComment writes a "#" comment line.
func (w *Writer) WriteComment(text string) {
	for _, line := range strings.Split(text, "\n") {
		w.sb.WriteString("# " + line + "\n")
	}
}

// WriteSubject writes a complete subject block terminated by " .".
func (w *Writer) WriteSubject(subject rdfterm.Term, pairs []PredicateObject) {
	if len(pairs) == 0 {
		return
	}
	w.sb.WriteString(w.Term(subject))
	w.sb.WriteString("\n")
	for i, po := range pairs {
		terminator := " ;"
		if i == len(pairs)-1 {
			terminator = " ."
		}
		pred := w.Term(po.Predicate)
		if po.Predicate.IsIRI() && po.Predicate.Value == shacl.RDFType {
			pred = "a"
		}
		w.sb.WriteString(fmt.Sprintf("    %s %s%s\n", pred, w.Term(po.Object), terminator))
	}
	w.sb.WriteString("\n")
}

// WriteBlank writes a blank line for readability.
func (w *Writer) WriteBlank() {
	w.sb.WriteString("\n")
}

// Term formats a term, using a prefixed name where one of the writer's
// namespaces matches.
func (w *Writer) Term(t rdfterm.Term) string {
	switch t.Type {
	case rdfterm.TypeURI:
		return w.compact(t.Value)
	case rdfterm.TypeLiteral:
		s := `"` + rdfterm.EscapeString(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^" + w.compact(t.Datatype)
		}
		return s
	default:
		return t.String()
	}
}

func (w *Writer) compact(iri string) string {
	best, bestNS := "", ""
	for prefix, ns := range w.prefixes {
		if ns == "" || !strings.HasPrefix(iri, ns) || len(ns) <= len(bestNS) {
			continue
		}
		local := iri[len(ns):]
		if local != "" && !localNamePattern.MatchString(local) {
			continue
		}
		best, bestNS = prefix, ns
	}
	if bestNS == "" {
		return "<" + iri + ">"
	}
	return best + ":" + iri[len(bestNS):]
}

// String returns the accumulated Turtle output.
func (w *Writer) String() string {
	return w.sb.String()
}

// Write serializes triples as Turtle, grouping them by subject in first-seen
// order.
func Write(prefixes map[string]string, triples []rdfterm.Triple) string {
	w := NewWriter(prefixes)
	w.WritePrefixes()

	var order []string
	groups := make(map[string][]PredicateObject)
	subjects := make(map[string]rdfterm.Term)
	for _, tr := range triples {
		key := tr.Subject.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			subjects[key] = tr.Subject
		}
		groups[key] = append(groups[key], PredicateObject{Predicate: tr.Predicate, Object: tr.Object})
	}
	for _, key := range order {
		w.WriteSubject(subjects[key], groups[key])
	}
	return w.String()
}
