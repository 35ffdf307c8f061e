package turtle

import (
	"regexp"
	"sort"
)

// Prefix is a namespace binding declared in a document.
type Prefix struct {
	Name string `json:"prefix"`
	IRI  string `json:"namespace"`
}

var (
	turtlePrefixPattern = regexp.MustCompile(`(?m)^\s*@prefix\s+([A-Za-z][\w.-]*)?:\s*<([^>]*)>\s*\.`)
	sparqlPrefixPattern = regexp.MustCompile(`(?mi)^\s*PREFIX\s+([A-Za-z][\w.-]*)?:\s*<([^>]*)>`)
)

// ExtractPrefixes returns the prefix declarations of a Turtle document in the
// order they appear. Both @prefix and SPARQL-style PREFIX forms are read. The
// empty prefix is returned with an empty Name.
func ExtractPrefixes(data []byte) []Prefix {
	type hit struct {
		pos int
		p   Prefix
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{turtlePrefixPattern, sparqlPrefixPattern} {
		for _, m := range re.FindAllSubmatchIndex(data, -1) {
			name := ""
			if m[2] >= 0 {
				name = string(data[m[2]:m[3]])
			}
			hits = append(hits, hit{pos: m[0], p: Prefix{Name: name, IRI: string(data[m[4]:m[5]])}})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]Prefix, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out
}
