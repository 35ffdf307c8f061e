package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360studio/ontogate/events"
	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/store"
	"github.com/c360studio/ontogate/turtle"
	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// maxTripleSample caps the limit parameter of GET /triples.
const maxTripleSample = 10_000

// TripleInput is one statement in a /triples request. Subject and
// predicate are IRIs, prefixed names or "_:label" blank nodes. Object is
// read the same way when ObjectType is "uri" or "bnode", and as a literal
// when it is "literal". An empty ObjectType treats "<...>", "_:..." and
// absolute or prefixed IRIs as nodes and anything else as a literal.
type TripleInput struct {
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Object     string `json:"object"`
	ObjectType string `json:"object_type,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Datatype   string `json:"datatype,omitempty"`
}

func (c *Component) handleTriples(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.handleGetTriples(w, r)
	case http.MethodPost:
		c.handleAddTriples(w, r)
	case http.MethodDelete:
		c.handleDeleteTriples(w, r)
	default:
		writeError(w, methodNotAllowed(r.Method, http.MethodGet, http.MethodPost, http.MethodDelete), nil)
	}
}

// ----------------------------------------------------------------------------
// GET /triples
// ----------------------------------------------------------------------------

// TriplesData is the payload of GET /triples.
type TriplesData struct {
	LoadedFiles     []store.FileEntry      `json:"loaded_files"`
	FileCount       int                    `json:"file_count"`
	Namespaces      map[string]string      `json:"namespaces"`
	NamespaceCount  int                    `json:"namespace_count"`
	PrefixConflicts []store.PrefixConflict `json:"prefix_conflicts,omitempty"`
	TotalTriples    int                    `json:"total_triples"`
	Limit           int                    `json:"limit,omitempty"`
	Triples         []rdfterm.Triple       `json:"triples,omitempty"`
	NTriples        string                 `json:"ntriples,omitempty"`
}

// handleGetTriples describes the loaded state. With limit > 0 it also
// returns a sample of that many triples, as JSON terms or as N-Triples
// text when format=ntriples.
func (c *Component) handleGetTriples(w http.ResponseWriter, r *http.Request) {
	if c.loader == nil {
		writeError(w, notInitialized("RDF loader"), nil)
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, badRequest("Invalid limit", fmt.Sprintf("limit must be a non-negative integer, got %q", v)), nil)
			return
		}
		limit = min(n, maxTripleSample)
	}
	format := strings.ToLower(q.Get("format"))
	switch format {
	case "", "json", "ntriples", "nt":
	default:
		writeError(w, badRequest("Invalid format", "format must be json or ntriples"), nil)
		return
	}

	st := c.loader.Store()
	files := st.Files()
	namespaces := st.Prefixes()
	data := TriplesData{
		LoadedFiles:     files,
		FileCount:       len(files),
		Namespaces:      namespaces,
		NamespaceCount:  len(namespaces),
		PrefixConflicts: st.PrefixConflicts(),
		TotalTriples:    -1,
		Limit:           limit,
	}
	if n, err := st.Count(r.Context()); err == nil {
		data.TotalTriples = n
	} else {
		c.logger.Warn("Failed to count triples", "error", err)
	}

	if limit > 0 {
		if c.engine == nil {
			writeError(w, notInitialized("Query engine"), nil)
			return
		}
		sample, err := c.sampleTriples(r, limit)
		if err != nil {
			writeError(w, mapError(err, "Failed to retrieve triples"), nil)
			return
		}
		if format == "ntriples" || format == "nt" {
			data.NTriples = rdfterm.NTriples(sample)
		} else {
			data.Triples = sample
		}
	}

	writeSuccess(w, http.StatusOK, fmt.Sprintf("Retrieved information for %d loaded files", len(files)), data)
}

func (c *Component) sampleTriples(r *http.Request, limit int) ([]rdfterm.Triple, error) {
	res, err := c.engine.Execute(r.Context(), sparql.Request{
		Query: fmt.Sprintf("SELECT ?s ?p ?o WHERE { ?s ?p ?o } LIMIT %d", limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]rdfterm.Triple, 0, len(res.Bindings))
	for _, b := range res.Bindings {
		out = append(out, rdfterm.Triple{Subject: b["s"], Predicate: b["p"], Object: b["o"]})
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// POST /triples
// ----------------------------------------------------------------------------

// AddTriplesRequest is the body of POST /triples: either a Turtle (or
// N-Triples, with format "ntriples") document or a list of triples.
type AddTriplesRequest struct {
	Turtle  string        `json:"turtle,omitempty"`
	Format  string        `json:"format,omitempty"`
	Triples []TripleInput `json:"triples,omitempty"`
}

func (c *Component) handleAddTriples(w http.ResponseWriter, r *http.Request) {
	if c.loader == nil {
		writeError(w, notInitialized("RDF loader"), nil)
		return
	}
	var req AddTriplesRequest
	if apiErr := decodeJSON(w, r, &req, false); apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}
	st := c.loader.Store()

	var added int
	switch {
	case strings.TrimSpace(req.Turtle) != "":
		format := turtle.FormatTurtle
		if f := strings.ToLower(req.Format); f == "ntriples" || f == "nt" {
			format = turtle.FormatNTriples
		}
		data := []byte(req.Turtle)
		n, err := turtle.Check(data, format)
		if err != nil {
			writeError(w, mapError(err, "Invalid RDF syntax"), nil)
			return
		}
		if n == 0 {
			writeError(w, badRequest("Document contains no triples", nil), nil)
			return
		}
		if err := st.Insert(r.Context(), data, format, turtle.ExtractPrefixes(data)); err != nil {
			writeError(w, mapError(err, "Failed to add triples"), nil)
			return
		}
		added = n
	case len(req.Triples) > 0:
		triples, apiErr := parseTriples(st, req.Triples)
		if apiErr != nil {
			writeError(w, apiErr, nil)
			return
		}
		if err := st.InsertTriples(r.Context(), triples); err != nil {
			writeError(w, mapError(err, "Failed to add triples"), nil)
			return
		}
		added = len(triples)
	default:
		writeError(w, badRequest("Provide either turtle or triples", nil), nil)
		return
	}

	c.logger.Info("Added triples", "count", added)
	c.metrics.observeTriples("add", added)
	c.emitter.TriplesChanged(r.Context(), events.TypeTriplesAdded, added)
	writeSuccess(w, http.StatusOK, "Triples added successfully", map[string]int{"triples_added": added})
}

// ----------------------------------------------------------------------------
// DELETE /triples
// ----------------------------------------------------------------------------

// DeleteTriplesRequest is the body of DELETE /triples.
type DeleteTriplesRequest struct {
	ClearAll bool          `json:"clear_all,omitempty"`
	Triples  []TripleInput `json:"triples,omitempty"`
}

// handleDeleteTriples clears the whole store (and the loaded shapes) with
// clear_all, or deletes the listed ground triples.
func (c *Component) handleDeleteTriples(w http.ResponseWriter, r *http.Request) {
	if c.loader == nil {
		writeError(w, notInitialized("RDF loader"), nil)
		return
	}
	var req DeleteTriplesRequest
	if apiErr := decodeJSON(w, r, &req, true); apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}

	if req.ClearAll {
		files, err := c.loader.Clear(r.Context())
		if err != nil {
			writeError(w, mapError(err, "Failed to clear store"), nil)
			return
		}
		shapes := 0
		if c.validator != nil {
			shapes = len(c.validator.LoadedShapes())
			c.validator.ClearShapes()
		}
		writeSuccess(w, http.StatusOK, "All triples cleared", map[string]int{
			"files_cleared":  files,
			"shapes_cleared": shapes,
		})
		return
	}

	if len(req.Triples) == 0 {
		writeError(w, badRequest("Provide either clear_all or triples", nil), nil)
		return
	}
	st := c.loader.Store()
	triples, apiErr := parseTriples(st, req.Triples)
	if apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}
	if err := st.DeleteTriples(r.Context(), triples); err != nil {
		writeError(w, mapError(err, "Failed to delete triples"), nil)
		return
	}

	c.logger.Info("Deleted triples", "count", len(triples))
	c.metrics.observeTriples("delete", len(triples))
	c.emitter.TriplesChanged(r.Context(), events.TypeTriplesDeleted, len(triples))
	writeSuccess(w, http.StatusOK, "Triples deleted successfully", map[string]int{"triples_deleted": len(triples)})
}

// ----------------------------------------------------------------------------
// Term parsing
// ----------------------------------------------------------------------------

// resolver expands prefixed names.
type resolver interface {
	Resolve(name string) (string, error)
}

// standardPrefixes resolves the W3C vocabulary prefixes when the loaded
// files have not declared them.
type standardPrefixes struct {
	resolver
}

var wellKnown = map[string]string{
	"rdf":  shacl.RDFNamespace,
	"rdfs": shacl.RDFSNamespace,
	"xsd":  shacl.XSDNamespace,
	"owl":  shacl.OWLNamespace,
	"sh":   shacl.Namespace,
}

func (s standardPrefixes) Resolve(name string) (string, error) {
	iri, err := s.resolver.Resolve(name)
	if errors.Is(err, store.ErrUndefinedPrefix) {
		prefix, local, _ := strings.Cut(name, ":")
		if ns, ok := wellKnown[prefix]; ok {
			return ns + local, nil
		}
	}
	return iri, err
}

func parseTriples(st resolver, in []TripleInput) ([]rdfterm.Triple, *APIError) {
	res := standardPrefixes{st}
	out := make([]rdfterm.Triple, 0, len(in))
	for i, t := range in {
		tr, err := parseTriple(res, t)
		if err == nil {
			err = tr.Validate()
		}
		if err != nil {
			return nil, badRequest(fmt.Sprintf("Invalid triple at index %d", i), err.Error())
		}
		out = append(out, tr)
	}
	return out, nil
}

func parseTriple(res resolver, in TripleInput) (rdfterm.Triple, error) {
	subject, err := parseNode(res, in.Subject)
	if err != nil {
		return rdfterm.Triple{}, fmt.Errorf("subject: %w", err)
	}
	var predicate rdfterm.Term
	if strings.TrimSpace(in.Predicate) == "a" {
		predicate = rdfterm.IRI(shacl.RDFType)
	} else if predicate, err = parseNode(res, in.Predicate); err != nil {
		return rdfterm.Triple{}, fmt.Errorf("predicate: %w", err)
	}

	var object rdfterm.Term
	switch strings.ToLower(in.ObjectType) {
	case "literal":
		object, err = literal(res, in)
	case "uri", "iri", "bnode":
		object, err = parseNode(res, in.Object)
	case "":
		if looksLikeNode(res, in.Object) && in.Lang == "" && in.Datatype == "" {
			object, err = parseNode(res, in.Object)
		} else {
			object, err = literal(res, in)
		}
	default:
		err = fmt.Errorf("unknown object_type %q", in.ObjectType)
	}
	if err != nil {
		return rdfterm.Triple{}, fmt.Errorf("object: %w", err)
	}
	return rdfterm.Triple{Subject: subject, Predicate: predicate, Object: object}, nil
}

func parseNode(res resolver, s string) (rdfterm.Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return rdfterm.Term{}, fmt.Errorf("empty value")
	}
	if strings.HasPrefix(s, "_:") {
		b := rdfterm.Blank(s)
		return b, b.Validate()
	}
	iri, err := res.Resolve(s)
	if err != nil {
		return rdfterm.Term{}, err
	}
	if err := rdfterm.ValidIRI(iri); err != nil {
		return rdfterm.Term{}, err
	}
	return rdfterm.IRI(iri), nil
}

func literal(res resolver, in TripleInput) (rdfterm.Term, error) {
	switch {
	case in.Lang != "":
		lit := rdfterm.LangLiteral(in.Object, in.Lang)
		return lit, lit.Validate()
	case in.Datatype != "":
		dt, err := res.Resolve(in.Datatype)
		if err != nil {
			return rdfterm.Term{}, fmt.Errorf("datatype: %w", err)
		}
		lit := rdfterm.TypedLiteral(in.Object, dt)
		return lit, lit.Validate()
	default:
		return rdfterm.Literal(in.Object), nil
	}
}

// looksLikeNode reports whether an untyped object reads as a node
// reference rather than text.
func looksLikeNode(res resolver, s string) bool {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || strings.ContainsAny(s, " \t\n"):
		return false
	case strings.HasPrefix(s, "_:"),
		strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"),
		strings.Contains(s, "://"),
		strings.HasPrefix(s, "urn:"):
		return true
	}
	if !strings.Contains(s, ":") {
		return false
	}
	_, err := res.Resolve(s)
	return err == nil
}
