// Package fusekitest provides an in-memory stand-in for a Fuseki dataset,
// for tests of code that talks to Fuseki over HTTP.
package fusekitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/turtle"
)

// ConformingReport is the SHACL report returned when no SHACL handler is set.
const ConformingReport = `@prefix sh: <http://www.w3.org/ns/shacl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .

_:report a sh:ValidationReport ;
    sh:conforms "true"^^xsd:boolean .
`

// Response is a scripted HTTP answer.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

// Server is a fake Fuseki server holding one dataset's default graph.
type Server struct {
	*httptest.Server

	dataset string

	mu      sync.Mutex
	triples map[string]rdfterm.Triple
	order   []string
	calls   map[string]int
	shapes  [][]byte
	queries []string
	failAll int

	queryHandler func(query string) Response
	shaclHandler func(shapes []byte) Response
}

// NewServer starts a fake server for dataset and closes it when the test ends.
func NewServer(t testing.TB, dataset string) *Server {
	t.Helper()
	s := &Server{
		dataset: dataset,
		triples: make(map[string]rdfterm.Triple),
		calls:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/$/ping", s.handlePing)
	mux.HandleFunc("/"+dataset+"/data", s.handleData)
	mux.HandleFunc("/"+dataset+"/update", s.handleUpdate)
	mux.HandleFunc("/"+dataset+"/sparql", s.handleQuery)
	mux.HandleFunc("/"+dataset+"/shacl", s.handleShacl)
	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// SetQueryHandler makes h answer SPARQL queries instead of the default
// evaluation over the stored triples. Nil restores the default.
func (s *Server) SetQueryHandler(h func(query string) Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryHandler = h
}

// SetShaclHandler makes h answer SHACL validation requests. Nil restores
// the conforming default.
func (s *Server) SetShaclHandler(h func(shapes []byte) Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shaclHandler = h
}

// FailWith makes every request answer with status until reset with 0.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = status
}

// Triples returns the stored triples in insertion order.
func (s *Server) Triples() []rdfterm.Triple {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rdfterm.Triple, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.triples[k])
	}
	return out
}

// Len returns the number of stored triples.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Calls returns how many requests hit an endpoint ("ping", "data", "update",
// "sparql", "shacl").
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastShapes returns the body of the most recent SHACL request.
func (s *Server) LastShapes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shapes) == 0 {
		return nil
	}
	return s.shapes[len(s.shapes)-1]
}

// Queries returns every query received, in order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Add stores triples directly.
func (s *Server) Add(triples ...rdfterm.Triple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(triples)
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		s.mu.Lock()
		s.calls[endpoint]++
		fail := s.failAll
		s.mu.Unlock()
		if fail != 0 {
			http.Error(w, http.StatusText(fail), fail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := turtle.FormatTurtle
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/n-triples") {
		format = turtle.FormatNTriples
	}
	triples, err := turtle.ParseBytes(body, format)
	if err != nil {
		http.Error(w, "Parse error: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if r.Method == http.MethodPut {
		s.clearLocked()
	}
	s.addLocked(triples)
	s.mu.Unlock()

	writeJSON(w, map[string]int{"tripleCount": len(triples)})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	update := strings.TrimSpace(r.PostForm.Get("update"))
	upper := strings.ToUpper(update)

	switch {
	case strings.HasPrefix(upper, "CLEAR"), strings.HasPrefix(upper, "DROP"), strings.HasPrefix(upper, "DELETE WHERE"):
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
	case strings.HasPrefix(upper, "INSERT DATA"), strings.HasPrefix(upper, "DELETE DATA"):
		open, closing := strings.Index(update, "{"), strings.LastIndex(update, "}")
		if open < 0 || closing < open {
			http.Error(w, "Parse error: line 1, column 1: missing braces", http.StatusBadRequest)
			return
		}
		triples, err := turtle.ParseBytes([]byte(update[open+1:closing]), turtle.FormatNTriples)
		if err != nil {
			http.Error(w, "Parse error: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		if strings.HasPrefix(upper, "INSERT") {
			s.addLocked(triples)
		} else {
			s.deleteLocked(triples)
		}
		s.mu.Unlock()
	default:
		http.Error(w, "Parse error: line 1, column 1: unsupported update", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.Form.Get("query")
	s.mu.Lock()
	s.queries = append(s.queries, query)
	handler := s.queryHandler
	s.mu.Unlock()

	if handler != nil {
		writeResponse(w, handler(query))
		return
	}
	writeResponse(w, s.evaluate(query))
}

func (s *Server) handleShacl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.shapes = append(s.shapes, body)
	handler := s.shaclHandler
	s.mu.Unlock()

	if handler != nil {
		writeResponse(w, handler(body))
		return
	}
	writeResponse(w, Response{ContentType: "text/turtle", Body: ConformingReport})
}

// evaluate answers the handful of query shapes the fake understands: triple
// counts, and SELECT/ASK/CONSTRUCT/DESCRIBE over every stored triple.
func (s *Server) evaluate(query string) Response {
	upper := strings.ToUpper(query)
	triples := s.Triples()

	if strings.Contains(upper, "COUNT(") {
		return jsonResponse(map[string]any{
			"head": map[string]any{"vars": []string{"count"}},
			"results": map[string]any{"bindings": []any{map[string]any{
				"count": rdfterm.TypedLiteral(fmt.Sprint(len(triples)), "http://www.w3.org/2001/XMLSchema#integer"),
			}}},
		})
	}

	switch firstKeyword(upper) {
	case "SELECT":
		bindings := make([]map[string]rdfterm.Term, 0, len(triples))
		for _, tr := range triples {
			bindings = append(bindings, map[string]rdfterm.Term{"s": tr.Subject, "p": tr.Predicate, "o": tr.Object})
		}
		return jsonResponse(map[string]any{
			"head":    map[string]any{"vars": []string{"s", "p", "o"}},
			"results": map[string]any{"bindings": bindings},
		})
	case "ASK":
		return jsonResponse(map[string]any{"head": map[string]any{}, "boolean": len(triples) > 0})
	case "CONSTRUCT", "DESCRIBE":
		return Response{ContentType: "text/turtle", Body: rdfterm.NTriples(triples)}
	default:
		return Response{Status: http.StatusBadRequest, ContentType: "text/plain",
			Body: "Parse error: \nLexical error at line 1, column 1.  Encountered: unknown query form"}
	}
}

func (s *Server) addLocked(triples []rdfterm.Triple) {
	for _, tr := range triples {
		k := tr.String()
		if _, ok := s.triples[k]; ok {
			continue
		}
		s.triples[k] = tr
		s.order = append(s.order, k)
	}
}

func (s *Server) deleteLocked(triples []rdfterm.Triple) {
	for _, tr := range triples {
		delete(s.triples, tr.String())
	}
	kept := s.order[:0]
	for _, k := range s.order {
		if _, ok := s.triples[k]; ok {
			kept = append(kept, k)
		}
	}
	s.order = kept
}

func (s *Server) clearLocked() {
	s.triples = make(map[string]rdfterm.Triple)
	s.order = nil
}

func firstKeyword(upper string) string {
	for _, f := range strings.Fields(upper) {
		switch f {
		case "SELECT", "ASK", "CONSTRUCT", "DESCRIBE":
			return f
		}
	}
	return ""
}

func jsonResponse(v any) Response {
	data, _ := json.Marshal(v)
	return Response{ContentType: "application/sparql-results+json", Body: string(data)}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
