// Package validation owns the SHACL validation report model and the wrapper
// that runs shapes against the store.
package validation

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/ontogate/rdfterm"
)

// UnknownShape is the GroupByShape key for results without a source shape.
const UnknownShape = "Unknown"

// Result is one SHACL validation result. Node references are bare IRIs or
// "_:label" blank nodes.
type Result struct {
	FocusNode        string        `json:"focus_node"`
	ResultPath       string        `json:"result_path,omitempty"`
	Value            *rdfterm.Term `json:"value,omitempty"`
	Message          string        `json:"message"`
	Severity         Severity      `json:"severity"`
	SourceConstraint string        `json:"source_constraint,omitempty"`
	SourceShape      string        `json:"source_shape,omitempty"`
}

func (r Result) valueKey() string {
	if r.Value == nil {
		return ""
	}
	return r.Value.String()
}

// less orders results by severity, then focus node, path, constraint,
// shape, message and value.
func (r Result) less(o Result) bool {
	switch {
	case r.Severity != o.Severity:
		return r.Severity < o.Severity
	case r.FocusNode != o.FocusNode:
		return r.FocusNode < o.FocusNode
	case r.ResultPath != o.ResultPath:
		return r.ResultPath < o.ResultPath
	case r.SourceConstraint != o.SourceConstraint:
		return r.SourceConstraint < o.SourceConstraint
	case r.SourceShape != o.SourceShape:
		return r.SourceShape < o.SourceShape
	case r.Message != o.Message:
		return r.Message < o.Message
	default:
		return r.valueKey() < o.valueKey()
	}
}

// Report is an immutable validation report. Conforms is derived from the
// results at construction: it is true iff no result is a Violation.
type Report struct {
	id           string
	conforms     bool
	results      []Result
	timestamp    time.Time
	shapesLoaded []string
	dataSources  []string
}

// Option configures NewReport.
type Option func(*Report)

// WithTimestamp sets the report time. The default is time.Now().
func WithTimestamp(t time.Time) Option {
	return func(r *Report) { r.timestamp = t }
}

// WithShapes records the shape files used.
func WithShapes(files []string) Option {
	return func(r *Report) { r.shapesLoaded = append([]string(nil), files...) }
}

// WithDataSources records the loaded data files.
func WithDataSources(files []string) Option {
	return func(r *Report) { r.dataSources = append([]string(nil), files...) }
}

// WithID sets the report ID. The default is a random UUID.
func WithID(id string) Option {
	return func(r *Report) { r.id = id }
}

// NewReport builds a report. Results are copied and sorted.
func NewReport(results []Result, opts ...Option) *Report {
	r := &Report{
		results:   make([]Result, len(results)),
		timestamp: time.Now().UTC(),
	}
	for i, res := range results {
		if res.Value != nil {
			v := *res.Value
			res.Value = &v
		}
		r.results[i] = res
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}

	sort.SliceStable(r.results, func(i, j int) bool { return r.results[i].less(r.results[j]) })

	r.conforms = true
	for _, res := range r.results {
		if res.Severity == SeverityViolation {
			r.conforms = false
			break
		}
	}
	return r
}

// ID returns the report identifier.
func (r *Report) ID() string { return r.id }

// Conforms reports whether the data conforms to the shapes.
func (r *Report) Conforms() bool { return r.conforms }

// Timestamp returns when the report was produced.
func (r *Report) Timestamp() time.Time { return r.timestamp }

// Len returns the number of results.
func (r *Report) Len() int { return len(r.results) }

// Results returns a copy of the ordered results.
func (r *Report) Results() []Result {
	return append([]Result(nil), r.results...)
}

// ShapesLoaded returns the shape files used.
func (r *Report) ShapesLoaded() []string {
	return append([]string(nil), r.shapesLoaded...)
}

// DataSources returns the data files loaded at validation time.
func (r *Report) DataSources() []string {
	return append([]string(nil), r.dataSources...)
}

// Filter returns a new report holding the results that match keep. The
// timestamp, shapes and data sources carry over.
func (r *Report) Filter(keep func(Result) bool) *Report {
	var kept []Result
	for _, res := range r.results {
		if keep(res) {
			kept = append(kept, res)
		}
	}
	return NewReport(kept,
		WithTimestamp(r.timestamp),
		WithShapes(r.shapesLoaded),
		WithDataSources(r.dataSources))
}

// Summary aggregates a report.
type Summary struct {
	Conforms            bool      `json:"conforms"`
	TotalResults        int       `json:"total_results"`
	ViolationCount      int       `json:"violation_count"`
	WarningCount        int       `json:"warning_count"`
	InfoCount           int       `json:"info_count"`
	ViolationPercentage float64   `json:"violation_percentage"`
	WarningPercentage   float64   `json:"warning_percentage"`
	AffectedNodes       int       `json:"affected_nodes"`
	MostAffectedNode    string    `json:"most_affected_node,omitempty"`
	ShapesLoaded        int       `json:"shapes_loaded"`
	DataSources         int       `json:"data_sources"`
	Timestamp           time.Time `json:"timestamp"`
}

// Count returns the number of results with severity s.
func (s Summary) Count(sev Severity) int {
	switch sev {
	case SeverityWarning:
		return s.WarningCount
	case SeverityInfo:
		return s.InfoCount
	default:
		return s.ViolationCount
	}
}

// Summary computes counts, percentages and the most affected node. Ties
// for most affected node go to the node that sorts first.
func (r *Report) Summary() Summary {
	s := Summary{
		Conforms:     r.conforms,
		TotalResults: len(r.results),
		ShapesLoaded: len(r.shapesLoaded),
		DataSources:  len(r.dataSources),
		Timestamp:    r.timestamp,
	}

	perNode := make(map[string]int)
	var nodeOrder []string
	for _, res := range r.results {
		switch res.Severity {
		case SeverityViolation:
			s.ViolationCount++
		case SeverityWarning:
			s.WarningCount++
		case SeverityInfo:
			s.InfoCount++
		}
		if _, seen := perNode[res.FocusNode]; !seen {
			nodeOrder = append(nodeOrder, res.FocusNode)
		}
		perNode[res.FocusNode]++
	}

	if s.TotalResults > 0 {
		s.ViolationPercentage = percentage(s.ViolationCount, s.TotalResults)
		s.WarningPercentage = percentage(s.WarningCount, s.TotalResults)
	}

	s.AffectedNodes = len(perNode)
	sort.Strings(nodeOrder)
	best := 0
	for _, n := range nodeOrder {
		if perNode[n] > best {
			best = perNode[n]
			s.MostAffectedNode = n
		}
	}
	return s
}

func percentage(n, total int) float64 {
	return math.Round(float64(n)*10000/float64(total)) / 100
}

// GroupByFocusNode maps each focus node to its ordered results.
func (r *Report) GroupByFocusNode() map[string][]Result {
	out := make(map[string][]Result)
	for _, res := range r.results {
		out[res.FocusNode] = append(out[res.FocusNode], res)
	}
	return out
}

// GroupBySeverity maps each severity present to its ordered results.
func (r *Report) GroupBySeverity() map[Severity][]Result {
	out := make(map[Severity][]Result)
	for _, res := range r.results {
		out[res.Severity] = append(out[res.Severity], res)
	}
	return out
}

// GroupByShape maps each source shape to its ordered results. Results with
// no source shape are keyed UnknownShape.
func (r *Report) GroupByShape() map[string][]Result {
	out := make(map[string][]Result)
	for _, res := range r.results {
		key := res.SourceShape
		if key == "" {
			key = UnknownShape
		}
		out[key] = append(out[key], res)
	}
	return out
}

// reportJSON is the wire form of a Report.
type reportJSON struct {
	ID           string    `json:"id"`
	Conforms     bool      `json:"conforms"`
	Timestamp    time.Time `json:"timestamp"`
	Summary      Summary   `json:"summary"`
	Results      []Result  `json:"results"`
	ShapesLoaded []string  `json:"shapes_loaded"`
	DataSources  []string  `json:"data_sources"`
}

// MarshalJSON encodes the report with its summary.
func (r *Report) MarshalJSON() ([]byte, error) {
	results := r.results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(reportJSON{
		ID:           r.id,
		Conforms:     r.conforms,
		Timestamp:    r.timestamp,
		Summary:      r.Summary(),
		Results:      results,
		ShapesLoaded: nonNil(r.shapesLoaded),
		DataSources:  nonNil(r.dataSources),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
