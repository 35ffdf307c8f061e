package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/c360studio/ontogate/loader"
	"github.com/c360studio/ontogate/sparql"
	"github.com/c360studio/ontogate/validation"
)

// healthPingTimeout bounds the backend probe made by GET /health.
const healthPingTimeout = 3 * time.Second

// RegisterHTTPHandlers registers the API under the given prefix. Handlers
// are registered as:
//
//	GET         <prefix>/health
//	POST        <prefix>/load
//	GET, POST   <prefix>/query
//	POST        <prefix>/query/validate
//	POST        <prefix>/validate
//	GET, POST, DELETE <prefix>/triples
//	GET         <prefix>/metrics
//
// Every other path under the prefix answers with a NotFoundError envelope.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and trailing slash.
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"health", c.handleHealth)
	mux.HandleFunc(prefix+"load", c.handleLoad)
	mux.HandleFunc(prefix+"query", c.handleQuery)
	mux.HandleFunc(prefix+"query/validate", c.handleQueryValidate)
	mux.HandleFunc(prefix+"validate", c.handleValidate)
	mux.HandleFunc(prefix+"triples", c.handleTriples)
	if c.metrics != nil {
		mux.Handle(prefix+"metrics", c.metrics.Handler())
	}
	mux.HandleFunc(prefix, c.handleNotFound)
}

func (c *Component) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, &APIError{
		Type:    TypeNotFound,
		Status:  http.StatusNotFound,
		Message: "Endpoint not found",
		Details: fmt.Sprintf("The requested endpoint %s does not exist", r.URL.Path),
	}, nil)
}

// ----------------------------------------------------------------------------
// GET /health
// ----------------------------------------------------------------------------

// HealthData is the payload of GET /health.
type HealthData struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Statistics HealthStatistics  `json:"statistics"`
	Uptime     string            `json:"uptime,omitempty"`
	Backend    any               `json:"backend,omitempty"`
}

// HealthStatistics are the counters reported by GET /health. Triples is -1
// when the backend could not be counted.
type HealthStatistics struct {
	LoadedFiles     int   `json:"loaded_files"`
	Namespaces      int   `json:"namespaces"`
	Triples         int   `json:"triples"`
	QueriesExecuted int64 `json:"queries_executed"`
	QueriesFailed   int64 `json:"queries_failed"`
	ValidationsRun  int64 `json:"validations_run"`
	ShapesLoaded    int   `json:"shapes_loaded"`
}

func componentState(ok bool) string {
	if ok {
		return "initialized"
	}
	return "not_initialized"
}

// handleHealth reports component state and counters. It always answers 200;
// a missing component or an unreachable backend makes the status "degraded".
func (c *Component) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, methodNotAllowed(r.Method, http.MethodGet), nil)
		return
	}

	data := HealthData{
		Components: map[string]string{
			"rdf_loader":   componentState(c.loader != nil),
			"query_engine": componentState(c.engine != nil),
			"validator":    componentState(c.validator != nil),
		},
		Statistics: HealthStatistics{Triples: -1},
	}
	healthy := c.loader != nil && c.engine != nil && c.validator != nil

	backendUp := false
	if c.loader != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := c.loader.Store().Ping(ctx)
		cancel()
		backendUp = err == nil
		if backendUp {
			data.Components["backend"] = "reachable"
		} else {
			data.Components["backend"] = "unreachable"
			c.logger.Warn("Backend ping failed", "error", err)
		}

		st := c.loader.Store()
		data.Statistics.LoadedFiles = len(st.FilePaths())
		data.Statistics.Namespaces = len(st.Prefixes())
		if backendUp {
			if n, err := st.Count(r.Context()); err == nil {
				data.Statistics.Triples = n
			}
		}
	} else {
		data.Components["backend"] = "unknown"
	}
	c.metrics.setBackendUp(backendUp)
	healthy = healthy && backendUp

	if c.engine != nil {
		qs := c.engine.Stats()
		data.Statistics.QueriesExecuted = qs.TotalQueries
		data.Statistics.QueriesFailed = qs.FailedQueries
	}
	if c.validator != nil {
		vs := c.validator.Stats()
		data.Statistics.ValidationsRun = vs.Validations
		data.Statistics.ShapesLoaded = vs.ShapesLoaded
	}
	if c.backend != nil {
		data.Backend = c.backend.Health()
	}
	if h := c.Health(); h.Healthy {
		data.Uptime = h.Uptime.Round(time.Second).String()
	}

	message := "Service is healthy"
	data.Status = "healthy"
	if !healthy {
		message = "Service is degraded"
		data.Status = "degraded"
	}
	writeSuccess(w, http.StatusOK, message, data)
}

// ----------------------------------------------------------------------------
// POST /load
// ----------------------------------------------------------------------------

// LoadRequest is the body of POST /load. Either Files or Directory must be
// given. Validate defaults to true.
type LoadRequest struct {
	Files           []string `json:"files"`
	Directory       string   `json:"directory,omitempty"`
	Pattern         string   `json:"pattern,omitempty"`
	Recursive       bool     `json:"recursive,omitempty"`
	Validate        *bool    `json:"validate,omitempty"`
	ContinueOnError bool     `json:"continue_on_error"`
	Force           bool     `json:"force,omitempty"`
}

// LoadData is the payload of POST /load.
type LoadData struct {
	SuccessfulFiles   []string          `json:"successful_files"`
	FailedFiles       []string          `json:"failed_files"`
	Errors            map[string]string `json:"errors,omitempty"`
	Skipped           []string          `json:"skipped_unchanged,omitempty"`
	TotalLoaded       int               `json:"total_loaded"`
	TriplesLoaded     int               `json:"triples_loaded"`
	TotalFilesInStore int               `json:"total_files_in_store"`
}

func (c *Component) loadData(outcome loader.Outcome) LoadData {
	data := LoadData{
		SuccessfulFiles:   outcome.SuccessfulPaths(),
		FailedFiles:       outcome.FailedPaths(),
		TotalLoaded:       len(outcome.Successful),
		TriplesLoaded:     outcome.Triples(),
		TotalFilesInStore: len(c.loader.Store().FilePaths()),
	}
	if len(outcome.Failed) > 0 {
		data.Errors = outcome.Errors()
	}
	for _, res := range outcome.Successful {
		if res.Skipped {
			data.Skipped = append(data.Skipped, res.Path)
		}
	}
	return data
}

// handleLoad loads files into the store. A load where some files failed
// under continue_on_error answers 207 Multi-Status.
func (c *Component) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, methodNotAllowed(r.Method, http.MethodPost), nil)
		return
	}
	if c.loader == nil {
		writeError(w, notInitialized("RDF loader"), nil)
		return
	}

	var req LoadRequest
	if apiErr := decodeJSON(w, r, &req, false); apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}
	if len(req.Files) == 0 && req.Directory == "" {
		writeError(w, badRequest("No files specified", "Provide a non-empty files list or a directory"), nil)
		return
	}

	opts := loader.Options{Validate: true, ContinueOnError: req.ContinueOnError, Force: req.Force}
	if req.Validate != nil {
		opts.Validate = *req.Validate
	}

	var (
		outcome loader.Outcome
		err     error
	)
	if len(req.Files) > 0 {
		c.logger.Info("Loading RDF files", "count", len(req.Files), "continue_on_error", opts.ContinueOnError)
		outcome, err = c.loader.LoadFiles(r.Context(), req.Files, opts)
	} else {
		c.logger.Info("Loading RDF directory", "dir", req.Directory, "pattern", req.Pattern)
		outcome, err = c.loader.LoadDirectory(r.Context(), req.Directory, req.Pattern, req.Recursive, opts)
	}
	c.metrics.observeLoad(len(outcome.Successful), len(outcome.Failed))

	data := c.loadData(outcome)
	if err != nil {
		writeError(w, mapError(err, "Failed to load files"), data)
		return
	}

	message := fmt.Sprintf("Loaded %d files successfully", len(outcome.Successful))
	status := http.StatusOK
	if len(outcome.Failed) > 0 {
		message += fmt.Sprintf(", %d files failed", len(outcome.Failed))
		status = http.StatusMultiStatus
	}
	writeSuccess(w, status, message, data)
}

// ----------------------------------------------------------------------------
// GET, POST /query
// ----------------------------------------------------------------------------

// QueryData is the envelope payload for non-SPARQL-JSON query output.
type QueryData struct {
	Results        any     `json:"results"`
	QueryType      string  `json:"query_type"`
	ResultCount    int     `json:"result_count"`
	ExecutionTime  float64 `json:"execution_time"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	OutputFormat   string  `json:"output_format"`
}

// handleQuery executes a SPARQL query. sparql_json output is written as the
// bare results document so that SPARQL clients can consume it directly;
// other formats use the envelope.
func (c *Component) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, methodNotAllowed(r.Method, http.MethodGet, http.MethodPost), nil)
		return
	}
	if c.engine == nil {
		writeError(w, notInitialized("Query engine"), nil)
		return
	}

	in, apiErr := parseQueryInput(w, r)
	if apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}

	c.logger.Debug("Executing SPARQL query", "source", in.Source, "format", in.Format)
	start := time.Now()
	res, err := c.engine.Execute(r.Context(), sparql.Request{
		Query:    in.Query,
		Timeout:  in.Timeout,
		Bindings: in.Bindings,
	})
	elapsed := time.Since(start)
	if err != nil {
		form, _ := sparql.DetectForm(in.Query)
		c.metrics.observeQuery(form.Lower(), "error", elapsed)
		writeError(w, mapError(err, "Failed to execute query"), nil)
		return
	}
	c.metrics.observeQuery(res.Form.Lower(), "ok", elapsed)

	if in.Format == sparql.OutputSPARQLJSON {
		writeJSON(w, http.StatusOK, res.ToSPARQLJSON())
		return
	}

	var prefixes map[string]string
	if c.loader != nil {
		prefixes = c.loader.Store().Prefixes()
	}
	rendered, err := res.Render(in.Format, prefixes)
	if err != nil {
		writeError(w, mapError(err, "Failed to render query results"), nil)
		return
	}
	writeSuccess(w, http.StatusOK, "Query executed successfully", QueryData{
		Results:        rendered,
		QueryType:      res.Form.Lower(),
		ResultCount:    res.Len(),
		ExecutionTime:  roundSeconds(elapsed),
		TimeoutSeconds: res.Timeout.Seconds(),
		OutputFormat:   string(in.Format),
	})
}

// handleQueryValidate checks a query's syntax without executing it. It
// accepts the same request shapes as /query.
func (c *Component) handleQueryValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeError(w, methodNotAllowed(r.Method, http.MethodGet, http.MethodPost), nil)
		return
	}
	in, apiErr := parseQueryInput(w, r)
	if apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}
	query, err := sparql.ApplyBindings(in.Query, in.Bindings)
	if err != nil {
		writeError(w, mapError(err, "Failed to apply bindings"), nil)
		return
	}
	result := sparql.Validate(query)
	message := "Query syntax is valid"
	if !result.Valid {
		message = "Query syntax is invalid"
	}
	writeSuccess(w, http.StatusOK, message, result)
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}

// ----------------------------------------------------------------------------
// POST /validate
// ----------------------------------------------------------------------------

// ValidateRequest is the body of POST /validate. All fields are optional.
type ValidateRequest struct {
	ShapesFile   string `json:"shapes_file,omitempty"`
	ShapesDir    string `json:"shapes_dir,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	// FocusNode restricts the report to one node (IRI, prefixed name or
	// "_:label"); Shape further restricts it to one source shape.
	FocusNode string `json:"focus_node,omitempty"`
	Shape     string `json:"shape,omitempty"`
	// GroupBy adds a "groups" projection: focus_node, shape or severity.
	GroupBy string `json:"group_by,omitempty"`
	// Export writes the rendered report to the report directory.
	Export bool `json:"export,omitempty"`
}

// RenderedReport is the payload for non-JSON report formats.
type RenderedReport struct {
	Conforms   bool               `json:"conforms"`
	Summary    validation.Summary `json:"summary"`
	Format     validation.Format  `json:"format"`
	Report     string             `json:"report"`
	ExportedTo string             `json:"exported_to,omitempty"`
}

// handleValidate runs SHACL validation over the loaded data.
func (c *Component) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, methodNotAllowed(r.Method, http.MethodPost), nil)
		return
	}
	if c.validator == nil {
		writeError(w, notInitialized("Validator"), nil)
		return
	}

	var req ValidateRequest
	if apiErr := decodeJSON(w, r, &req, true); apiErr != nil {
		writeError(w, apiErr, nil)
		return
	}
	format, err := validation.ParseFormat(req.OutputFormat)
	if err != nil {
		writeError(w, badRequest("Invalid output_format", err.Error()), nil)
		return
	}
	switch req.GroupBy {
	case "", "focus_node", "shape", "severity":
	default:
		writeError(w, badRequest("Invalid group_by", "group_by must be focus_node, shape or severity"), nil)
		return
	}

	if req.ShapesFile != "" {
		c.logger.Info("Loading shapes", "file", req.ShapesFile)
		if err := c.validator.LoadShapes(req.ShapesFile); err != nil {
			c.metrics.observeValidation("error")
			writeError(w, mapError(err, "Failed to load shapes"), nil)
			return
		}
	}
	if req.ShapesDir != "" {
		loaded, failed := c.validator.LoadShapesDirectory(req.ShapesDir, "")
		c.logger.Info("Loaded shapes directory", "dir", req.ShapesDir, "loaded", len(loaded), "failed", len(failed))
		if len(failed) > 0 {
			files := slices.Sorted(maps.Keys(failed))
			c.metrics.observeValidation("error")
			writeError(w, mapError(failed[files[0]], "Failed to load shapes"), map[string]any{
				"shapes_loaded": loaded,
				"failed_files":  files,
			})
			return
		}
	}
	if !c.validator.HasShapes() {
		writeError(w, badRequest("No SHACL shapes loaded",
			"Load shapes using the shapes_file parameter or load them beforehand"), nil)
		return
	}

	var report *validation.Report
	if req.FocusNode != "" {
		report, err = c.validator.ValidateNode(r.Context(), req.FocusNode, req.Shape)
	} else {
		report, err = c.validator.Validate(r.Context())
	}
	if err != nil {
		c.metrics.observeValidation("error")
		writeError(w, mapError(err, "Failed to run validation"), nil)
		return
	}
	if report.Conforms() {
		c.metrics.observeValidation("conforms")
	} else {
		c.metrics.observeValidation("violations")
	}

	summary := report.Summary()
	message := "Validation completed"
	if !report.Conforms() {
		message += fmt.Sprintf(" with %d violations", summary.ViolationCount)
	}

	var exportedTo string
	if req.Export {
		if c.reportDir == "" {
			writeError(w, badRequest("Report export is not configured", nil), nil)
			return
		}
		exportedTo = filepath.Join(c.reportDir, "validation-"+report.ID()+format.Extension())
		if err := validation.Export(report, exportedTo, format); err != nil {
			writeError(w, mapError(err, "Failed to export report"), nil)
			return
		}
	}

	if format != validation.FormatJSON {
		rendered, err := report.Render(format)
		if err != nil {
			writeError(w, mapError(err, "Failed to render report"), nil)
			return
		}
		writeSuccess(w, http.StatusOK, message, RenderedReport{
			Conforms:   report.Conforms(),
			Summary:    summary,
			Format:     format,
			Report:     rendered,
			ExportedTo: exportedTo,
		})
		return
	}

	if req.GroupBy == "" && exportedTo == "" {
		writeSuccess(w, http.StatusOK, message, report)
		return
	}

	// Extend the report document with the requested extras.
	raw, err := json.Marshal(report)
	if err != nil {
		writeError(w, mapError(err, "Failed to encode report"), nil)
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeError(w, mapError(err, "Failed to encode report"), nil)
		return
	}
	if req.GroupBy != "" {
		doc["groups"] = groupReport(report, req.GroupBy)
	}
	if exportedTo != "" {
		doc["exported_to"] = exportedTo
	}
	writeSuccess(w, http.StatusOK, message, doc)
}

func groupReport(report *validation.Report, by string) map[string][]validation.Result {
	switch by {
	case "shape":
		return report.GroupByShape()
	case "severity":
		out := make(map[string][]validation.Result)
		for sev, results := range report.GroupBySeverity() {
			out[sev.String()] = results
		}
		return out
	default:
		return report.GroupByFocusNode()
	}
}
