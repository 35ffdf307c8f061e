package validation

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/c360studio/ontogate/rdfterm"
	"github.com/c360studio/ontogate/turtle"
	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// Format is a report rendering.
type Format string

// Report formats.
const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatTurtle   Format = "turtle"
)

// ParseFormat maps a format name. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatMarkdown, FormatHTML, FormatTurtle:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "ttl":
		return FormatTurtle, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", name)
	}
}

// MIMEType returns the content type of the rendering.
func (f Format) MIMEType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatTurtle:
		return "text/turtle; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension for exports.
func (f Format) Extension() string {
	switch f {
	case FormatText:
		return ".txt"
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatTurtle:
		return ".ttl"
	default:
		return ".json"
	}
}

// Render renders the report in format f.
func (r *Report) Render(f Format) (string, error) {
	switch f {
	case FormatText:
		return r.ToText(), nil
	case FormatMarkdown:
		return r.ToMarkdown(), nil
	case FormatHTML:
		return r.ToHTML()
	case FormatTurtle:
		return r.ToTurtle(), nil
	case FormatJSON, "":
		data, err := r.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("marshal report: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported report format %q", f)
	}
}

func integer(n int) rdfterm.Term {
	return rdfterm.TypedLiteral(strconv.Itoa(n), shacl.XSDInteger)
}

func nodeTerm(ref string) rdfterm.Term {
	return rdfterm.ParseNode(ref)
}

// ToTurtle serializes the report as a SHACL ValidationReport graph with
// og: summary counts.
func (r *Report) ToTurtle() string {
	s := r.Summary()
	w := turtle.NewWriter(shacl.DefaultPrefixes())
	w.WriteComment(fmt.Sprintf("Validation report %s", r.id))
	w.WritePrefixes()

	conforms := rdfterm.TypedLiteral(strconv.FormatBool(r.conforms), shacl.XSDBoolean)
	pairs := []turtle.PredicateObject{
		{Predicate: rdfterm.IRI(shacl.RDFType), Object: rdfterm.IRI(shacl.ClassValidationReport)},
		{Predicate: rdfterm.IRI(shacl.Conforms), Object: conforms},
		{Predicate: rdfterm.IRI(shacl.TotalResults), Object: integer(s.TotalResults)},
		{Predicate: rdfterm.IRI(shacl.Violations), Object: integer(s.ViolationCount)},
		{Predicate: rdfterm.IRI(shacl.Warnings), Object: integer(s.WarningCount)},
		{Predicate: rdfterm.IRI(shacl.Infos), Object: integer(s.InfoCount)},
		{Predicate: rdfterm.IRI(shacl.ShapesLoaded), Object: integer(s.ShapesLoaded)},
		{Predicate: rdfterm.IRI(shacl.Generated), Object: rdfterm.TypedLiteral(r.timestamp.UTC().Format(time.RFC3339), shacl.XSDDateTime)},
	}
	for i := range r.results {
		pairs = append(pairs, turtle.PredicateObject{
			Predicate: rdfterm.IRI(shacl.Result),
			Object:    rdfterm.Blank(fmt.Sprintf("result%d", i)),
		})
	}
	w.WriteSubject(rdfterm.Blank("report"), pairs)

	for i, res := range r.results {
		rp := []turtle.PredicateObject{
			{Predicate: rdfterm.IRI(shacl.RDFType), Object: rdfterm.IRI(shacl.ClassValidationResult)},
			{Predicate: rdfterm.IRI(shacl.FocusNode), Object: nodeTerm(res.FocusNode)},
			{Predicate: rdfterm.IRI(shacl.ResultSeverity), Object: rdfterm.IRI(res.Severity.IRI())},
		}
		if res.ResultPath != "" {
			rp = append(rp, turtle.PredicateObject{Predicate: rdfterm.IRI(shacl.ResultPath), Object: nodeTerm(res.ResultPath)})
		}
		if res.Value != nil {
			rp = append(rp, turtle.PredicateObject{Predicate: rdfterm.IRI(shacl.Value), Object: *res.Value})
		}
		if res.Message != "" {
			rp = append(rp, turtle.PredicateObject{Predicate: rdfterm.IRI(shacl.ResultMessage), Object: rdfterm.Literal(res.Message)})
		}
		if res.SourceConstraint != "" {
			rp = append(rp, turtle.PredicateObject{Predicate: rdfterm.IRI(shacl.SourceConstraintComponent), Object: nodeTerm(res.SourceConstraint)})
		}
		if res.SourceShape != "" {
			rp = append(rp, turtle.PredicateObject{Predicate: rdfterm.IRI(shacl.SourceShape), Object: nodeTerm(res.SourceShape)})
		}
		w.WriteSubject(rdfterm.Blank(fmt.Sprintf("result%d", i)), rp)
	}
	return w.String()
}

// ToText renders a plain-text report grouped by severity.
func (r *Report) ToText() string {
	s := r.Summary()
	var sb strings.Builder

	sb.WriteString("SHACL Validation Report\n")
	sb.WriteString(strings.Repeat("=", 23) + "\n")
	fmt.Fprintf(&sb, "Generated: %s\n", r.timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Conforms:  %s\n", yesNo(r.conforms))
	fmt.Fprintf(&sb, "Results:   %d (%d violations, %d warnings, %d info)\n",
		s.TotalResults, s.ViolationCount, s.WarningCount, s.InfoCount)
	if s.AffectedNodes > 0 {
		fmt.Fprintf(&sb, "Affected nodes: %d (most affected: %s)\n", s.AffectedNodes, s.MostAffectedNode)
	}
	if len(r.shapesLoaded) > 0 {
		fmt.Fprintf(&sb, "Shapes: %s\n", strings.Join(r.shapesLoaded, ", "))
	}

	if len(r.results) == 0 {
		sb.WriteString("\nNo validation issues found.\n")
		return sb.String()
	}

	groups := r.GroupBySeverity()
	for _, sev := range Severities {
		results := groups[sev]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d)\n%s\n", strings.ToUpper(sev.String()), len(results), strings.Repeat("-", 40))
		for i, res := range results {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, res.FocusNode)
			if res.ResultPath != "" {
				fmt.Fprintf(&sb, "   Path:       %s\n", res.ResultPath)
			}
			if res.Value != nil {
				fmt.Fprintf(&sb, "   Value:      %s\n", res.Value.String())
			}
			if res.Message != "" {
				fmt.Fprintf(&sb, "   Message:    %s\n", res.Message)
			}
			if res.SourceShape != "" {
				fmt.Fprintf(&sb, "   Shape:      %s\n", res.SourceShape)
			}
			if res.SourceConstraint != "" {
				fmt.Fprintf(&sb, "   Constraint: %s\n", res.SourceConstraint)
			}
		}
	}
	return sb.String()
}

// ToMarkdown renders a GitHub-flavored Markdown report with one table per
// severity.
func (r *Report) ToMarkdown() string {
	s := r.Summary()
	var sb strings.Builder

	sb.WriteString("# SHACL Validation Report\n\n")
	fmt.Fprintf(&sb, "- **Generated:** %s\n", r.timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Conforms:** %s\n", yesNo(r.conforms))
	fmt.Fprintf(&sb, "- **Total results:** %d\n", s.TotalResults)
	fmt.Fprintf(&sb, "- **Violations:** %d (%.2f%%)\n", s.ViolationCount, s.ViolationPercentage)
	fmt.Fprintf(&sb, "- **Warnings:** %d (%.2f%%)\n", s.WarningCount, s.WarningPercentage)
	fmt.Fprintf(&sb, "- **Info:** %d\n", s.InfoCount)
	if s.MostAffectedNode != "" {
		fmt.Fprintf(&sb, "- **Most affected node:** `%s`\n", s.MostAffectedNode)
	}

	if len(r.results) == 0 {
		sb.WriteString("\nNo validation issues found.\n")
		return sb.String()
	}

	groups := r.GroupBySeverity()
	for _, sev := range Severities {
		results := groups[sev]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s (%d)\n\n", sev, len(results))
		sb.WriteString("| Focus node | Path | Value | Message | Shape |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, res := range results {
			value := ""
			if res.Value != nil {
				value = res.Value.String()
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				cell(res.FocusNode, true), cell(res.ResultPath, true), cell(value, true),
				cell(res.Message, false), cell(res.SourceShape, true))
		}
	}

	shapes := r.GroupByShape()
	if len(shapes) > 1 {
		names := make([]string, 0, len(shapes))
		for name := range shapes {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("\n## Results by shape\n\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "- `%s`: %d\n", name, len(shapes[name]))
		}
	}
	return sb.String()
}

func cell(s string, code bool) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if code {
		return "`" + strings.ReplaceAll(s, "`", "'") + "`"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// ToHTML renders the Markdown report as a standalone HTML page.
func (r *Report) ToHTML() (string, error) {
	var body bytes.Buffer
	if err := markdownRenderer().Convert([]byte(r.ToMarkdown()), &body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString("Validation report "+r.id))
	sb.WriteString("<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}" +
		"td,th{border:1px solid #ccc;padding:4px 8px;text-align:left}</style>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}
