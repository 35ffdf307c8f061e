// Package shacl holds the IRIs of the SHACL and RDF terms used when reading
// and writing validation reports.
package shacl

// Namespace is the base IRI of the W3C SHACL vocabulary.
const Namespace = "http://www.w3.org/ns/shacl#"

// Standard namespaces that appear in shapes and reports.
const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"

	// ReportNamespace carries the summary predicates ontogate adds to
	// serialized reports.
	ReportNamespace = "https://ontogate.dev/report#"
)

// Class IRIs.
const (
	ClassValidationReport = Namespace + "ValidationReport"
	ClassValidationResult = Namespace + "ValidationResult"
	ClassNodeShape        = Namespace + "NodeShape"
	ClassPropertyShape    = Namespace + "PropertyShape"
)

// Report and result predicates.
const (
	Conforms                  = Namespace + "conforms"
	Result                    = Namespace + "result"
	FocusNode                 = Namespace + "focusNode"
	ResultPath                = Namespace + "resultPath"
	Value                     = Namespace + "value"
	ResultMessage             = Namespace + "resultMessage"
	ResultSeverity            = Namespace + "resultSeverity"
	SourceConstraintComponent = Namespace + "sourceConstraintComponent"
	SourceShape               = Namespace + "sourceShape"
)

// Severity IRIs.
const (
	Violation = Namespace + "Violation"
	Warning   = Namespace + "Warning"
	Info      = Namespace + "Info"
)

// RDF and XSD terms.
const (
	RDFType     = RDFNamespace + "type"
	LangString  = RDFNamespace + "langString"
	XSDString   = XSDNamespace + "string"
	XSDBoolean  = XSDNamespace + "boolean"
	XSDInteger  = XSDNamespace + "integer"
	XSDDecimal  = XSDNamespace + "decimal"
	XSDDouble   = XSDNamespace + "double"
	XSDDateTime = XSDNamespace + "dateTime"
	OWLClass    = OWLNamespace + "Class"
)

// Summary predicates written alongside sh:conforms.
const (
	TotalResults = ReportNamespace + "totalResults"
	Violations   = ReportNamespace + "violations"
	Warnings     = ReportNamespace + "warnings"
	Infos        = ReportNamespace + "infos"
	ShapesLoaded = ReportNamespace + "shapesLoaded"
	Generated    = ReportNamespace + "generated"
)

// DefaultPrefixes returns the prefix bindings used when writing reports.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"sh":   Namespace,
		"rdf":  RDFNamespace,
		"rdfs": RDFSNamespace,
		"xsd":  XSDNamespace,
		"og":   ReportNamespace,
	}
}
