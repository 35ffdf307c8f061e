package validation

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/ontogate/vocabulary/shacl"
)

// Severity is the SHACL result severity. The zero value is Violation.
type Severity int

// Severities in descending order of importance.
const (
	SeverityViolation Severity = iota
	SeverityWarning
	SeverityInfo
)

// Severities lists every severity in report order.
var Severities = []Severity{SeverityViolation, SeverityWarning, SeverityInfo}

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	default:
		return "Violation"
	}
}

// IRI returns the sh: severity IRI.
func (s Severity) IRI() string {
	switch s {
	case SeverityWarning:
		return shacl.Warning
	case SeverityInfo:
		return shacl.Info
	default:
		return shacl.Violation
	}
}

// SeverityFromIRI maps a severity IRI. Unknown IRIs map to Violation with
// ok false.
func SeverityFromIRI(iri string) (s Severity, ok bool) {
	switch iri {
	case shacl.Violation:
		return SeverityViolation, true
	case shacl.Warning:
		return SeverityWarning, true
	case shacl.Info:
		return SeverityInfo, true
	default:
		return SeverityViolation, false
	}
}

// ParseSeverity accepts "Violation", "Warning" or "Info".
func ParseSeverity(name string) (Severity, error) {
	for _, s := range Severities {
		if s.String() == name {
			return s, nil
		}
	}
	return SeverityViolation, fmt.Errorf("unknown severity %q", name)
}

// MarshalJSON encodes the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
