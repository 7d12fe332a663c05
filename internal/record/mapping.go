package record

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnMapping maps spreadsheet column headers to canonical field names.
// Columns not present in the mapping are ignored explicitly; the sync never
// coerces unknown columns into the record.
type ColumnMapping map[string]string

// Canonical field names accepted as mapping targets.
const (
	FieldDate        = "date"
	FieldChannel     = "channel"
	FieldSource      = "source"
	FieldReporter    = "reporter"
	FieldProblem     = "problem"
	FieldStatus      = "status"
	FieldDescription = "description"
	FieldDetail      = "detail"
	FieldReply       = "reply"
	FieldResult      = "result"
)

var validFields = map[string]bool{
	FieldDate:        true,
	FieldChannel:     true,
	FieldSource:      true,
	FieldReporter:    true,
	FieldProblem:     true,
	FieldStatus:      true,
	FieldDescription: true,
	FieldDetail:      true,
	FieldReply:       true,
	FieldResult:      true,
}

// DefaultMapping returns the column mapping for the current sheet layout.
func DefaultMapping() ColumnMapping {
	return ColumnMapping{
		"Date":             FieldDate,
		"Channel / Chat":   FieldChannel,
		"Original Source":  FieldSource,
		"Owner":            FieldReporter,
		"Problem_Category": FieldProblem,
		"Progress":         FieldStatus,
		"Category":         FieldDescription,
		"Issue":            FieldDetail,
		"Reply / Approach": FieldReply,
		"Result":           FieldResult,
	}
}

// LoadMapping reads a column mapping from a YAML file of the form
//
//	Date: date
//	Channel / Chat: channel
//
// and validates that every target is a known field name.
func LoadMapping(path string) (ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read column mapping: %w", err)
	}

	var m ColumnMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse column mapping %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid column mapping %s: %w", path, err)
	}
	return m, nil
}

// Validate checks that the mapping targets only known fields and covers the
// fields the normalizer cannot do without.
func (m ColumnMapping) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("mapping is empty")
	}

	targets := make(map[string]bool, len(m))
	for col, field := range m {
		if !validFields[field] {
			return fmt.Errorf("column %q maps to unknown field %q", col, field)
		}
		if targets[field] {
			return fmt.Errorf("field %q is mapped from more than one column", field)
		}
		targets[field] = true
	}

	for _, required := range []string{FieldDate, FieldDescription} {
		if !targets[required] {
			return fmt.Errorf("mapping is missing required field %q", required)
		}
	}
	return nil
}

// columnFor returns the sheet column header mapped to the given field,
// or "" if the field is unmapped.
func (m ColumnMapping) columnFor(field string) string {
	for col, f := range m {
		if f == field {
			return col
		}
	}
	return ""
}
