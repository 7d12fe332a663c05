package record

import (
	"fmt"
	"strings"

	"github.com/zlyuan/issuedash/internal/sheet"
)

// Rejection describes a row that could not be normalized. Rejections are
// collected by the orchestrator and reported in the run summary; they never
// abort a sync.
type Rejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("row %d: %s", r.Row, r.Reason)
}

// Normalizer converts raw sheet rows into Issues according to a column
// mapping. Columns outside the mapping are ignored.
type Normalizer struct {
	mapping ColumnMapping
}

// NewNormalizer creates a normalizer. A nil mapping uses DefaultMapping.
func NewNormalizer(mapping ColumnMapping) (*Normalizer, error) {
	if mapping == nil {
		mapping = DefaultMapping()
	}
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid column mapping: %w", err)
	}
	return &Normalizer{mapping: mapping}, nil
}

// field extracts the trimmed value of a canonical field from the row,
// or "" if the field's column is unmapped or absent.
func (n *Normalizer) field(row sheet.Row, name string) string {
	col := n.mapping.columnFor(name)
	if col == "" {
		return ""
	}
	return strings.TrimSpace(row.Values[col])
}

// Normalize converts one raw row into an Issue, or a Rejection explaining
// why the row is unusable. Exactly one of the return values is non-nil.
func (n *Normalizer) Normalize(row sheet.Row) (*Issue, *Rejection) {
	rawDate := n.field(row, FieldDate)
	if rawDate == "" {
		return nil, &Rejection{Row: row.Index, Reason: "missing date"}
	}
	date, ok := ParseDate(rawDate)
	if !ok {
		return nil, &Rejection{Row: row.Index, Reason: fmt.Sprintf("unparseable date %q", rawDate)}
	}

	description := n.field(row, FieldDescription)
	if description == "" {
		return nil, &Rejection{Row: row.Index, Reason: "missing description"}
	}

	rawStatus := n.field(row, FieldStatus)

	iss := &Issue{
		Date:        date,
		Channel:     n.field(row, FieldChannel),
		Source:      n.field(row, FieldSource),
		Reporter:    n.field(row, FieldReporter),
		Problem:     n.field(row, FieldProblem),
		Status:      NormalizeStatus(rawStatus),
		RawStatus:   rawStatus,
		Description: description,
		Detail:      n.field(row, FieldDetail),
		Reply:       n.field(row, FieldReply),
		Result:      n.field(row, FieldResult),
	}
	iss.Finalize()

	return iss, nil
}

// NormalizeAll converts every row, separating accepted records from
// rejections. Duplicate identity keys within one snapshot collapse to the
// last occurrence (last-write-wins, matching sheet editing habits).
func (n *Normalizer) NormalizeAll(rows []sheet.Row) ([]*Issue, []Rejection) {
	var rejections []Rejection
	byKey := make(map[string]int)
	issues := make([]*Issue, 0, len(rows))

	for _, row := range rows {
		iss, rej := n.Normalize(row)
		if rej != nil {
			rejections = append(rejections, *rej)
			continue
		}
		if i, seen := byKey[iss.Key]; seen {
			issues[i] = iss
			continue
		}
		byKey[iss.Key] = len(issues)
		issues = append(issues, iss)
	}

	return issues, rejections
}
