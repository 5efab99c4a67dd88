package normalizer

import (
	"errors"
	"strings"

	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

// IDSeparator joins identifier components.
const IDSeparator = ","

// ErrNoRecordID is returned when no identifier can be composed for a record.
var ErrNoRecordID = errors.New("cannot compose record id")

// alternateIDPatterns are tried in order for alternate-format records that
// lack their natural identifier fields.
var alternateIDPatterns = [][]string{
	{"owner_org", "year", "month"},
	{"owner_org", "year", "quarter"},
	{"owner_org", "fiscal_year", "quarter"},
}

var slashReplacer = strings.NewReplacer("/", "_")

// RecordID composes the document id from the configured identifier fields.
// Components have "/" replaced so they cannot be mistaken for path segments.
func (n *Normalizer) RecordID(rec Record) (string, error) {
	if id, ok := joinID(rec, n.schema.IDFields()); ok {
		return id, nil
	}
	if n.format != schema.DefaultFormat {
		for _, pattern := range alternateIDPatterns {
			if id, ok := joinID(rec, pattern); ok {
				return id, nil
			}
		}
	}
	if id := strings.TrimSpace(toString(rec[query.IDField])); id != "" {
		return slashReplacer.Replace(id), nil
	}
	return "", ErrNoRecordID
}

func joinID(rec Record, fields []string) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		v := strings.TrimSpace(toString(rec[f]))
		if v == "" {
			return "", false
		}
		parts[i] = slashReplacer.Replace(v)
	}
	return strings.Join(parts, IDSeparator), true
}
