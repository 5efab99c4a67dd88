// Package normalizer turns one external record into an engine document
// following the field rules of a search application.
package normalizer

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// DefaultMaxTextLength caps long text values.
const DefaultMaxTextLength = 32000

// Ellipsis marks a truncated value.
const Ellipsis = "..."

// FormatField holds the record shape tag of every document.
const FormatField = "format"

// LookupSuffix names the companion listing the related code ids of a coded
// field's values.
const LookupSuffix = "_lookup"

// Record is one source record: a CSV row keyed by header, or a flattened
// JSON-lines object.
type Record map[string]interface{}

// RecordHooks are the per-application import extension points.
type RecordHooks interface {
	// FilterRecord may veto a record or return a rewritten copy.
	FilterRecord(rec Record, s *schema.Schema, format string) (bool, Record)
	// LoadRecord post-processes the fully shaped document.
	LoadRecord(rec Record, doc engine.Document, s *schema.Schema, format string) engine.Document
}

// RowError is a problem with one field of one source row.
type RowError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, field %s (%q): %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Result is the outcome of normalizing one record. Doc is nil when the record
// was skipped by a hook or could not be identified.
type Result struct {
	Doc      engine.Document
	Skipped  bool
	Errors   []*RowError
	Warnings []string
}

// Options configures a Normalizer.
type Options struct {
	// Format is the record shape being loaded; empty means the default shape.
	Format        string
	MaxTextLength int
	Hooks         RecordHooks
}

// Normalizer shapes records for one application and record format. It is not
// safe for concurrent use.
type Normalizer struct {
	schema   *schema.Schema
	fields   []*model.Field
	known    map[string]bool
	format   string
	maxText  int
	hooks    RecordHooks
	currency *currencyFormatter
}

// New prepares a Normalizer for s.
func New(s *schema.Schema, opts Options) *Normalizer {
	format := opts.Format
	if format == "" {
		format = schema.DefaultFormat
	}
	maxText := opts.MaxTextLength
	if maxText <= 0 {
		maxText = DefaultMaxTextLength
	}
	n := &Normalizer{
		schema:   s,
		fields:   s.FieldsForFormat(format),
		known:    map[string]bool{},
		format:   format,
		maxText:  maxText,
		hooks:    opts.Hooks,
		currency: newCurrencyFormatter(),
	}
	for _, f := range n.fields {
		n.known[f.FieldID] = true
	}
	return n
}

// Format returns the record shape tag applied to documents.
func (n *Normalizer) Format() string { return n.format }

// Fields returns the fields of the loaded record shape in schema order.
func (n *Normalizer) Fields() []*model.Field { return n.fields }

// Normalize shapes rec, the row-th record of its source.
func (n *Normalizer) Normalize(row int, rec Record) Result {
	var res Result
	if n.hooks != nil {
		keep, rewritten := n.hooks.FilterRecord(rec, n.schema, n.format)
		if !keep {
			res.Skipped = true
			return res
		}
		if rewritten != nil {
			rec = rewritten
		}
	}

	doc := engine.Document{}
	for _, f := range n.fields {
		raw, ok := rec[f.FieldID]
		if !ok {
			continue
		}
		n.coerce(row, f, raw, rec, doc, &res)
	}
	// companions already flattened by the reader are carried over as is
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if !n.known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, exists := doc[k]; !exists {
			doc[k] = rec[k]
		}
	}

	id, err := n.RecordID(rec)
	if err != nil {
		res.Errors = append(res.Errors, &RowError{Row: row, Field: query.IDField, Err: err})
		return res
	}
	doc[query.IDField] = id
	doc[FormatField] = n.format
	n.SetEmptyFields(doc)

	if n.hooks != nil {
		doc = n.hooks.LoadRecord(rec, doc, n.schema, n.format)
	}
	res.Doc = doc
	return res
}

func (n *Normalizer) coerce(row int, f *model.Field, raw interface{}, rec Record, doc engine.Document, res *Result) {
	if f.MultiValued {
		original := toString(raw)
		values := toList(raw, f.Delimiter)
		doc[f.FieldID] = values
		n.writeExports(f, original, doc)
		if f.IsCoded {
			n.resolveCodes(row, f, values, rec, doc, res)
		}
		return
	}

	value := strings.TrimSpace(toString(raw))
	switch f.Type {
	case model.TypeDate:
		n.coerceDate(row, f, value, doc, res)
	case model.TypeInt, model.TypeFloat:
		n.coerceNumber(row, f, value, doc, res)
	default:
		if isText(f.Type) && utf8.RuneCountInString(value) > n.maxText {
			value = truncate(value, n.maxText)
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %s truncated to %d characters", row, f.FieldID, n.maxText))
			log.Warnw("[Normalizer] text truncated", "search", n.schema.ID(), "field", f.FieldID, "row", row, "max", n.maxText)
		}
		doc[f.FieldID] = value
		n.writeExports(f, value, doc)
	}
	if f.IsCoded && value != "" {
		n.resolveCodes(row, f, []string{value}, rec, doc, res)
	}
}

func (n *Normalizer) coerceDate(row int, f *model.Field, value string, doc engine.Document, res *Result) {
	if value == "" {
		doc[f.FieldID] = ""
		doc[f.FieldID+"_en"] = ""
		doc[f.FieldID+"_fr"] = ""
		return
	}
	t, err := parseDate(value)
	if err != nil {
		res.Errors = append(res.Errors, &RowError{Row: row, Field: f.FieldID, Value: value, Err: err})
		doc[f.FieldID] = ""
		return
	}
	normalized := t.Format(DateLayout)
	doc[f.FieldID] = normalized
	doc[f.FieldID+"_en"] = FormatDate(t, model.LangEN)
	doc[f.FieldID+"_fr"] = FormatDate(t, model.LangFR)
	if f.IsDefaultYear {
		doc["year"] = t.Year()
	}
	if f.IsDefaultMonth {
		doc["month"] = int(t.Month())
	}
	n.writeExports(f, normalized, doc)
}

func (n *Normalizer) coerceNumber(row int, f *model.Field, value string, doc engine.Document, res *Result) {
	if value == "" {
		doc[f.FieldID] = ""
		return
	}
	var v float64
	if f.Type == model.TypeInt {
		i, err := parseInteger(value)
		if err != nil {
			res.Errors = append(res.Errors, &RowError{Row: row, Field: f.FieldID, Value: value, Err: err})
			doc[f.FieldID] = ""
			return
		}
		doc[f.FieldID] = i
		v = float64(i)
	} else {
		d, err := parseDecimal(value)
		if err != nil {
			res.Errors = append(res.Errors, &RowError{Row: row, Field: f.FieldID, Value: value, Err: err})
			doc[f.FieldID] = ""
			return
		}
		doc[f.FieldID] = d
		v = d
	}
	if f.IsCurrency {
		doc[f.FieldID+"_en"] = n.currency.Format(v, model.LangEN)
		doc[f.FieldID+"_fr"] = n.currency.Format(v, model.LangFR)
	}
	n.writeExports(f, value, doc)
}

// resolveCodes writes the label companions of a coded field, and the lookup
// companion when its codes name related codes. Unknown values become
// UnknownValue in both languages.
func (n *Normalizer) resolveCodes(row int, f *model.Field, values []string, rec Record, doc engine.Document, res *Result) {
	en := make([]string, 0, len(values))
	fr := make([]string, 0, len(values))
	var related []string
	seen := map[string]bool{}
	for _, v := range values {
		code, ok := n.schema.Code(f.FieldID, v)
		if !ok {
			en = append(en, schema.UnknownValue)
			fr = append(fr, schema.UnknownValue)
			if v != schema.UnknownValue {
				res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: unknown code %q for %s", row, v, f.FieldID))
				log.Warnw("[Normalizer] unknown code value", "search", n.schema.ID(), "field", f.FieldID, "value", v, "row", row)
			}
			continue
		}
		date := n.recordDate(code, rec)
		en = append(en, code.LabelAt(date, model.LangEN))
		fr = append(fr, code.LabelAt(date, model.LangFR))
		for _, id := range code.LookupCodes(date) {
			if !seen[id] {
				seen[id] = true
				related = append(related, id)
			}
		}
	}
	if len(related) > 0 {
		doc[f.FieldID+LookupSuffix] = related
	}
	if f.MultiValued {
		doc[f.FieldID+"_en"] = en
		doc[f.FieldID+"_fr"] = fr
		return
	}
	doc[f.FieldID+"_en"] = en[0]
	doc[f.FieldID+"_fr"] = fr[0]
}

// recordDate picks the date a chronologic label is resolved against: the
// code's lookup field when set, the default-year date field otherwise.
func (n *Normalizer) recordDate(code *model.Code, rec Record) time.Time {
	field := code.LookupDateField
	if field == "" {
		for _, f := range n.fields {
			if f.Type == model.TypeDate && f.IsDefaultYear {
				field = f.FieldID
				break
			}
		}
	}
	if field == "" {
		return time.Time{}
	}
	t, err := parseDate(strings.TrimSpace(toString(rec[field])))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (n *Normalizer) writeExports(f *model.Field, value string, doc engine.Document) {
	for _, ef := range schema.SplitList(f.ExportFields, ",") {
		doc[ef] = value
	}
}

func isText(t string) bool {
	switch t {
	case model.TypeTextEN, model.TypeTextFR, model.TypeText, model.TypeString:
		return true
	}
	return false
}

func truncate(v string, limit int) string {
	runes := []rune(v)
	return string(runes[:limit]) + Ellipsis
}

// toString renders a scalar or list source value.
func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []interface{}:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = toString(p)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// toList splits a multivalue source value on delim, trimming each element.
func toList(v interface{}, delim string) []string {
	if delim == "" {
		delim = ","
	}
	switch t := v.(type) {
	case []string:
		return trimAll(t)
	case []interface{}:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = toString(p)
		}
		return trimAll(parts)
	}
	s := toString(v)
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return trimAll(strings.Split(s, delim))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
