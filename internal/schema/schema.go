// Package schema holds the typed, read-only object graph of one search
// application: the application row, its ordered fields and their code tables.
package schema

import (
	"errors"
	"sort"
	"strings"

	"oc-search-go/internal/model"
)

// ErrNotFound is returned when an application or field is not in the schema.
var ErrNotFound = errors.New("search application not found")

// DefaultFormat names the primary record shape.
const DefaultFormat = "default"

// UnknownValue marks a coded value with no entry in its code table.
const UnknownValue = "-"

// Schema is immutable once built and safe for concurrent readers.
type Schema struct {
	Search model.Search
	Fields []*model.Field

	byID  map[string]*model.Field
	codes map[string]map[string]*model.Code
}

// New groups fields and codes into a Schema. Field order is preserved.
func New(search model.Search, fields []model.Field, codes []model.Code) *Schema {
	s := &Schema{
		Search: search,
		byID:   make(map[string]*model.Field, len(fields)),
		codes:  make(map[string]map[string]*model.Code),
	}
	fidToField := make(map[string]string, len(fields))
	for i := range fields {
		f := &fields[i]
		s.Fields = append(s.Fields, f)
		s.byID[f.FieldID] = f
		fidToField[f.FID] = f.FieldID
	}
	for i := range codes {
		c := &codes[i]
		fieldID, ok := fidToField[c.FieldFID]
		if !ok {
			continue
		}
		table := s.codes[fieldID]
		if table == nil {
			table = make(map[string]*model.Code)
			s.codes[fieldID] = table
		}
		table[strings.ToLower(c.CodeID)] = c
	}
	return s
}

// ID returns the application id.
func (s *Schema) ID() string {
	return s.Search.SearchID
}

// Field looks a field up by id.
func (s *Schema) Field(id string) (*model.Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// FieldsForFormat returns the fields belonging to a record shape. Fields
// without an alternate-format tag (or tagged ALL) belong to every shape.
func (s *Schema) FieldsForFormat(format string) []*model.Field {
	var out []*model.Field
	for _, f := range s.Fields {
		if InFormat(f, format) {
			out = append(out, f)
		}
	}
	return out
}

// InFormat reports whether f is part of the given record shape.
func InFormat(f *model.Field, format string) bool {
	tag := strings.TrimSuffix(strings.TrimSpace(f.AltFormat), ";")
	if tag == "" || strings.EqualFold(tag, "ALL") {
		return true
	}
	return format != "" && format != DefaultFormat && strings.EqualFold(tag, format)
}

// Codes returns the code table for a field keyed by lower-cased code id.
func (s *Schema) Codes(fieldID string) map[string]*model.Code {
	return s.codes[fieldID]
}

// Code resolves a raw value against a field's code table, ignoring case.
func (s *Schema) Code(fieldID, value string) (*model.Code, bool) {
	table := s.codes[fieldID]
	if table == nil {
		return nil, false
	}
	c, ok := table[strings.ToLower(strings.TrimSpace(value))]
	return c, ok
}

// AllCodes returns every code of the application ordered by field then code id.
func (s *Schema) AllCodes() []model.Code {
	var out []model.Code
	for _, f := range s.Fields {
		table := s.codes[f.FieldID]
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, *table[k])
		}
	}
	return out
}

// Facets returns the facet fields for lang in display order.
func (s *Schema) Facets(lang string) []*model.Field {
	var out []*model.Field
	for _, f := range s.Fields {
		if f.IsFacet && MatchesLang(f, lang) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FacetDisplayOrder < out[j].FacetDisplayOrder
	})
	return out
}

// FacetIDs is Facets reduced to field ids.
func (s *Schema) FacetIDs(lang string) []string {
	facets := s.Facets(lang)
	ids := make([]string, len(facets))
	for i, f := range facets {
		ids[i] = f.FieldID
	}
	return ids
}

// MatchesLang reports whether f is searched in lang.
func MatchesLang(f *model.Field, lang string) bool {
	return f.Lang == lang || f.Lang == model.LangBilingual
}

// IDFields returns the ordered identifier field ids.
func (s *Schema) IDFields() []string {
	return SplitList(s.Search.IDFields, ",")
}

// AltFormats returns the alternate record shapes the application accepts.
func (s *Schema) AltFormats() []string {
	return SplitList(s.Search.AltFormats, ",")
}

// IndexName returns the engine index for this application.
func (s *Schema) IndexName() string {
	if s.Search.IndexName != "" {
		return s.Search.IndexName
	}
	return s.Search.SearchID
}

// PageSize returns the configured page size, 10 when unset.
func (s *Schema) PageSize() int {
	if s.Search.PageSize <= 0 {
		return 10
	}
	return s.Search.PageSize
}

// DefaultOperator returns AND or OR.
func (s *Schema) DefaultOperator() string {
	if strings.EqualFold(s.Search.DefaultOperator, "OR") {
		return "OR"
	}
	return "AND"
}

// SortOrders returns the allowed sort tokens for lang.
func (s *Schema) SortOrders(lang string) []string {
	return SplitList(Localized(lang, s.Search.SortOrderEN, s.Search.SortOrderFR), ",")
}

// SortLabels returns the display labels parallel to SortOrders.
func (s *Schema) SortLabels(lang string) []string {
	return SplitList(Localized(lang, s.Search.SortOrderDisplayEN, s.Search.SortOrderDisplayFR), ",")
}

// DefaultSort returns the configured default sort token for lang.
func (s *Schema) DefaultSort(lang string) string {
	if v := strings.TrimSpace(Localized(lang, s.Search.SortDefaultEN, s.Search.SortDefaultFR)); v != "" {
		return v
	}
	return "score desc"
}

// Label returns the application title in lang.
func (s *Schema) Label(lang string) string {
	return Localized(lang, s.Search.LabelEN, s.Search.LabelFR)
}

// DisabledMessage returns the message shown while the application is disabled.
func (s *Schema) DisabledMessage(lang string) string {
	return Localized(lang, s.Search.DisabledMessageEN, s.Search.DisabledMessageFR)
}

// Alias returns the language-specific URL alias, if any.
func (s *Schema) Alias(lang string) string {
	return Localized(lang, s.Search.SearchAliasEN, s.Search.SearchAliasFR)
}

// FieldLabel returns a field's label in lang.
func FieldLabel(f *model.Field, lang string) string {
	return Localized(lang, f.LabelEN, f.LabelFR)
}

// Localized picks the French value for "fr" and the English one otherwise.
func Localized(lang, en, fr string) string {
	if lang == model.LangFR {
		return fr
	}
	return en
}

// SplitList splits s on sep, trims each element and drops empty ones.
func SplitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
