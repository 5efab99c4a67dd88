package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"oc-search-go/internal/model"
	"oc-search-go/internal/schema"
)

// Mode selects the shape of the descriptor.
type Mode int

const (
	ModeSearch Mode = iota
	ModeRecord
	ModeExport
)

// Engine-facing defaults.
const (
	RelevanceSort     = "score desc"
	ExportTieBreak    = IDField + " asc"
	HighlightPre      = "<mark>"
	HighlightPost     = "</mark>"
	HighlightSnippets = 10
	DefaultFacetLimit = 100
	MaxFacetLimit     = 250
)

// ErrMLTDisabled is returned when similarity search is off for an application.
var ErrMLTDisabled = errors.New("more-like-this is not enabled for this search")

// ParamError reports a request the builder refuses to translate.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid query parameter %q: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("unexpected query parameter %q", e.Param)
}

// structuralParams are accepted but not translated.
var structuralParams = map[string]bool{
	"search_text":   true,
	"sort":          true,
	"page":          true,
	"search_format": true,
	"encoding":      true,
	"wbdisable":     true,
	"_":             true,
}

var trackingPrefixes = []string{"utm_", "_ga", "_gl"}

var recordIDPattern = regexp.MustCompile(`^[^"\\\x00-\x1f]{1,512}$`)

// Request is the parsed part of a search request the builder consumes.
type Request struct {
	Params url.Values
	Lang   string
	// NewTextSearch is set when the previous request had no search text and
	// this one does.
	NewTextSearch bool
}

// Options carries the caller-computed parts of a build.
type Options struct {
	Mode        Mode
	RecordID    string
	StartRow    int
	Rows        int
	Highlight   bool
	DefaultSort string
}

// Build translates req into a descriptor for the given active facets.
func Build(req Request, s *schema.Schema, facets []string, opts Options) (*Descriptor, error) {
	lang := req.Lang
	d := &Descriptor{
		Index:       s.IndexName(),
		Query:       MatchAll,
		Operator:    s.DefaultOperator(),
		QueryFields: QueryFields(s, lang),
		Sort:        RelevanceSort,
		Start:       opts.StartRow,
		Rows:        opts.Rows,
	}
	d.FieldList = d.QueryFields

	if opts.Mode == ModeRecord {
		if !ValidRecordID(opts.RecordID) {
			return nil, &ParamError{Param: IDField, Reason: "malformed record id"}
		}
		d.RecordID = opts.RecordID
		d.Start = 0
		return d, nil
	}

	selected, err := selections(req.Params, s)
	if err != nil {
		return nil, err
	}

	d.Query = Terms(req.Params.Get("search_text"), lang)
	d.Sort = resolveSort(req, s, opts.DefaultSort)

	d.Filters = selected
	for _, id := range facets {
		f, ok := s.Field(id)
		if !ok {
			return nil, fmt.Errorf("%w: facet %s", schema.ErrNotFound, id)
		}
		facet := Facet{Field: id, Sort: facetSort(f), Limit: facetLimit(f.FacetLimit)}
		if _, isSelected := findFilter(d.Filters, id); isSelected {
			facet.ExcludeTag = FacetTag(id)
		}
		d.Facets = append(d.Facets, facet)
	}

	switch opts.Mode {
	case ModeExport:
		d.Export = true
		d.FieldList = ExportFields(s, lang)
		d.Start = 0
		if d.Sort == RelevanceSort {
			d.Sort = ExportTieBreak
		}
	default:
		if opts.Highlight {
			d.Highlight = &Highlight{
				Fields:   HighlightFields(s, lang),
				PreTag:   HighlightPre,
				PostTag:  HighlightPost,
				Snippets: HighlightSnippets,
			}
		}
	}
	return d, nil
}

// BuildMoreLikeThis builds a similarity query for recordID.
func BuildMoreLikeThis(req Request, s *schema.Schema, recordID string) (*Descriptor, error) {
	if !s.Search.MLTEnabled {
		return nil, ErrMLTDisabled
	}
	if !ValidRecordID(recordID) {
		return nil, &ParamError{Param: IDField, Reason: "malformed record id"}
	}
	count := s.Search.MLTItems
	if count <= 0 {
		count = 10
	}
	fl := QueryFields(s, req.Lang)
	return &Descriptor{
		Index:       s.IndexName(),
		Query:       MatchAll,
		Operator:    s.DefaultOperator(),
		QueryFields: fl,
		FieldList:   fl,
		Sort:        RelevanceSort,
		Rows:        count,
		MLT: &MoreLikeThis{
			RecordID:      recordID,
			Fields:        MLTFields(s, req.Lang),
			Count:         count,
			MinTermFreq:   1,
			MinWordLen:    3,
			MinDocFreq:    2,
			MaxDocFreqPct: 50,
		},
	}, nil
}

// DefaultSort picks the caller default for a request: relevance when a new
// free-text search begins, the application's configured default otherwise.
func DefaultSort(s *schema.Schema, lang string, newTextSearch bool) string {
	if newTextSearch {
		return RelevanceSort
	}
	return s.DefaultSort(lang)
}

// ValidRecordID rejects ids that cannot be quoted safely.
func ValidRecordID(id string) bool {
	return recordIDPattern.MatchString(id)
}

// QueryFields lists the searched fields for lang: every field in that
// language, its matching copy-fields and the resolved-label copy of coded
// fields. The identifier field is always first and nothing repeats.
func QueryFields(s *schema.Schema, lang string) []string {
	l := newFieldList()
	for _, f := range s.Fields {
		if !schema.MatchesLang(f, lang) {
			continue
		}
		l.add(f.FieldID)
		for _, extra := range schema.SplitList(f.ExtraFields, ",") {
			if f.Lang == lang || strings.HasSuffix(extra, "_"+lang) {
				l.add(extra)
			}
		}
		if f.IsCoded {
			l.add(f.FieldID + "_" + lang)
		}
	}
	return l.fields
}

// ExportFields lists the flat export columns: scalar fields in lang, with
// coded fields replaced by their resolved-label copy.
func ExportFields(s *schema.Schema, lang string) []string {
	l := newFieldList()
	for _, f := range s.Fields {
		if !schema.MatchesLang(f, lang) {
			continue
		}
		switch {
		case f.IsCoded:
			l.add(f.FieldID + "_" + lang)
		case isScalar(f.Type):
			l.add(f.FieldID)
		}
	}
	return l.fields
}

// HighlightFields lists text fields in lang and their language copy-fields.
func HighlightFields(s *schema.Schema, lang string) []string {
	l := &fieldList{seen: map[string]bool{}}
	for _, f := range s.Fields {
		if !schema.MatchesLang(f, lang) || !isText(f.Type) {
			continue
		}
		l.add(f.FieldID)
		for _, extra := range schema.SplitList(f.ExtraFields, ",") {
			if strings.HasSuffix(extra, "_"+lang) {
				l.add(extra)
			}
		}
	}
	return l.fields
}

// MLTFields lists the similarity fields for lang.
func MLTFields(s *schema.Schema, lang string) []string {
	l := &fieldList{seen: map[string]bool{}}
	for _, f := range s.Fields {
		if schema.MatchesLang(f, lang) && isText(f.Type) {
			l.add(f.FieldID)
		}
	}
	return l.fields
}

// selections collects the facet filters in a request and rejects any
// parameter that is neither a field nor structural.
func selections(params url.Values, s *schema.Schema) ([]Filter, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filters []Filter
	for _, key := range keys {
		if _, ok := s.Field(key); ok {
			var values []string
			for _, raw := range params[key] {
				values = append(values, schema.SplitList(raw, "|")...)
			}
			if len(values) > 0 {
				filters = append(filters, Filter{Tag: FacetTag(key), Field: key, Values: values})
			}
			continue
		}
		if structuralParams[key] || isTracking(key) {
			continue
		}
		return nil, &ParamError{Param: key}
	}
	return filters, nil
}

func resolveSort(req Request, s *schema.Schema, fallback string) string {
	requested := strings.TrimSpace(req.Params.Get("sort"))
	if requested != "" {
		for _, allowed := range s.SortOrders(req.Lang) {
			if requested == allowed {
				return requested
			}
		}
	}
	if fallback == "" || req.NewTextSearch {
		return DefaultSort(s, req.Lang, req.NewTextSearch)
	}
	return fallback
}

func facetSort(f *model.Field) string {
	switch f.FacetSort {
	case model.FacetSortIndex, model.FacetSortLabel:
		return f.FacetSort
	}
	return model.FacetSortCount
}

func facetLimit(limit int) int {
	switch {
	case limit < 0:
		return -1
	case limit == 0:
		return DefaultFacetLimit
	case limit > MaxFacetLimit:
		return MaxFacetLimit
	}
	return limit
}

func findFilter(filters []Filter, field string) (Filter, bool) {
	for _, f := range filters {
		if f.Field == field {
			return f, true
		}
	}
	return Filter{}, false
}

func isTracking(key string) bool {
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func isScalar(t string) bool {
	switch t {
	case model.TypeString, model.TypeInt, model.TypeFloat, model.TypeDate:
		return true
	}
	return false
}

func isText(t string) bool {
	switch t {
	case model.TypeTextEN, model.TypeTextFR, model.TypeText, model.TypeString:
		return true
	}
	return false
}

type fieldList struct {
	fields []string
	seen   map[string]bool
}

func newFieldList() *fieldList {
	l := &fieldList{seen: map[string]bool{}}
	l.add(IDField)
	return l
}

func (l *fieldList) add(f string) {
	if f == "" || l.seen[f] {
		return
	}
	l.seen[f] = true
	l.fields = append(l.fields, f)
}
