// Package query turns a parsed search request and a schema into an
// engine-agnostic query descriptor.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// MatchAll is the free-text token that matches every document.
const MatchAll = "*"

// IDField is the identifier field present in every document.
const IDField = "id"

// Filter restricts results to documents whose Field holds one of Values.
// Tag names the filter so a facet can exclude it from its own counts.
type Filter struct {
	Tag    string   `json:"tag"`
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Facet asks for the value distribution of Field.
type Facet struct {
	Field string `json:"field"`
	Sort  string `json:"sort"`
	Limit int    `json:"limit"`
	// ExcludeTag is the tag of the facet's own filter, empty when unselected.
	ExcludeTag string `json:"exclude_tag,omitempty"`
}

// Highlight lists the fields returned with marked snippets.
type Highlight struct {
	Fields   []string `json:"fields"`
	PreTag   string   `json:"pre_tag"`
	PostTag  string   `json:"post_tag"`
	Snippets int      `json:"snippets"`
}

// MoreLikeThis describes a similarity query keyed on a record.
type MoreLikeThis struct {
	RecordID      string   `json:"record_id"`
	Fields        []string `json:"fields"`
	Count         int      `json:"count"`
	MinTermFreq   int      `json:"min_term_freq"`
	MinWordLen    int      `json:"min_word_len"`
	MinDocFreq    int      `json:"min_doc_freq"`
	MaxDocFreqPct int      `json:"max_doc_freq_pct"`
}

// Descriptor is a complete engine request.
type Descriptor struct {
	Index       string        `json:"index"`
	Query       string        `json:"query"`
	RecordID    string        `json:"record_id,omitempty"`
	Operator    string        `json:"operator"`
	QueryFields []string      `json:"query_fields"`
	FieldList   []string      `json:"field_list"`
	Filters     []Filter      `json:"filters,omitempty"`
	Facets      []Facet       `json:"facets,omitempty"`
	Sort        string        `json:"sort"`
	Start       int           `json:"start"`
	Rows        int           `json:"rows"`
	Highlight   *Highlight    `json:"highlight,omitempty"`
	Export      bool          `json:"export,omitempty"`
	MLT         *MoreLikeThis `json:"mlt,omitempty"`
}

// AddFilter appends a tagged filter. Plugins use it to scope searches.
func (d *Descriptor) AddFilter(field string, values ...string) {
	d.Filters = append(d.Filters, Filter{Tag: FacetTag(field), Field: field, Values: values})
}

// FacetTag is the tag applied to a facet's own filter.
func FacetTag(field string) string {
	return "tag_" + field
}

// Params renders the descriptor in the flat Solr-style key/value form used
// for the raw response format and request logging.
func (d *Descriptor) Params() map[string][]string {
	p := map[string][]string{}
	set := func(k string, v ...string) { p[k] = append(p[k], v...) }

	if d.MLT != nil {
		set("q", IDField+":"+quote(d.MLT.RecordID))
		set("mlt", "true")
		set("mlt.fl", strings.Join(d.MLT.Fields, ","))
		set("mlt.count", strconv.Itoa(d.MLT.Count))
		set("mlt.mintf", strconv.Itoa(d.MLT.MinTermFreq))
		set("mlt.minwl", strconv.Itoa(d.MLT.MinWordLen))
		set("mlt.mindf", strconv.Itoa(d.MLT.MinDocFreq))
		set("mlt.maxdfpct", strconv.Itoa(d.MLT.MaxDocFreqPct))
		set("fl", strings.Join(d.FieldList, ","))
		return p
	}

	if d.RecordID != "" {
		set("q", IDField+":"+quote(d.RecordID))
	} else {
		set("q", d.Query)
	}
	set("defType", "edismax")
	set("q.op", d.Operator)
	set("qf", strings.Join(d.QueryFields, " "))
	set("fl", strings.Join(d.FieldList, ","))
	set("sort", d.Sort)
	if !d.Export {
		set("start", strconv.Itoa(d.Start))
	}
	set("rows", strconv.Itoa(d.Rows))
	for _, f := range d.Filters {
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = quote(v)
		}
		set("fq", fmt.Sprintf("{!tag=%s}%s:(%s)", f.Tag, f.Field, strings.Join(quoted, " OR ")))
	}
	if len(d.Facets) > 0 {
		set("facet", "true")
		set("facet.mincount", "1")
		for _, f := range d.Facets {
			if f.ExcludeTag != "" {
				set("facet.field", fmt.Sprintf("{!ex=%s}%s", f.ExcludeTag, f.Field))
			} else {
				set("facet.field", f.Field)
			}
			sort := f.Sort
			if sort == "label" {
				sort = "index"
			}
			set("f."+f.Field+".facet.sort", sort)
			set("f."+f.Field+".facet.limit", strconv.Itoa(f.Limit))
		}
	}
	if d.Highlight != nil {
		set("hl", "on")
		set("hl.method", "unified")
		set("hl.fl", strings.Join(d.Highlight.Fields, ","))
		set("hl.simple.pre", d.Highlight.PreTag)
		set("hl.simple.post", d.Highlight.PostTag)
		set("hl.snippets", strconv.Itoa(d.Highlight.Snippets))
	}
	return p
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
