// Package shaper turns an engine response into the presentation model
// rendered by the search pages and the JSON output format.
package shaper

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// DefaultRadius is the number of pages shown on each side of the current one.
const DefaultRadius = 3

// Input is everything Shape needs beyond the schema.
type Input struct {
	Response *engine.Response
	Lang     string
	// Facets are the active facet field ids in display order.
	Facets []string
	// Filters are the selections the query was built with.
	Filters []query.Filter
	Page    int
	Radius  int
	Sort    string
}

// FacetValue is one labelled facet bucket.
type FacetValue struct {
	Value    string `json:"code"`
	Label    string `json:"label"`
	LabelEN  string `json:"label_en"`
	LabelFR  string `json:"label_fr"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
	// Known is false when a coded value has no code table entry.
	Known bool `json:"-"`
}

// Facet is one facet block in display order.
type Facet struct {
	Field    string       `json:"field"`
	Label    string       `json:"label"`
	Sort     string       `json:"sort"`
	Reversed bool         `json:"reversed"`
	Snippet  string       `json:"snippet,omitempty"`
	Values   []FacetValue `json:"values"`
}

// SortOption pairs a sort token with its display label.
type SortOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Pagination describes the page navigation. Pages holds the condensed
// sequence with 0 marking a gap.
type Pagination struct {
	Pages    []int `json:"pages"`
	Current  int   `json:"current"`
	Previous int   `json:"previous"`
	Next     int   `json:"next"`
	Last     int   `json:"last"`
	Show     bool  `json:"show"`
}

// Presentation is the shaped result of one search.
type Presentation struct {
	Search      string              `json:"search"`
	Lang        string              `json:"lang"`
	NumFound    int                 `json:"num_found"`
	Start       int                 `json:"start"`
	End         int                 `json:"end"`
	Docs        []engine.Document   `json:"docs"`
	Facets      []Facet             `json:"facets"`
	Selected    map[string][]string `json:"selected_facets"`
	Pagination  Pagination          `json:"pagination"`
	SortOptions []SortOption        `json:"sort_options"`
	Sort        string              `json:"sort"`
}

// Shape builds the presentation model. It does not mutate in.Response apart
// from merging highlighted snippets into its documents.
func Shape(s *schema.Schema, in Input) *Presentation {
	resp := in.Response
	if resp == nil {
		resp = &engine.Response{}
	}
	p := &Presentation{
		Search:   s.ID(),
		Lang:     in.Lang,
		NumFound: resp.NumFound,
		Docs:     MergeHighlighting(resp.Docs, resp.Highlighting),
		Selected: selectedValues(in.Filters, in.Facets),
		Sort:     in.Sort,
	}
	if p.Docs == nil {
		p.Docs = []engine.Document{}
	}
	p.Start = resp.Start + 1
	p.End = resp.Start + len(resp.Docs)
	if len(resp.Docs) == 0 {
		p.Start = resp.Start
	}

	for _, id := range in.Facets {
		f, ok := s.Field(id)
		if !ok {
			continue
		}
		p.Facets = append(p.Facets, shapeFacet(s, f, resp.Facets[id], p.Selected[id], in.Lang))
	}

	radius := in.Radius
	if radius <= 0 {
		radius = DefaultRadius
	}
	p.Pagination = Paginate(resp.NumFound, s.PageSize(), in.Page, radius)
	p.SortOptions = SortOptions(s, in.Lang, in.Sort)
	return p
}

func shapeFacet(s *schema.Schema, f *model.Field, buckets []engine.FacetValue, selected []string, lang string) Facet {
	out := Facet{
		Field:    f.FieldID,
		Label:    schema.FieldLabel(f, lang),
		Sort:     f.FacetSort,
		Reversed: f.FacetDisplayReversed,
		Snippet:  f.FacetSnippet,
		Values:   make([]FacetValue, 0, len(buckets)),
	}
	isSelected := map[string]bool{}
	for _, v := range selected {
		isSelected[v] = true
	}
	for _, b := range buckets {
		v := FacetValue{Value: b.Value, Count: b.Count, LabelEN: b.Value, LabelFR: b.Value, Known: true, Selected: isSelected[b.Value]}
		if f.IsCoded {
			if code, ok := s.Code(f.FieldID, b.Value); ok {
				v.LabelEN, v.LabelFR = code.LabelEN, code.LabelFR
			} else {
				v.Known = false
				if b.Value != schema.UnknownValue {
					log.Warnw("[Shaper] facet value has no code", "search", s.ID(), "field", f.FieldID, "value", b.Value)
				}
			}
		}
		v.Label = schema.Localized(lang, v.LabelEN, v.LabelFR)
		out.Values = append(out.Values, v)
	}
	if f.FacetSort == model.FacetSortLabel {
		SortByLabel(out.Values, lang)
	}
	if f.FacetDisplayReversed {
		for i, j := 0, len(out.Values)-1; i < j; i, j = i+1, j-1 {
			out.Values[i], out.Values[j] = out.Values[j], out.Values[i]
		}
	}
	return out
}

// SortByLabel orders values by their resolved label using the collation of
// lang. French ignores accents and case. Equal labels keep engine order.
func SortByLabel(values []FacetValue, lang string) {
	c := collate.New(language.English, collate.IgnoreCase)
	if lang == model.LangFR {
		c = collate.New(language.French, collate.Loose)
	}
	sort.SliceStable(values, func(i, j int) bool {
		return c.CompareString(values[i].Label, values[j].Label) < 0
	})
}

// MergeHighlighting replaces highlighted fields in docs with their marked
// snippets. Single snippets replace scalars; several become a list.
func MergeHighlighting(docs []engine.Document, hl map[string]map[string][]string) []engine.Document {
	if len(hl) == 0 {
		return docs
	}
	for _, doc := range docs {
		for field, snippets := range hl[doc.ID()] {
			switch len(snippets) {
			case 0:
			case 1:
				doc[field] = snippets[0]
			default:
				doc[field] = snippets
			}
		}
	}
	return docs
}

// Paginate builds the navigation descriptor for the given window.
func Paginate(numFound, pageSize, page, radius int) Pagination {
	pages := query.TotalPages(numFound, pageSize)
	current := query.ClampPage(page, pages)
	p := Pagination{
		Pages:   query.CalcPaginationRange(numFound, pageSize, current, radius),
		Current: current,
		Last:    pages,
	}
	p.Show = len(p.Pages) > 1
	p.Previous = current - 1
	if p.Previous < 1 {
		p.Previous = 1
	}
	p.Next = current + 1
	if p.Next > pages {
		p.Next = pages
	}
	return p
}

// SortOptions zips the sort tokens for lang with their display labels. A
// token without a label is shown as itself.
func SortOptions(s *schema.Schema, lang, current string) []SortOption {
	tokens := s.SortOrders(lang)
	labels := s.SortLabels(lang)
	out := make([]SortOption, 0, len(tokens))
	for i, token := range tokens {
		label := token
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, SortOption{Value: token, Label: label, Selected: strings.TrimSpace(current) == token})
	}
	return out
}

// selectedValues echoes the facet selections, restricted to active facets.
func selectedValues(filters []query.Filter, facets []string) map[string][]string {
	active := map[string]bool{}
	for _, f := range facets {
		active[f] = true
	}
	out := map[string][]string{}
	for _, f := range filters {
		if active[f.Field] {
			out[f.Field] = append(out[f.Field], f.Values...)
		}
	}
	return out
}
