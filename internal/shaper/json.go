package shaper

import "oc-search-go/internal/engine"

// JSONFacetValue is one facet entry of the reduced JSON output.
type JSONFacetValue struct {
	Code    string `json:"code"`
	LabelEN string `json:"label_en"`
	LabelFR string `json:"label_fr"`
	Count   int    `json:"count"`
}

// JSONResult is the reduced JSON output format.
type JSONResult struct {
	NumCount       int                         `json:"num_count"`
	Start          int                         `json:"start"`
	End            int                         `json:"end"`
	Docs           []engine.Document           `json:"docs"`
	Facets         map[string][]JSONFacetValue `json:"facets"`
	SelectedFacets map[string][]string         `json:"selected_facets"`
}

// JSON reduces p to the downloadable JSON document.
func (p *Presentation) JSON() JSONResult {
	out := JSONResult{
		NumCount:       p.NumFound,
		Start:          p.Start,
		End:            p.End,
		Docs:           p.Docs,
		Facets:         make(map[string][]JSONFacetValue, len(p.Facets)),
		SelectedFacets: p.Selected,
	}
	for _, f := range p.Facets {
		values := make([]JSONFacetValue, 0, len(f.Values))
		for _, v := range f.Values {
			values = append(values, JSONFacetValue{Code: v.Value, LabelEN: v.LabelEN, LabelFR: v.LabelFR, Count: v.Count})
		}
		out.Facets[f.Field] = values
	}
	return out
}
