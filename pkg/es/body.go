package es

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

// unlimitedFacetSize stands in for an uncapped facet.
const unlimitedFacetSize = 10000

const facetBucketAgg = "values"

// BuildSearchBody translates d into an Elasticsearch search body. Selected
// facet values go into post_filter; every facet aggregation is wrapped in a
// filter aggregation carrying the other active filters, so a facet's own
// selection never narrows its own counts.
func BuildSearchBody(d *query.Descriptor, index string) map[string]interface{} {
	body := map[string]interface{}{
		"track_total_hits": true,
		"size":             d.Rows,
	}
	if !d.Export {
		body["from"] = d.Start
	}
	if len(d.FieldList) > 0 {
		body["_source"] = d.FieldList
	}

	switch {
	case d.MLT != nil:
		body["query"] = map[string]interface{}{"more_like_this": map[string]interface{}{
			"fields":          d.MLT.Fields,
			"like":            []map[string]string{{"_index": index, "_id": d.MLT.RecordID}},
			"min_term_freq":   d.MLT.MinTermFreq,
			"min_word_length": d.MLT.MinWordLen,
			"min_doc_freq":    d.MLT.MinDocFreq,
		}}
		body["size"] = d.MLT.Count
		return body
	case d.RecordID != "":
		body["query"] = map[string]interface{}{"term": map[string]interface{}{query.IDField: d.RecordID}}
		return body
	case d.Query == "" || d.Query == query.MatchAll:
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	default:
		body["query"] = map[string]interface{}{"query_string": map[string]interface{}{
			"query":            d.Query,
			"fields":           d.QueryFields,
			"default_operator": strings.ToUpper(d.Operator),
		}}
	}

	if len(d.Filters) > 0 {
		body["post_filter"] = map[string]interface{}{"bool": map[string]interface{}{
			"filter": filterClauses(d.Filters, ""),
		}}
	}
	if len(d.Facets) > 0 {
		aggs := map[string]interface{}{}
		for _, f := range d.Facets {
			aggs[f.Field] = facetAgg(f, d.Filters)
		}
		body["aggs"] = aggs
	}
	if s := sortClauses(d.Sort); len(s) > 0 {
		body["sort"] = s
	}
	if d.Highlight != nil && len(d.Highlight.Fields) > 0 {
		fields := map[string]interface{}{}
		for _, f := range d.Highlight.Fields {
			fields[f] = map[string]interface{}{"number_of_fragments": d.Highlight.Snippets}
		}
		body["highlight"] = map[string]interface{}{
			"pre_tags":  []string{d.Highlight.PreTag},
			"post_tags": []string{d.Highlight.PostTag},
			"fields":    fields,
		}
	}
	return body
}

func facetAgg(f query.Facet, filters []query.Filter) map[string]interface{} {
	size := f.Limit
	if size < 0 {
		size = unlimitedFacetSize
	}
	order := map[string]string{"_count": "desc"}
	if f.Sort != model.FacetSortCount {
		order = map[string]string{"_key": "asc"}
	}
	terms := map[string]interface{}{"terms": map[string]interface{}{
		"field":         f.Field,
		"size":          size,
		"min_doc_count": 1,
		"order":         order,
	}}

	var scope interface{} = map[string]interface{}{"match_all": map[string]interface{}{}}
	if clauses := filterClauses(filters, f.ExcludeTag); len(clauses) > 0 {
		scope = map[string]interface{}{"bool": map[string]interface{}{"filter": clauses}}
	}
	return map[string]interface{}{
		"filter": scope,
		"aggs":   map[string]interface{}{facetBucketAgg: terms},
	}
}

// filterClauses renders every filter not tagged excludeTag as a terms clause.
func filterClauses(filters []query.Filter, excludeTag string) []interface{} {
	var clauses []interface{}
	for _, f := range filters {
		if excludeTag != "" && f.Tag == excludeTag {
			continue
		}
		clauses = append(clauses, map[string]interface{}{"terms": map[string]interface{}{f.Field: f.Values}})
	}
	return clauses
}

// sortClauses maps "score desc, year asc" onto Elasticsearch sort clauses.
func sortClauses(sort string) []interface{} {
	var out []interface{}
	for _, part := range strings.Split(sort, ",") {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		field, dir := tokens[0], "asc"
		if len(tokens) > 1 && strings.EqualFold(tokens[1], "desc") {
			dir = "desc"
		}
		if field == "score" {
			field = "_score"
		}
		out = append(out, map[string]interface{}{field: map[string]string{"order": dir}})
	}
	return out
}

// Mapping builds the index mapping for s. Schema fields map by type;
// derived companions (labels, formatted dates, export copies) fall through
// to a dynamic template that indexes strings as text with a keyword
// sub-field.
func Mapping(s *schema.Schema) map[string]interface{} {
	props := map[string]interface{}{
		query.IDField: map[string]string{"type": "keyword"},
	}
	for _, f := range s.Fields {
		props[f.FieldID] = fieldMapping(f.Type)
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"dynamic_templates": []interface{}{
				map[string]interface{}{"strings": map[string]interface{}{
					"match_mapping_type": "string",
					"mapping": map[string]interface{}{
						"type":   "text",
						"fields": map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 8191}},
					},
				}},
			},
			"properties": props,
		},
	}
}

func fieldMapping(t string) map[string]string {
	switch t {
	case model.TypeTextEN:
		return map[string]string{"type": "text", "analyzer": "english"}
	case model.TypeTextFR:
		return map[string]string{"type": "text", "analyzer": "french"}
	case model.TypeText:
		return map[string]string{"type": "text"}
	case model.TypeInt:
		return map[string]string{"type": "long"}
	case model.TypeFloat:
		return map[string]string{"type": "double"}
	case model.TypeDate:
		return map[string]string{"type": "date", "format": "strict_date_optional_time||yyyy-MM-dd"}
	}
	return map[string]string{"type": "keyword"}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Source    engine.Document     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Values struct {
			Buckets []struct {
				Key         interface{} `json:"key"`
				KeyAsString string      `json:"key_as_string"`
				DocCount    int         `json:"doc_count"`
			} `json:"buckets"`
		} `json:"values"`
	} `json:"aggregations"`
}

// DecodeSearchResponse converts a raw search response. Numbers are kept as
// json.Number so values render exactly as indexed.
func DecodeSearchResponse(raw []byte) (*engine.Response, error) {
	var sr searchResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	resp := &engine.Response{
		NumFound: sr.Hits.Total.Value,
		Docs:     make([]engine.Document, 0, len(sr.Hits.Hits)),
		Facets:   map[string][]engine.FacetValue{},
		Raw:      json.RawMessage(raw),
	}
	for _, h := range sr.Hits.Hits {
		doc := h.Source
		if doc == nil {
			doc = engine.Document{}
		}
		if _, ok := doc[query.IDField]; !ok {
			doc[query.IDField] = h.ID
		}
		resp.Docs = append(resp.Docs, doc)
		if len(h.Highlight) > 0 {
			if resp.Highlighting == nil {
				resp.Highlighting = map[string]map[string][]string{}
			}
			resp.Highlighting[doc.ID()] = h.Highlight
		}
	}
	for field, agg := range sr.Aggregations {
		values := make([]engine.FacetValue, 0, len(agg.Values.Buckets))
		for _, b := range agg.Values.Buckets {
			key := b.KeyAsString
			if key == "" {
				key = fmt.Sprint(b.Key)
			}
			values = append(values, engine.FacetValue{Value: key, Count: b.DocCount})
		}
		resp.Facets[field] = values
	}
	return resp, nil
}
