package es

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/query"
)

const sampleResponse = `{
  "took": 3,
  "hits": {
    "total": {"value": 42, "relation": "eq"},
    "hits": [
      {"_id": "tbs-sct,2023,04", "_source": {"id": "tbs-sct,2023,04", "owner_org": "tbs-sct", "total": 1250.5},
       "highlight": {"title_en": ["<mark>travel</mark> to Ottawa"]}},
      {"_id": "no-source-id", "_source": {"owner_org": "hc-sc"}}
    ]
  },
  "aggregations": {
    "owner_org": {"doc_count": 42, "values": {"buckets": [
      {"key": "tbs-sct", "doc_count": 30},
      {"key": "hc-sc", "doc_count": 12}
    ]}},
    "year": {"doc_count": 42, "values": {"buckets": [
      {"key": 2023, "doc_count": 40},
      {"key": 2022, "doc_count": 2}
    ]}}
  }
}`

// roundTrip re-decodes a body so assertions see plain JSON types.
func roundTrip(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	return out
}

func dig(t *testing.T, v interface{}, keys ...string) interface{} {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			t.Fatalf("expected object at %q, got %T", k, v)
		}
		v, ok = m[k]
		if !ok {
			t.Fatalf("missing key %q", k)
		}
	}
	return v
}

func facetedDescriptor() *query.Descriptor {
	d := &query.Descriptor{
		Index:       "contracts",
		Query:       "travel",
		Operator:    "and",
		QueryFields: []string{"id", "title_en"},
		FieldList:   []string{"id", "title_en"},
		Sort:        "score desc, year asc",
		Start:       20,
		Rows:        10,
		Facets: []query.Facet{
			{Field: "owner_org", Sort: "count", Limit: 100, ExcludeTag: query.FacetTag("owner_org")},
			{Field: "year", Sort: "index", Limit: -1},
		},
	}
	d.AddFilter("owner_org", "tbs-sct", "hc-sc")
	d.AddFilter("language", "en")
	return d
}

func TestBuildSearchBody_TaggedExclusion(t *testing.T) {
	body := roundTrip(t, BuildSearchBody(facetedDescriptor(), "t_contracts"))

	post := dig(t, body, "post_filter", "bool", "filter").([]interface{})
	if len(post) != 2 {
		t.Fatalf("expected both filters in post_filter, got %d", len(post))
	}

	// owner_org excludes its own filter but is still narrowed by language.
	orgScope := dig(t, body, "aggs", "owner_org", "filter", "bool", "filter").([]interface{})
	if len(orgScope) != 1 {
		t.Fatalf("expected one scoping filter for owner_org, got %d", len(orgScope))
	}
	if _, ok := dig(t, orgScope[0], "terms").(map[string]interface{})["language"]; !ok {
		t.Errorf("expected owner_org facet scoped by language, got %v", orgScope[0])
	}

	yearScope := dig(t, body, "aggs", "year", "filter", "bool", "filter").([]interface{})
	if len(yearScope) != 2 {
		t.Errorf("expected unselected facet scoped by every filter, got %d", len(yearScope))
	}
	if size := dig(t, body, "aggs", "year", "aggs", "values", "terms", "size"); size != float64(unlimitedFacetSize) {
		t.Errorf("expected unlimited facet size, got %v", size)
	}
	if order := dig(t, body, "aggs", "year", "aggs", "values", "terms", "order", "_key"); order != "asc" {
		t.Errorf("expected index facet ordered by key, got %v", order)
	}
}

func TestBuildSearchBody_Query(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(d *query.Descriptor)
		check func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "free text",
			edit: func(d *query.Descriptor) {},
			check: func(t *testing.T, body map[string]interface{}) {
				if op := dig(t, body, "query", "query_string", "default_operator"); op != "AND" {
					t.Errorf("expected AND operator, got %v", op)
				}
				if from := dig(t, body, "from"); from != float64(20) {
					t.Errorf("expected from 20, got %v", from)
				}
			},
		},
		{
			name: "match all",
			edit: func(d *query.Descriptor) { d.Query = query.MatchAll },
			check: func(t *testing.T, body map[string]interface{}) {
				dig(t, body, "query", "match_all")
			},
		},
		{
			name: "record lookup ignores facets",
			edit: func(d *query.Descriptor) { d.RecordID = "tbs-sct,2023,04" },
			check: func(t *testing.T, body map[string]interface{}) {
				if id := dig(t, body, "query", "term", "id"); id != "tbs-sct,2023,04" {
					t.Errorf("expected term on id, got %v", id)
				}
				if _, ok := body["aggs"]; ok {
					t.Error("record lookup should not request facets")
				}
			},
		},
		{
			name: "export omits from",
			edit: func(d *query.Descriptor) { d.Export = true },
			check: func(t *testing.T, body map[string]interface{}) {
				if _, ok := body["from"]; ok {
					t.Error("export body should not page")
				}
			},
		},
		{
			name: "sort",
			edit: func(d *query.Descriptor) {},
			check: func(t *testing.T, body map[string]interface{}) {
				sorts := body["sort"].([]interface{})
				if len(sorts) != 2 {
					t.Fatalf("expected 2 sort clauses, got %d", len(sorts))
				}
				if dir := dig(t, sorts[0], "_score", "order"); dir != "desc" {
					t.Errorf("expected _score desc, got %v", dir)
				}
				if dir := dig(t, sorts[1], "year", "order"); dir != "asc" {
					t.Errorf("expected year asc, got %v", dir)
				}
			},
		},
		{
			name: "more like this",
			edit: func(d *query.Descriptor) {
				d.MLT = &query.MoreLikeThis{RecordID: "abc", Fields: []string{"title_en"}, Count: 5, MinTermFreq: 1, MinWordLen: 3, MinDocFreq: 2}
			},
			check: func(t *testing.T, body map[string]interface{}) {
				like := dig(t, body, "query", "more_like_this", "like").([]interface{})
				if id := dig(t, like[0], "_id"); id != "abc" {
					t.Errorf("expected like on abc, got %v", id)
				}
				if idx := dig(t, like[0], "_index"); idx != "t_contracts" {
					t.Errorf("expected physical index, got %v", idx)
				}
				if size := dig(t, body, "size"); size != float64(5) {
					t.Errorf("expected size 5, got %v", size)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := facetedDescriptor()
			tc.edit(d)
			tc.check(t, roundTrip(t, BuildSearchBody(d, "t_contracts")))
		})
	}
}

func TestDecodeSearchResponse(t *testing.T) {
	resp, err := DecodeSearchResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NumFound != 42 {
		t.Errorf("expected 42 hits, got %d", resp.NumFound)
	}
	if len(resp.Docs) != 2 || resp.Docs[1].ID() != "no-source-id" {
		t.Errorf("expected missing id filled from _id, got %v", resp.Docs)
	}
	if n, ok := resp.Docs[0]["total"].(json.Number); !ok || n.String() != "1250.5" {
		t.Errorf("expected exact number, got %#v", resp.Docs[0]["total"])
	}
	org := resp.Facets["owner_org"]
	if len(org) != 2 || org[0].Value != "tbs-sct" || org[0].Count != 30 {
		t.Errorf("unexpected owner_org facet %v", org)
	}
	if year := resp.Facets["year"]; year[0].Value != "2023" {
		t.Errorf("expected numeric key rendered as text, got %v", year)
	}
	if hl := resp.Highlighting["tbs-sct,2023,04"]["title_en"]; len(hl) != 1 {
		t.Errorf("expected highlight for first doc, got %v", resp.Highlighting)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL, IndexPrefix: "t_", TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClient_Search(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(sampleResponse))
	})

	resp, err := c.Search(context.Background(), facetedDescriptor())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotPath != "/t_contracts/_search" {
		t.Errorf("expected prefixed index path, got %s", gotPath)
	}
	if resp.Start != 20 || resp.NumFound != 42 {
		t.Errorf("unexpected response window start=%d found=%d", resp.Start, resp.NumFound)
	}
}

func TestClient_BulkIndex(t *testing.T) {
	var lines []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	})

	docs := []engine.Document{{"id": "a", "title_en": "x"}, {"id": "b"}}
	if err := c.BulkIndex(context.Background(), "contracts", docs); err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected action and source line per doc, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], `"_id":"a"`) || !strings.Contains(lines[0], `"_index":"t_contracts"`) {
		t.Errorf("unexpected action line %s", lines[0])
	}
}

func TestClient_BulkIndexRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"_id":"a","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad date"}}}]}`))
	})

	err := c.BulkIndex(context.Background(), "contracts", []engine.Document{{"id": "a"}})
	if err == nil || !strings.Contains(err.Error(), "bad date") {
		t.Fatalf("expected rejection reason, got %v", err)
	}
	if errors.Is(err, engine.ErrTransport) {
		t.Error("document rejection is not a transport error")
	}
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"unavailable"}`))
		})
		err := c.Commit(context.Background(), "contracts")
		if !errors.Is(err, engine.ErrTransport) {
			t.Errorf("expected transport error, got %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		c, err := NewClient(config.ElasticsearchConfig{Addresses: addr, TimeoutSeconds: 2})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		_, err = c.Search(context.Background(), facetedDescriptor())
		if !errors.Is(err, engine.ErrTransport) {
			t.Errorf("expected transport error, got %v", err)
		}
	})

	t.Run("bad request", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception"}}`))
		})
		err := c.DeleteByQuery(context.Background(), "contracts", nil)
		if err == nil || errors.Is(err, engine.ErrTransport) {
			t.Errorf("expected plain error, got %v", err)
		}
	})
}
