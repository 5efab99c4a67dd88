package service

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"testing"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

func newTestSearchService(sch *schema.Schema, hooks *recordingHooks, searcher *fakeSearcher) SearchService {
	provider := fakeHookProvider{}
	if hooks != nil {
		provider.hooks = hooks
	}
	return NewSearchService(fakeSchemas{sch.ID(): sch}, provider, searcher, config.SearchConfig{PaginationRadius: 2, Highlight: true})
}

func TestSearch_BuildsAndShapes(t *testing.T) {
	searcher := &fakeSearcher{resp: &engine.Response{
		NumFound: 42,
		Start:    10,
		Docs:     []engine.Document{{"id": "g-1", "title_en": "Clinic"}},
		Facets:   map[string][]engine.FacetValue{"owner_org": {{Value: "hc-sc", Count: 42}}},
	}}
	hooks := &recordingHooks{}
	svc := newTestSearchService(grantsSchema(), hooks, searcher)

	params := url.Values{"search_text": {"clinic"}, "owner_org": {"hc-sc"}, "page": {"2"}}
	res, err := svc.Search(context.Background(), SearchRequest{
		Name:    "grants-contributions",
		Lang:    "en",
		Params:  params,
		Referer: "https://search.example/search/en/grants?search_text=hospital",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	d := searcher.calls[0]
	if d.Query != "clinic" || d.Start != 10 || d.Rows != 10 {
		t.Errorf("unexpected query window: q=%q start=%d rows=%d", d.Query, d.Start, d.Rows)
	}
	if d.Sort != "agreement_date desc" {
		t.Errorf("continuing text search should keep the default sort, got %q", d.Sort)
	}
	if d.Highlight == nil {
		t.Error("expected highlighting")
	}
	if len(d.Filters) != 2 || d.Filters[0].Field != "owner_org" || d.Filters[1].Field != "language" {
		t.Errorf("expected the selection plus the hook filter, got %+v", d.Filters)
	}
	if want := []string{"PreSearch", "PostSearch"}; !reflect.DeepEqual(hooks.calls, want) {
		t.Errorf("hooks = %v, want %v", hooks.calls, want)
	}

	p := res.Presentation
	if p.NumFound != 42 || p.Start != 11 || p.End != 11 {
		t.Errorf("unexpected counts %d %d-%d", p.NumFound, p.Start, p.End)
	}
	if len(p.Facets) != 1 || p.Facets[0].Values[0].Label != "Health Canada" || !p.Facets[0].Values[0].Selected {
		t.Errorf("unexpected facets %+v", p.Facets)
	}
	if p.Pagination.Current != 2 {
		t.Errorf("current page = %d", p.Pagination.Current)
	}
	if res.ShowAllResults {
		t.Error("a filtered search does not show all results")
	}
}

func TestSearch_NewTextSearchSortsByRelevance(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := newTestSearchService(grantsSchema(), nil, searcher)

	_, err := svc.Search(context.Background(), SearchRequest{Name: "grants", Lang: "fr", Params: url.Values{"search_text": {"clinique"}}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := searcher.calls[0].Sort; got != query.RelevanceSort {
		t.Errorf("sort = %q, want relevance", got)
	}
}

func TestSearch_Errors(t *testing.T) {
	disabled := grantsSchema()
	disabled.Search.IsDisabled = true

	tests := []struct {
		name   string
		sch    *schema.Schema
		req    SearchRequest
		engine error
		check  func(error) bool
	}{
		{
			name:  "unknown application",
			sch:   grantsSchema(),
			req:   SearchRequest{Name: "nope", Lang: "en"},
			check: func(err error) bool { return errors.Is(err, schema.ErrNotFound) },
		},
		{
			name: "unsupported language",
			sch:  grantsSchema(),
			req:  SearchRequest{Name: "grants", Lang: "de"},
			check: func(err error) bool {
				var pe *query.ParamError
				return errors.As(err, &pe) && pe.Param == "lang"
			},
		},
		{
			name: "disabled application",
			sch:  disabled,
			req:  SearchRequest{Name: "grants", Lang: "fr"},
			check: func(err error) bool {
				var de *DisabledError
				return errors.As(err, &de) && de.Message == "En maintenance"
			},
		},
		{
			name: "unknown parameter",
			sch:  grantsSchema(),
			req:  SearchRequest{Name: "grants", Lang: "en", Params: url.Values{"bogus": {"1"}}},
			check: func(err error) bool {
				var pe *query.ParamError
				return errors.As(err, &pe) && pe.Param == "bogus"
			},
		},
		{
			name:   "engine down",
			sch:    grantsSchema(),
			req:    SearchRequest{Name: "grants", Lang: "en", Params: url.Values{}},
			engine: engine.TransportError("search", errors.New("connection refused")),
			check:  func(err error) bool { return errors.Is(err, engine.ErrTransport) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestSearchService(tc.sch, nil, &fakeSearcher{err: tc.engine})
			if tc.req.Params == nil {
				tc.req.Params = url.Values{}
			}
			_, err := svc.Search(context.Background(), tc.req)
			if err == nil || !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	hooks := &recordingHooks{}
	searcher := &fakeSearcher{resp: &engine.Response{NumFound: 1, Docs: []engine.Document{{"id": "g-1"}}}}
	svc := newTestSearchService(grantsSchema(), hooks, searcher)

	res, err := svc.Record(context.Background(), RecordRequest{Name: "grants", Lang: "en", RecordID: "g-1"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	d := searcher.calls[0]
	if d.RecordID != "g-1" || d.Rows != RecordRows || len(d.Facets) != 0 {
		t.Errorf("unexpected record descriptor %+v", d)
	}
	if len(res.Presentation.Docs) != 1 {
		t.Errorf("expected the record, got %d docs", len(res.Presentation.Docs))
	}
	if want := []string{"PreRecord", "PostRecord"}; !reflect.DeepEqual(hooks.calls, want) {
		t.Errorf("hooks = %v, want %v", hooks.calls, want)
	}
}

func TestRecord_Missing(t *testing.T) {
	svc := newTestSearchService(grantsSchema(), nil, &fakeSearcher{resp: &engine.Response{}})
	_, err := svc.Record(context.Background(), RecordRequest{Name: "grants", Lang: "en", RecordID: "g-404"})
	if !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMoreLikeThis(t *testing.T) {
	hooks := &recordingHooks{}
	searcher := &fakeSearcher{resp: &engine.Response{NumFound: 2, Docs: []engine.Document{{"id": "g-2"}, {"id": "g-3"}}}}
	svc := newTestSearchService(grantsSchema(), hooks, searcher)

	res, err := svc.MoreLikeThis(context.Background(), RecordRequest{Name: "grants", Lang: "en", RecordID: "g-1"})
	if err != nil {
		t.Fatalf("MoreLikeThis: %v", err)
	}
	if d := searcher.calls[0]; d.MLT == nil || d.MLT.RecordID != "g-1" || d.MLT.Count != 3 {
		t.Errorf("unexpected similarity descriptor %+v", d.MLT)
	}
	if len(res.Presentation.Docs) != 2 {
		t.Errorf("expected 2 similar docs, got %d", len(res.Presentation.Docs))
	}
	if want := []string{"PreMLT", "PostMLT"}; !reflect.DeepEqual(hooks.calls, want) {
		t.Errorf("hooks = %v, want %v", hooks.calls, want)
	}
}

func TestMoreLikeThis_Disabled(t *testing.T) {
	sch := grantsSchema()
	sch.Search.MLTEnabled = false
	searcher := &fakeSearcher{}
	svc := newTestSearchService(sch, nil, searcher)

	_, err := svc.MoreLikeThis(context.Background(), RecordRequest{Name: "grants", Lang: "en", RecordID: "g-1"})
	if !errors.Is(err, query.ErrMLTDisabled) {
		t.Errorf("expected ErrMLTDisabled, got %v", err)
	}
	if len(searcher.calls) != 0 {
		t.Error("the engine must not be called")
	}
}

func TestIsNewTextSearch(t *testing.T) {
	tests := []struct {
		referer, text string
		want          bool
	}{
		{"", "", false},
		{"", "clinic", true},
		{"https://s.example/search/en/grants", "clinic", true},
		{"https://s.example/search/en/grants?search_text=", "clinic", true},
		{"https://s.example/search/en/grants?search_text=clinic", "clinic+health", false},
		{"https://s.example/search/en/grants?search_text=clinic", "  ", false},
	}
	for _, tc := range tests {
		if got := IsNewTextSearch(tc.referer, tc.text); got != tc.want {
			t.Errorf("IsNewTextSearch(%q, %q) = %v, want %v", tc.referer, tc.text, got, tc.want)
		}
	}
}

func TestShowAllResults(t *testing.T) {
	tests := []struct {
		params url.Values
		want   bool
	}{
		{url.Values{}, true},
		{url.Values{"page": {"3"}, "sort": {"score desc"}, "encoding": {"utf-8"}}, true},
		{url.Values{"search_text": {"x"}}, false},
		{url.Values{"owner_org": {"hc-sc"}, "page": {"1"}}, false},
	}
	for _, tc := range tests {
		if got := ShowAllResults(tc.params); got != tc.want {
			t.Errorf("ShowAllResults(%v) = %v, want %v", tc.params, got, tc.want)
		}
	}
}
