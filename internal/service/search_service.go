// Package service holds the request-level orchestration: schema lookup,
// query building, plugin hooks, engine calls and response shaping.
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/metrics"
	"oc-search-go/internal/model"
	"oc-search-go/internal/plugin"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/internal/shaper"
	"oc-search-go/pkg/log"
)

// RecordRows caps the documents returned for one record id. Alternate
// formats may share an id with the main record.
const RecordRows = 25

// SchemaProvider resolves an application by id or language alias.
// *schema.Cache satisfies it.
type SchemaProvider interface {
	Resolve(ctx context.Context, lang, name string) (*schema.Schema, error)
}

// HookProvider returns the hooks registered for an application.
// *plugin.Registry satisfies it.
type HookProvider interface {
	For(searchID string) plugin.Hooks
}

// Searcher runs one engine query.
type Searcher interface {
	Search(ctx context.Context, d *query.Descriptor) (*engine.Response, error)
}

// DisabledError is returned for applications switched off by an operator.
type DisabledError struct {
	SearchID string
	Message  string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("search %s is disabled", e.SearchID)
}

// SearchRequest is one search page request.
type SearchRequest struct {
	Name   string
	Lang   string
	Params url.Values
	// Referer is the previous page URL, used to detect a new text search.
	Referer string
}

// RecordRequest asks for one record, or for the records similar to it.
type RecordRequest struct {
	Name     string
	Lang     string
	RecordID string
}

// SearchResult carries everything a renderer needs.
type SearchResult struct {
	Schema       *schema.Schema
	Descriptor   *query.Descriptor
	Response     *engine.Response
	Presentation *shaper.Presentation
	// ShowAllResults is set when the request carries no search criteria.
	ShowAllResults bool
}

// SearchService serves the interactive search, record and similarity views.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Record(ctx context.Context, req RecordRequest) (*SearchResult, error)
	MoreLikeThis(ctx context.Context, req RecordRequest) (*SearchResult, error)
	Schema(ctx context.Context, lang, name string) (*schema.Schema, error)
}

type searchService struct {
	schemas  SchemaProvider
	hooks    HookProvider
	searcher Searcher
	cfg      config.SearchConfig
}

// NewSearchService creates a new SearchService.
func NewSearchService(schemas SchemaProvider, hooks HookProvider, searcher Searcher, cfg config.SearchConfig) SearchService {
	return &searchService{schemas: schemas, hooks: hooks, searcher: searcher, cfg: cfg}
}

// Schema resolves an enabled application.
func (s *searchService) Schema(ctx context.Context, lang, name string) (*schema.Schema, error) {
	return resolveEnabled(ctx, s.schemas, lang, name)
}

// resolveEnabled resolves name for lang. A disabled application is returned
// together with a *DisabledError so callers can still render its labels.
func resolveEnabled(ctx context.Context, schemas SchemaProvider, lang, name string) (*schema.Schema, error) {
	if lang != model.LangEN && lang != model.LangFR {
		return nil, &query.ParamError{Param: "lang", Reason: "expected en or fr"}
	}
	sch, err := schemas.Resolve(ctx, lang, name)
	if err != nil {
		return nil, err
	}
	if sch.Search.IsDisabled {
		return sch, &DisabledError{SearchID: sch.ID(), Message: sch.DisabledMessage(lang)}
	}
	return sch, nil
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	sch, err := s.Schema(ctx, req.Lang, req.Name)
	if err != nil {
		return nil, err
	}
	hooks := s.hooks.For(sch.ID())

	rows := sch.PageSize()
	start, page := query.CalcStartingRow(req.Params.Get("page"), rows)
	newText := IsNewTextSearch(req.Referer, req.Params.Get("search_text"))
	facets := sch.FacetIDs(req.Lang)

	d, err := query.Build(query.Request{Params: req.Params, Lang: req.Lang, NewTextSearch: newText}, sch, facets, query.Options{
		Mode:        query.ModeSearch,
		StartRow:    start,
		Rows:        rows,
		Highlight:   s.cfg.Highlight,
		DefaultSort: query.DefaultSort(sch, req.Lang, newText),
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(sch.ID(), "search", "rejected").Inc()
		return nil, err
	}
	hooks.PreSearch(sch, req.Lang, d)

	resp, err := s.run(ctx, sch, "search", d)
	if err != nil {
		return nil, err
	}
	hooks.PostSearch(sch, req.Lang, resp)

	pres := shaper.Shape(sch, shaper.Input{
		Response: resp,
		Lang:     req.Lang,
		Facets:   facets,
		Filters:  d.Filters,
		Page:     page,
		Radius:   s.cfg.PaginationRadius,
		Sort:     d.Sort,
	})
	return &SearchResult{
		Schema:         sch,
		Descriptor:     d,
		Response:       resp,
		Presentation:   pres,
		ShowAllResults: ShowAllResults(req.Params),
	}, nil
}

func (s *searchService) Record(ctx context.Context, req RecordRequest) (*SearchResult, error) {
	sch, err := s.Schema(ctx, req.Lang, req.Name)
	if err != nil {
		return nil, err
	}
	hooks := s.hooks.For(sch.ID())

	d, err := query.Build(query.Request{Params: url.Values{}, Lang: req.Lang}, sch, nil, query.Options{
		Mode:     query.ModeRecord,
		RecordID: req.RecordID,
		Rows:     RecordRows,
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(sch.ID(), "record", "rejected").Inc()
		return nil, err
	}
	hooks.PreRecord(sch, req.Lang, d)

	resp, err := s.run(ctx, sch, "record", d)
	if err != nil {
		return nil, err
	}
	if resp.NumFound == 0 {
		return nil, fmt.Errorf("%w: record %s in %s", schema.ErrNotFound, req.RecordID, sch.ID())
	}
	hooks.PostRecord(sch, req.Lang, resp)

	return &SearchResult{
		Schema:       sch,
		Descriptor:   d,
		Response:     resp,
		Presentation: shaper.Shape(sch, shaper.Input{Response: resp, Lang: req.Lang}),
	}, nil
}

func (s *searchService) MoreLikeThis(ctx context.Context, req RecordRequest) (*SearchResult, error) {
	sch, err := s.Schema(ctx, req.Lang, req.Name)
	if err != nil {
		return nil, err
	}
	hooks := s.hooks.For(sch.ID())

	d, err := query.BuildMoreLikeThis(query.Request{Params: url.Values{}, Lang: req.Lang}, sch, req.RecordID)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(sch.ID(), "mlt", "rejected").Inc()
		return nil, err
	}
	hooks.PreMLT(sch, req.Lang, d)

	resp, err := s.run(ctx, sch, "mlt", d)
	if err != nil {
		return nil, err
	}
	hooks.PostMLT(sch, req.Lang, resp)

	return &SearchResult{
		Schema:       sch,
		Descriptor:   d,
		Response:     resp,
		Presentation: shaper.Shape(sch, shaper.Input{Response: resp, Lang: req.Lang}),
	}, nil
}

func (s *searchService) run(ctx context.Context, sch *schema.Schema, kind string, d *query.Descriptor) (*engine.Response, error) {
	begin := time.Now()
	resp, err := s.searcher.Search(ctx, d)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(sch.ID(), kind, "error").Inc()
		log.Errorf("[SearchService] %s on %s failed: %v", kind, sch.ID(), err)
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(sch.ID(), kind, "ok").Inc()
	log.Debugf("[SearchService] %s on %s: %d found in %s", kind, sch.ID(), resp.NumFound, time.Since(begin))
	return resp, nil
}

// IsNewTextSearch reports whether searchText starts a text search: the
// referring page had no search text and this request has some.
func IsNewTextSearch(referer, searchText string) bool {
	if strings.TrimSpace(searchText) == "" {
		return false
	}
	if referer == "" {
		return true
	}
	prev, err := url.Parse(referer)
	if err != nil {
		return true
	}
	return strings.TrimSpace(prev.Query().Get("search_text")) == ""
}

// ShowAllResults is true when params hold nothing but display controls.
func ShowAllResults(params url.Values) bool {
	for k := range params {
		switch k {
		case "encoding", "page", "sort":
		default:
			return false
		}
	}
	return true
}
