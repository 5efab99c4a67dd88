package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/plugin"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/tasks"
)

func grantsSchema() *schema.Schema {
	search := model.Search{
		SearchID:          "grants",
		SearchAliasEN:     "grants-contributions",
		LabelEN:           "Grants",
		LabelFR:           "Subventions",
		PageSize:          10,
		SortOrderEN:       "score desc,agreement_date desc",
		SortOrderFR:       "score desc,agreement_date desc",
		SortDefaultEN:     "agreement_date desc",
		SortDefaultFR:     "agreement_date desc",
		DisabledMessageEN: "Down for maintenance",
		DisabledMessageFR: "En maintenance",
		MLTEnabled:        true,
		MLTItems:          3,
	}
	fid := model.FieldFID("grants", "owner_org")
	fields := []model.Field{
		{FieldID: "owner_org", FID: fid, SearchID: "grants", Type: model.TypeString, Lang: model.LangBilingual,
			LabelEN: "Organization", LabelFR: "Organisation", IsCoded: true, IsFacet: true, FacetSort: model.FacetSortCount},
		{FieldID: "title_en", FID: model.FieldFID("grants", "title_en"), SearchID: "grants", Type: model.TypeTextEN, Lang: model.LangEN},
		{FieldID: "title_fr", FID: model.FieldFID("grants", "title_fr"), SearchID: "grants", Type: model.TypeTextFR, Lang: model.LangFR},
		{FieldID: "agreement_value", FID: model.FieldFID("grants", "agreement_value"), SearchID: "grants", Type: model.TypeFloat, Lang: model.LangBilingual},
		{FieldID: "agreement_date", FID: model.FieldFID("grants", "agreement_date"), SearchID: "grants", Type: model.TypeDate, Lang: model.LangBilingual},
	}
	codes := []model.Code{
		{CodeID: "hc-sc", FieldFID: fid, LabelEN: "Health Canada", LabelFR: "Santé Canada"},
	}
	return schema.New(search, fields, codes)
}

type fakeSchemas map[string]*schema.Schema

func (f fakeSchemas) Resolve(_ context.Context, lang, name string) (*schema.Schema, error) {
	for _, s := range f {
		if s.ID() == name || s.Alias(lang) == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", schema.ErrNotFound, name)
}

type recordingHooks struct {
	plugin.Base
	calls []string
}

func (h *recordingHooks) PreSearch(_ *schema.Schema, lang string, d *query.Descriptor) {
	h.calls = append(h.calls, "PreSearch")
	d.AddFilter("language", lang)
}
func (h *recordingHooks) PostSearch(*schema.Schema, string, *engine.Response) {
	h.calls = append(h.calls, "PostSearch")
}
func (h *recordingHooks) PreRecord(*schema.Schema, string, *query.Descriptor) {
	h.calls = append(h.calls, "PreRecord")
}
func (h *recordingHooks) PostRecord(*schema.Schema, string, *engine.Response) {
	h.calls = append(h.calls, "PostRecord")
}
func (h *recordingHooks) PreExport(*schema.Schema, string, *query.Descriptor) {
	h.calls = append(h.calls, "PreExport")
}
func (h *recordingHooks) PreMLT(*schema.Schema, string, *query.Descriptor) {
	h.calls = append(h.calls, "PreMLT")
}
func (h *recordingHooks) PostMLT(*schema.Schema, string, *engine.Response) {
	h.calls = append(h.calls, "PostMLT")
}

type fakeHookProvider struct {
	hooks plugin.Hooks
}

func (f fakeHookProvider) For(string) plugin.Hooks {
	if f.hooks == nil {
		return plugin.Base{}
	}
	return f.hooks
}

type fakeSearcher struct {
	resp  *engine.Response
	err   error
	calls []*query.Descriptor
}

func (f *fakeSearcher) Search(_ context.Context, d *query.Descriptor) (*engine.Response, error) {
	f.calls = append(f.calls, d)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &engine.Response{}, nil
	}
	return f.resp, nil
}

type storedObject struct {
	data     []byte
	modified time.Time
}

type fakeStore struct {
	now     time.Time
	objects map[string]storedObject
	putErr  error
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{now: now, objects: map[string]storedObject{}}
}

func (f *fakeStore) Put(_ context.Context, name string, r io.Reader, size int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	if int64(buf.Len()) != size {
		return fmt.Errorf("size mismatch: %d != %d", buf.Len(), size)
	}
	f.objects[name] = storedObject{data: buf.Bytes(), modified: f.now}
	return nil
}

func (f *fakeStore) Modified(_ context.Context, name string) (time.Time, bool, error) {
	o, ok := f.objects[name]
	return o.modified, ok, nil
}

func (f *fakeStore) PresignedURL(_ context.Context, name, download string, _ time.Duration) (string, error) {
	return "https://files.example/" + name + "?as=" + download, nil
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value
	return true, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type fakeQueue struct {
	tasks []tasks.ExportTask
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task tasks.ExportTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}
