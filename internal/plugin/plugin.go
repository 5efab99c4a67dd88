// Package plugin holds the per-application extension points of the search
// and import flows, resolved by application id.
package plugin

import (
	"sync"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/normalizer"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

// Hooks is implemented by every plugin. Embed Base to override only the
// hooks a plugin needs.
type Hooks interface {
	normalizer.RecordHooks

	PreSearch(s *schema.Schema, lang string, d *query.Descriptor)
	PostSearch(s *schema.Schema, lang string, resp *engine.Response)
	PreRecord(s *schema.Schema, lang string, d *query.Descriptor)
	PostRecord(s *schema.Schema, lang string, resp *engine.Response)
	PreExport(s *schema.Schema, lang string, d *query.Descriptor)
	PreMLT(s *schema.Schema, lang string, d *query.Descriptor)
	PostMLT(s *schema.Schema, lang string, resp *engine.Response)
}

// Base implements every hook as a no-op.
type Base struct{}

func (Base) PreSearch(*schema.Schema, string, *query.Descriptor) {}
func (Base) PostSearch(*schema.Schema, string, *engine.Response) {}
func (Base) PreRecord(*schema.Schema, string, *query.Descriptor) {}
func (Base) PostRecord(*schema.Schema, string, *engine.Response) {}
func (Base) PreExport(*schema.Schema, string, *query.Descriptor) {}
func (Base) PreMLT(*schema.Schema, string, *query.Descriptor) {}
func (Base) PostMLT(*schema.Schema, string, *engine.Response) {}

func (Base) FilterRecord(rec normalizer.Record, _ *schema.Schema, _ string) (bool, normalizer.Record) {
	return true, rec
}

func (Base) LoadRecord(_ normalizer.Record, doc engine.Document, _ *schema.Schema, _ string) engine.Document {
	return doc
}

// Registry maps application ids to their plugin.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hooks
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *Registry {
	r := &Registry{hooks: map[string]Hooks{}}
	r.Register("travelq", TravelQ{})
	r.Register("tendernotices", TenderNotices{})
	return r
}

// Register installs h for searchID, replacing any previous plugin.
func (r *Registry) Register(searchID string, h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[searchID] = h
}

// For returns the plugin of searchID, or the no-op plugin.
func (r *Registry) For(searchID string) Hooks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.hooks[searchID]; ok {
		return h
	}
	return Base{}
}

// setCodedValue writes a coded value and its label companions, using
// UnknownValue for labels the schema does not know.
func setCodedValue(doc engine.Document, s *schema.Schema, fieldID, value string) {
	doc[fieldID] = value
	en, fr := schema.UnknownValue, schema.UnknownValue
	if code, ok := s.Code(fieldID, value); ok {
		en, fr = code.Label(model.LangEN), code.Label(model.LangFR)
	}
	doc[fieldID+"_en"] = en
	doc[fieldID+"_fr"] = fr
}
