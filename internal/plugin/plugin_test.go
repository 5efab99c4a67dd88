package plugin

import (
	"testing"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

func travelSchema() *schema.Schema {
	fid := model.FieldFID("travelq", TotalRangeField)
	return schema.New(
		model.Search{SearchID: "travelq"},
		[]model.Field{{FieldID: TotalRangeField, FID: fid, SearchID: "travelq", IsCoded: true}},
		[]model.Code{{CodeID: "r3", FieldFID: fid, LabelEN: "$1,000 - $4,999", LabelFR: "1 000 $ - 4 999 $"}},
	)
}

func TestTotalRange(t *testing.T) {
	tests := []struct {
		total float64
		want  string
	}{
		{-5, "r7"},
		{0, "r7"},
		{0.01, "r6"},
		{249.99, "r6"},
		{250, "r5"},
		{999, "r4"},
		{1000, "r3"},
		{24999.99, "r2"},
		{25000, "r1"},
		{1e6, "r1"},
	}
	for _, tc := range tests {
		if got := TotalRange(tc.total); got != tc.want {
			t.Errorf("TotalRange(%v) = %s, want %s", tc.total, got, tc.want)
		}
	}
}

func TestTravelQ_LoadRecord(t *testing.T) {
	s := travelSchema()
	tests := []struct {
		name   string
		total  interface{}
		format string
		want   string
		en     string
	}{
		{"float total", 1200.5, schema.DefaultFormat, "r3", "$1,000 - $4,999"},
		{"string total", "1,200.50", schema.DefaultFormat, "r3", "$1,000 - $4,999"},
		{"nothing to report", 1200.5, "NTR", "r7", schema.UnknownValue},
		{"missing total", nil, schema.DefaultFormat, "r7", schema.UnknownValue},
		{"blank total", "", schema.DefaultFormat, "r7", schema.UnknownValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := engine.Document{"id": "x"}
			if tc.total != nil {
				doc["total"] = tc.total
			}
			doc = TravelQ{}.LoadRecord(nil, doc, s, tc.format)
			if doc[TotalRangeField] != tc.want {
				t.Errorf("total_range = %v, want %s", doc[TotalRangeField], tc.want)
			}
			if doc[TotalRangeField+"_en"] != tc.en {
				t.Errorf("total_range_en = %v, want %s", doc[TotalRangeField+"_en"], tc.en)
			}
		})
	}
}

func TestTenderNotices_PreSearch(t *testing.T) {
	for lang, want := range map[string]string{model.LangEN: "English", model.LangFR: "Français"} {
		d := &query.Descriptor{}
		TenderNotices{}.PreSearch(nil, lang, d)
		if len(d.Filters) != 1 {
			t.Fatalf("%s: expected one filter, got %v", lang, d.Filters)
		}
		f := d.Filters[0]
		if f.Field != "language" || f.Tag != query.FacetTag("language") || len(f.Values) != 1 || f.Values[0] != want {
			t.Errorf("%s: unexpected filter %+v", lang, f)
		}
	}
}

type countingPlugin struct {
	Base
	searches int
}

func (p *countingPlugin) PreSearch(*schema.Schema, string, *query.Descriptor) { p.searches++ }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.For("travelq").(TravelQ); !ok {
		t.Error("expected the travelq plugin to be built in")
	}
	if _, ok := r.For("unknown").(Base); !ok {
		t.Error("expected the no-op plugin for unregistered applications")
	}

	p := &countingPlugin{}
	r.Register("contracts", p)
	r.For("contracts").PreSearch(nil, model.LangEN, &query.Descriptor{})
	if p.searches != 1 {
		t.Errorf("expected the registered plugin to run, got %d calls", p.searches)
	}

	keep, rec := r.For("unknown").FilterRecord(map[string]interface{}{"a": "b"}, nil, "")
	if !keep || rec["a"] != "b" {
		t.Errorf("expected the no-op filter to keep the record unchanged")
	}
}
