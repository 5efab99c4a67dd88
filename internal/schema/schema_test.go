package schema

import (
	"reflect"
	"testing"

	"oc-search-go/internal/model"
)

func sampleSchema() *Schema {
	search := model.Search{
		SearchID:           "contracts",
		LabelEN:            "Contracts",
		LabelFR:            "Contrats",
		IDFields:           "owner_org, year ,month",
		SortOrderEN:        "score desc,year desc",
		SortOrderFR:        "score desc,year desc",
		SortOrderDisplayEN: "Best Match,Year",
		SortOrderDisplayFR: "Pertinence,Année",
		SearchAliasFR:      "contrats",
	}
	fields := []model.Field{
		{FID: "contracts_owner_org", FieldID: "owner_org", SearchID: "contracts", Lang: "bi", Type: model.TypeString, IsCoded: true, IsFacet: true, FacetDisplayOrder: 2},
		{FID: "contracts_year", FieldID: "year", SearchID: "contracts", Lang: "bi", Type: model.TypeInt, IsFacet: true, FacetDisplayOrder: 1},
		{FID: "contracts_title_en", FieldID: "title_en", SearchID: "contracts", Lang: "en", Type: model.TypeTextEN, IsFacet: true},
		{FID: "contracts_reason", FieldID: "reason", SearchID: "contracts", Lang: "bi", Type: model.TypeString, AltFormat: "NTR"},
	}
	codes := []model.Code{
		{CID: "contracts_owner_org_TBS-SCT", CodeID: "TBS-SCT", FieldFID: "contracts_owner_org", LabelEN: "Treasury Board", LabelFR: "Conseil du Trésor"},
		{CID: "contracts_owner_org_x", CodeID: "x", FieldFID: "contracts_missing", LabelEN: "orphan"},
	}
	return New(search, fields, codes)
}

func TestSchema_CodeLookupIgnoresCase(t *testing.T) {
	s := sampleSchema()
	c, ok := s.Code("owner_org", " tbs-sct ")
	if !ok {
		t.Fatal("expected code to resolve")
	}
	if c.Label(model.LangFR) != "Conseil du Trésor" {
		t.Errorf("unexpected label %q", c.Label(model.LangFR))
	}
	if _, ok := s.Code("year", "2020"); ok {
		t.Error("uncoded field should not resolve")
	}
	if len(s.AllCodes()) != 1 {
		t.Errorf("orphan code should be dropped, got %d codes", len(s.AllCodes()))
	}
}

func TestSchema_FacetsOrderedAndLanguageFiltered(t *testing.T) {
	s := sampleSchema()
	if got := s.FacetIDs(model.LangFR); !reflect.DeepEqual(got, []string{"year", "owner_org"}) {
		t.Errorf("unexpected fr facets %v", got)
	}
	if got := s.FacetIDs(model.LangEN); !reflect.DeepEqual(got, []string{"title_en", "year", "owner_org"}) {
		t.Errorf("unexpected en facets %v", got)
	}
}

func TestSchema_FieldsForFormat(t *testing.T) {
	s := sampleSchema()
	if n := len(s.FieldsForFormat(DefaultFormat)); n != 3 {
		t.Errorf("default format: expected 3 fields, got %d", n)
	}
	if n := len(s.FieldsForFormat("NTR")); n != 4 {
		t.Errorf("NTR format: expected 4 fields, got %d", n)
	}
}

func TestSchema_Accessors(t *testing.T) {
	s := sampleSchema()
	if got := s.IDFields(); !reflect.DeepEqual(got, []string{"owner_org", "year", "month"}) {
		t.Errorf("IDFields = %v", got)
	}
	if s.IndexName() != "contracts" || s.PageSize() != 10 || s.DefaultOperator() != "AND" {
		t.Errorf("unexpected defaults: %s %d %s", s.IndexName(), s.PageSize(), s.DefaultOperator())
	}
	if s.DefaultSort(model.LangEN) != "score desc" {
		t.Errorf("DefaultSort = %q", s.DefaultSort(model.LangEN))
	}
	if got := s.SortLabels(model.LangFR); !reflect.DeepEqual(got, []string{"Pertinence", "Année"}) {
		t.Errorf("SortLabels = %v", got)
	}
}
