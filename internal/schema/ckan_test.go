package schema

import (
	"strings"
	"testing"

	"oc-search-go/internal/model"
)

const ckanYAML = `
resources:
- resource_name: contracts
  datastore_primary_key: [reference_number]
  fields:
  - datastore_id: reference_number
    label: {en: Reference Number, fr: Numéro de référence}
  - datastore_id: description_en
    label: Description
  - datastore_id: contract_date
    label: {en: Contract Date, fr: Date du contrat}
    extract_date_year: true
  - datastore_id: contract_value
    datastore_type: money
    label: Value
  - datastore_id: instrument_type
    label: Instrument
    validators: scheming_required scheming_multiple_choice
    choices:
      A: {en: Amendment, fr: Modification, lookup: [C]}
      C: Contract
  - datastore_id: record_created
    label: Created
- resource_name: contracts-nil
  fields:
  - datastore_id: reference_number
    label: Reference Number
  - datastore_id: quarter
    label: Quarter
`

func TestParseCKANYAML(t *testing.T) {
	def, err := ParseCKANYAML(strings.NewReader(ckanYAML), CKANOptions{SearchID: "contracts", TitleEN: "Contracts", TitleFR: "Contrats"})
	if err != nil {
		t.Fatalf("ParseCKANYAML: %v", err)
	}
	if def.Search.IDFields != "reference_number" || def.Search.AltFormats != "NTR" {
		t.Errorf("unexpected search: %+v", def.Search)
	}
	s := def.Schema()
	if _, ok := s.Field("record_created"); ok {
		t.Error("internal CKAN fields must be skipped")
	}

	desc, _ := s.Field("description_en")
	if desc.Type != model.TypeTextEN || desc.Lang != model.LangEN || desc.ExportFields != "description_eng" {
		t.Errorf("description_en: %+v", desc)
	}
	date, _ := s.Field("contract_date")
	if date.Type != model.TypeDate || !date.IsDefaultYear || date.IsDefaultMonth {
		t.Errorf("contract_date: %+v", date)
	}
	value, _ := s.Field("contract_value")
	if value.Type != model.TypeFloat || !value.IsCurrency || value.DefaultValue != "float|0.0" {
		t.Errorf("contract_value: %+v", value)
	}
	inst, _ := s.Field("instrument_type")
	if !inst.IsCoded || !inst.MultiValued {
		t.Errorf("instrument_type: %+v", inst)
	}
	a, ok := s.Code("instrument_type", "a")
	if !ok || a.LabelFR != "Modification" || a.LookupCodesDefault != "C" {
		t.Errorf("code A: %+v", a)
	}
	c, ok := s.Code("instrument_type", "C")
	if !ok || c.LabelEN != "Contract" || c.LabelFR != "Contract" {
		t.Errorf("code C: %+v", c)
	}

	quarter, _ := s.Field("quarter")
	if quarter.AltFormat != "NTR" {
		t.Errorf("NTR-only field should be tagged, got %q", quarter.AltFormat)
	}
	ref, _ := s.Field("reference_number")
	if ref.AltFormat != "" {
		t.Errorf("shared field should belong to every format, got %q", ref.AltFormat)
	}
	for _, id := range []string{"owner_org", "format"} {
		if _, ok := s.Field(id); !ok {
			t.Errorf("expected %s field", id)
		}
	}
}

func TestParseCKANYAML_NoResources(t *testing.T) {
	if _, err := ParseCKANYAML(strings.NewReader("resources: []\n"), CKANOptions{SearchID: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
