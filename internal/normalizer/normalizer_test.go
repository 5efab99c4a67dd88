package normalizer

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

func testField(id, typ string, mod func(f *model.Field)) model.Field {
	f := model.Field{
		FieldID:  id,
		FID:      model.FieldFID("contracts", id),
		SearchID: "contracts",
		Type:     typ,
		Lang:     model.LangBilingual,
	}
	if mod != nil {
		mod(&f)
	}
	return f
}

var pspcRenamed = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func contractsSchema() *schema.Schema {
	search := model.Search{SearchID: "contracts", IDFields: "owner_org,year,month", AltFormats: "NTR"}
	fields := []model.Field{
		testField("owner_org", model.TypeString, func(f *model.Field) { f.IsCoded = true; f.DefaultValue = "str|-" }),
		testField("year", model.TypeInt, func(f *model.Field) { f.DefaultValue = "int|0" }),
		testField("month", model.TypeString, nil),
		testField("start_date", model.TypeDate, func(f *model.Field) { f.DefaultValue = "date|0001-01-01T00:00:00" }),
		testField("value", model.TypeFloat, func(f *model.Field) { f.IsCurrency = true; f.DefaultValue = "float|0.0" }),
		testField("commodity", model.TypeString, func(f *model.Field) {
			f.MultiValued, f.Delimiter, f.IsCoded, f.ExportFields = true, ";", true, "commodity_export"
		}),
		testField("description_en", model.TypeTextEN, func(f *model.Field) { f.Lang = model.LangEN; f.ExportFields = "description_eng" }),
		testField("quarter", model.TypeString, func(f *model.Field) { f.AltFormat = "NTR" }),
		testField("fiscal_year", model.TypeString, func(f *model.Field) { f.AltFormat = "NTR" }),
	}
	orgFID := model.FieldFID("contracts", "owner_org")
	comFID := model.FieldFID("contracts", "commodity")
	codes := []model.Code{
		{CodeID: "tbs-sct", FieldFID: orgFID, LabelEN: "Treasury Board Secretariat", LabelFR: "Secrétariat du Conseil du Trésor"},
		{CodeID: "hc-sc", FieldFID: orgFID, LabelEN: "Health Canada", LabelFR: "Santé Canada", LookupDateField: "start_date",
			Chronologic: []model.ChronologicCode{{
				LabelEN: "Health and Welfare", LabelFR: "Santé et Bien-être",
				StartDate: time.Date(1944, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC),
			}}},
		{CodeID: "pspc", FieldFID: orgFID, LabelEN: "Public Services and Procurement", LabelFR: "Services publics et Approvisionnement",
			LookupCodesDefault: "pwgsc, tpsgc", LookupCodesConditional: "pspc-spac", LookupDateField: "start_date",
			LookupDate: &pspcRenamed, LookupTest: model.LookupGE},
		{CodeID: "G", FieldFID: comFID, LabelEN: "Goods", LabelFR: "Biens"},
		{CodeID: "S", FieldFID: comFID, LabelEN: "Services", LabelFR: "Services"},
	}
	return schema.New(search, fields, codes)
}

func observeWarnings(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	log.Replace(zap.New(core))
	t.Cleanup(func() { log.Replace(zap.NewNop()) })
	return logs
}

func baseRecord() Record {
	return Record{"owner_org": "tbs-sct", "year": "2023", "month": "04"}
}

func TestRecordID(t *testing.T) {
	tests := []struct {
		name   string
		format string
		rec    Record
		want   string
	}{
		{"identifier fields", "", baseRecord(), "tbs-sct,2023,04"},
		{"slash replaced", "", Record{"owner_org": "a/b", "year": "2023", "month": "04"}, "a_b,2023,04"},
		{"ntr by quarter", "NTR", Record{"owner_org": "tbs-sct", "year": "2023", "quarter": "Q1"}, "tbs-sct,2023,Q1"},
		{"ntr by fiscal year", "NTR", Record{"owner_org": "tbs-sct", "fiscal_year": "2022-2023", "quarter": "Q4"}, "tbs-sct,2022-2023,Q4"},
		{"explicit id", "", Record{"id": "abc/1"}, "abc_1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := New(contractsSchema(), Options{Format: tc.format})
			got, err := n.RecordID(tc.rec)
			if err != nil {
				t.Fatalf("RecordID: %v", err)
			}
			if got != tc.want {
				t.Errorf("RecordID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalize_MissingIDSkipsRecord(t *testing.T) {
	n := New(contractsSchema(), Options{})
	res := n.Normalize(7, Record{"owner_org": "tbs-sct", "year": "2023", "quarter": "Q1"})
	if res.Doc != nil {
		t.Fatalf("expected no document, got %v", res.Doc)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrNoRecordID) || res.Errors[0].Row != 7 {
		t.Errorf("unexpected errors %v", res.Errors)
	}
}

func TestNormalize_Dates(t *testing.T) {
	n := New(contractsSchema(), Options{})

	rec := baseRecord()
	rec["start_date"] = "2023-04-04"
	doc := n.Normalize(1, rec).Doc
	if doc["start_date"] != "2023-04-04" || doc["start_date_en"] != "Apr 4, 2023" || doc["start_date_fr"] != "4 avr. 2023" {
		t.Errorf("unexpected date companions %v / %v / %v", doc["start_date"], doc["start_date_en"], doc["start_date_fr"])
	}

	rec["start_date"] = "2023-13-01"
	res := n.Normalize(2, rec)
	if res.Doc == nil {
		t.Fatal("a bad date must not drop the row")
	}
	var rowErr *RowError
	if len(res.Errors) != 1 || !errors.As(res.Errors[0], &rowErr) || rowErr.Field != "start_date" {
		t.Fatalf("expected a start_date row error, got %v", res.Errors)
	}
	if res.Doc["start_date"] != "0001-01-01T00:00:00" {
		t.Errorf("expected blanked date to be backfilled, got %v", res.Doc["start_date"])
	}
	if res.Doc["start_date_en"] != "Jan 1, 1" || res.Doc["start_date_fr"] != "1 janv. 1" {
		t.Errorf("expected backfilled date companions, got %v / %v", res.Doc["start_date_en"], res.Doc["start_date_fr"])
	}

	doc = n.Normalize(3, baseRecord()).Doc
	if doc["start_date"] != "0001-01-01T00:00:00" || doc["start_date_en"] != "Jan 1, 1" || doc["start_date_fr"] != "1 janv. 1" {
		t.Errorf("expected a missing date to get the default and its companions, got %v / %v / %v",
			doc["start_date"], doc["start_date_en"], doc["start_date_fr"])
	}
}

func TestNormalize_Numbers(t *testing.T) {
	n := New(contractsSchema(), Options{})
	tests := []struct {
		input  string
		want   float64
		errors int
	}{
		{"$1,234.50", 1234.5, 0},
		{".", 0, 0},
		{"-12", -12, 0},
		{"abc", 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			rec := baseRecord()
			rec["value"] = tc.input
			res := n.Normalize(1, rec)
			if len(res.Errors) != tc.errors {
				t.Fatalf("expected %d errors, got %v", tc.errors, res.Errors)
			}
			if res.Doc["value"] != tc.want {
				t.Errorf("value = %v, want %v", res.Doc["value"], tc.want)
			}
		})
	}

	rec := baseRecord()
	rec["value"] = "1234.5"
	doc := n.Normalize(1, rec).Doc
	en, _ := doc["value_en"].(string)
	fr, _ := doc["value_fr"].(string)
	if !strings.HasPrefix(en, "$1") || !strings.HasSuffix(en, ".50") {
		t.Errorf("unexpected English currency %q", en)
	}
	if !strings.HasSuffix(fr, " $") || !strings.Contains(fr, ",50") {
		t.Errorf("unexpected French currency %q", fr)
	}
	if doc["year"] != int64(2023) {
		t.Errorf("expected integer year, got %#v", doc["year"])
	}
}

func TestNormalize_Integers(t *testing.T) {
	n := New(contractsSchema(), Options{})
	tests := []struct {
		input string
		want  int64
		fails bool
	}{
		{"2,023", 2023, false},
		{"-5", -5, false},
		{"12.0", 12, false},
		{"12.7", 0, true},
		{"1e30", 0, true},
		{"-1e30", 0, true},
		{"9.3e18", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			rec := baseRecord()
			rec["year"] = tc.input
			res := n.Normalize(1, rec)
			if res.Doc == nil {
				t.Fatal("a bad integer must not drop the row")
			}
			var rowErr *RowError
			if tc.fails {
				if len(res.Errors) != 1 || !errors.As(res.Errors[0], &rowErr) || rowErr.Field != "year" {
					t.Fatalf("expected a year row error, got %v", res.Errors)
				}
			} else if len(res.Errors) != 0 {
				t.Fatalf("unexpected errors %v", res.Errors)
			}
			// rejected values are blanked and then backfilled from int|0
			if res.Doc["year"] != tc.want {
				t.Errorf("year = %#v, want %d", res.Doc["year"], tc.want)
			}
		})
	}
}

func TestNormalize_TruncatesLongText(t *testing.T) {
	logs := observeWarnings(t)
	n := New(contractsSchema(), Options{MaxTextLength: 10})
	rec := baseRecord()
	rec["description_en"] = "abcdefghijklmnopqrst"

	res := n.Normalize(3, rec)
	want := "abcdefghij" + Ellipsis
	if res.Doc["description_en"] != want || res.Doc["description_eng"] != want {
		t.Errorf("expected truncated text and export copy, got %v / %v", res.Doc["description_en"], res.Doc["description_eng"])
	}
	if len(res.Warnings) != 1 || logs.FilterMessage("[Normalizer] text truncated").Len() != 1 {
		t.Errorf("expected one truncation warning, got %v", res.Warnings)
	}
}

func TestNormalize_UnknownCodeNeverDropped(t *testing.T) {
	logs := observeWarnings(t)
	n := New(contractsSchema(), Options{})

	rec := baseRecord()
	rec["owner_org"] = "zzz"
	doc := n.Normalize(1, rec).Doc
	if doc["owner_org_en"] != schema.UnknownValue || doc["owner_org_fr"] != schema.UnknownValue {
		t.Errorf("expected sentinel labels, got %v / %v", doc["owner_org_en"], doc["owner_org_fr"])
	}
	if logs.FilterMessage("[Normalizer] unknown code value").Len() != 1 {
		t.Error("expected an unknown code warning")
	}
}

func TestNormalize_MultivalueCodes(t *testing.T) {
	logs := observeWarnings(t)
	n := New(contractsSchema(), Options{})

	rec := baseRecord()
	rec["commodity"] = "g; S ;X"
	doc := n.Normalize(1, rec).Doc

	if !reflect.DeepEqual(doc["commodity"], []string{"g", "S", "X"}) {
		t.Errorf("unexpected split %v", doc["commodity"])
	}
	if !reflect.DeepEqual(doc["commodity_en"], []string{"Goods", "Services", schema.UnknownValue}) {
		t.Errorf("unexpected labels %v", doc["commodity_en"])
	}
	if doc["commodity_export"] != "g; S ;X" {
		t.Errorf("expected undivided export copy, got %v", doc["commodity_export"])
	}
	if logs.FilterField(zap.String("value", "X")).Len() != 1 {
		t.Error("expected a warning for the unknown element")
	}
}

func TestNormalize_ChronologicLabel(t *testing.T) {
	n := New(contractsSchema(), Options{})
	rec := baseRecord()
	rec["owner_org"] = "HC-SC"
	rec["start_date"] = "1990-06-01"

	doc := n.Normalize(1, rec).Doc
	if doc["owner_org_en"] != "Health and Welfare" || doc["owner_org_fr"] != "Santé et Bien-être" {
		t.Errorf("expected the label in effect in 1990, got %v / %v", doc["owner_org_en"], doc["owner_org_fr"])
	}

	rec["start_date"] = "2001-06-01"
	if doc := n.Normalize(1, rec).Doc; doc["owner_org_en"] != "Health Canada" {
		t.Errorf("expected the current label, got %v", doc["owner_org_en"])
	}
}

func TestNormalize_LookupCodes(t *testing.T) {
	n := New(contractsSchema(), Options{})
	tests := []struct {
		name string
		date string
		want []string
	}{
		{"after the rename", "2020-03-01", []string{"pspc-spac"}},
		{"on the rename date", "2016-01-01", []string{"pspc-spac"}},
		{"before the rename", "2010-03-01", []string{"pwgsc", "tpsgc"}},
		{"no date", "", []string{"pwgsc", "tpsgc"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := baseRecord()
			rec["owner_org"] = "pspc"
			rec["start_date"] = tc.date
			doc := n.Normalize(1, rec).Doc
			if !reflect.DeepEqual(doc["owner_org"+LookupSuffix], tc.want) {
				t.Errorf("lookup = %v, want %v", doc["owner_org"+LookupSuffix], tc.want)
			}
		})
	}

	if doc := n.Normalize(1, baseRecord()).Doc; doc["owner_org"+LookupSuffix] != nil {
		t.Errorf("codes without lookups must not add a companion, got %v", doc["owner_org"+LookupSuffix])
	}
}

func TestSetEmptyFields_Idempotent(t *testing.T) {
	n := New(contractsSchema(), Options{})
	doc := n.Normalize(1, Record{"id": "x1", "owner_org": "", "commodity": ""}).Doc

	if doc["owner_org"] != "-" || doc["owner_org_en"] != "-" || doc["owner_org_fr"] != "-" {
		t.Errorf("expected coded default and sentinel labels, got %v", doc)
	}
	if doc["year"] != int64(0) || doc["value"] != float64(0) {
		t.Errorf("expected typed numeric defaults, got %#v / %#v", doc["year"], doc["value"])
	}
	if doc["commodity_en"] != schema.UnknownValue {
		t.Errorf("expected sentinel for unset coded companion, got %v", doc["commodity_en"])
	}
	if doc[FormatField] != schema.DefaultFormat {
		t.Errorf("expected default format tag, got %v", doc[FormatField])
	}

	once := engine.Document{}
	for k, v := range doc {
		once[k] = v
	}
	n.SetEmptyFields(doc)
	if !reflect.DeepEqual(doc, once) {
		t.Errorf("second backfill changed the document:\n got %v\nwant %v", doc, once)
	}
}

type fakeHooks struct {
	veto bool
}

func (h fakeHooks) FilterRecord(rec Record, s *schema.Schema, format string) (bool, Record) {
	if h.veto {
		return false, nil
	}
	out := Record{}
	for k, v := range rec {
		out[k] = v
	}
	out["month"] = "05"
	return true, out
}

func (h fakeHooks) LoadRecord(rec Record, doc engine.Document, s *schema.Schema, format string) engine.Document {
	doc["loaded_by"] = s.ID() + "/" + format
	return doc
}

func TestNormalize_Hooks(t *testing.T) {
	n := New(contractsSchema(), Options{Hooks: fakeHooks{veto: true}})
	if res := n.Normalize(1, baseRecord()); !res.Skipped || res.Doc != nil {
		t.Errorf("expected vetoed record to be skipped, got %+v", res)
	}

	n = New(contractsSchema(), Options{Hooks: fakeHooks{}})
	doc := n.Normalize(1, baseRecord()).Doc
	if doc["id"] != "tbs-sct,2023,05" {
		t.Errorf("expected rewritten record to drive the id, got %v", doc["id"])
	}
	if doc["loaded_by"] != "contracts/default" {
		t.Errorf("expected LoadRecord to run, got %v", doc["loaded_by"])
	}
}
