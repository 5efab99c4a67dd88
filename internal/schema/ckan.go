package schema

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oc-search-go/internal/model"
)

// CKANOptions controls how a CKAN recombinant schema becomes a Definition.
type CKANOptions struct {
	SearchID string
	TitleEN  string
	TitleFR  string
	// ExtraChoiceKeys maps choice attributes into Code.Extra01..05 (index 0..4).
	ExtraChoiceKeys [5]string
	// ExtraBilingualKeys maps bilingual choice attributes into Code.Extra0N_en/fr.
	ExtraBilingualKeys [5]string
}

type ckanSchema struct {
	Resources []ckanResource `yaml:"resources"`
}

type ckanResource struct {
	ResourceName string      `yaml:"resource_name"`
	PrimaryKey   []string    `yaml:"datastore_primary_key"`
	Fields       []ckanField `yaml:"fields"`
}

type ckanField struct {
	DatastoreID      string                 `yaml:"datastore_id"`
	DatastoreType    string                 `yaml:"datastore_type"`
	Label            yaml.Node              `yaml:"label"`
	Validators       string                 `yaml:"validators"`
	ExtractDateYear  bool                   `yaml:"extract_date_year"`
	ExtractDateMonth bool                   `yaml:"extract_date_month"`
	Choices          map[string]yaml.Node   `yaml:"choices"`
	ChoicesLookup    map[string]ckanBiLabel `yaml:"choices_lookup"`
}

type ckanBiLabel struct {
	EN string `yaml:"en"`
	FR string `yaml:"fr"`
}

type ckanConditional struct {
	Column   string   `yaml:"column"`
	Lookup   []string `yaml:"lookup"`
	LessThan string   `yaml:"less_than"`
}

var ckanFieldTypes = map[string]string{
	"money": model.TypeFloat,
	"text":  model.TypeString,
	"date":  model.TypeDate,
}

var ckanInternalFields = map[string]bool{
	"record_created":  true,
	"record_modified": true,
	"user_modified":   true,
}

// ParseCKANYAML converts a CKAN recombinant schema. The first resource is the
// primary record shape; a second resource, when present, is the "NTR" shape.
func ParseCKANYAML(r io.Reader, opts CKANOptions) (Definition, error) {
	var doc ckanSchema
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Definition{}, fmt.Errorf("decode ckan yaml: %w", err)
	}
	if len(doc.Resources) == 0 {
		return Definition{}, fmt.Errorf("ckan yaml has no resources")
	}

	def := Definition{Search: model.Search{
		SearchID:           opts.SearchID,
		LabelEN:            opts.TitleEN,
		LabelFR:            opts.TitleFR,
		IDFields:           strings.Trim(strings.Join(doc.Resources[0].PrimaryKey, ","), ","),
		DefaultOperator:    "AND",
		PageSize:           10,
		SortOrderEN:        "score desc",
		SortOrderFR:        "score desc",
		SortOrderDisplayEN: "Best Match",
		SortOrderDisplayFR: "Pertinence",
		SortDefaultEN:      "score desc",
		SortDefaultFR:      "score desc",
		MLTItems:           10,
	}}
	b := &ckanBuilder{def: &def, opts: opts, index: map[string]int{}, codeIndex: map[string]int{}}

	for _, yf := range doc.Resources[0].Fields {
		if err := b.field(yf, doc.Resources[0].ResourceName, false); err != nil {
			return Definition{}, err
		}
	}
	if len(doc.Resources) > 1 {
		def.Search.AltFormats = "NTR"
		for _, yf := range doc.Resources[1].Fields {
			if err := b.field(yf, doc.Resources[1].ResourceName, true); err != nil {
				return Definition{}, err
			}
		}
	}
	b.put(model.Field{
		FieldID: "owner_org", Type: model.TypeString, Lang: model.LangBilingual,
		LabelEN: "Organization Code", LabelFR: "Code de l'organisation",
		Stored: true, Indexed: true, IsCoded: true, DefaultValue: "str|-", Delimiter: ",",
	})
	b.put(model.Field{
		FieldID: "format", Type: model.TypeString, Lang: model.LangBilingual,
		LabelEN: "Record Format", LabelFR: "Format d'enregistrement",
		Stored: true, Indexed: true, DefaultValue: "str|-", Delimiter: ",",
	})
	if err := def.Normalize(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

type ckanBuilder struct {
	def       *Definition
	opts      CKANOptions
	index     map[string]int
	codeIndex map[string]int
}

func (b *ckanBuilder) put(f model.Field) {
	f.SearchID = b.def.Search.SearchID
	f.FID = model.FieldFID(f.SearchID, f.FieldID)
	if i, ok := b.index[f.FieldID]; ok {
		b.def.Fields[i] = f
		return
	}
	b.index[f.FieldID] = len(b.def.Fields)
	b.def.Fields = append(b.def.Fields, f)
}

func (b *ckanBuilder) field(yf ckanField, resource string, ntr bool) error {
	if yf.DatastoreID == "" || ckanInternalFields[yf.DatastoreID] {
		return nil
	}
	if i, ok := b.index[yf.DatastoreID]; ok {
		// already defined by the primary resource: shared by both shapes
		if ntr {
			b.def.Fields[i].AltFormat = ""
		}
		return nil
	}

	f := model.Field{
		FieldID:      yf.DatastoreID,
		FormatName:   resource,
		Type:         model.TypeString,
		Lang:         model.LangBilingual,
		Stored:       true,
		Indexed:      true,
		Delimiter:    ",",
		DefaultValue: "str|-",
		FacetSort:    model.FacetSortCount,
	}
	if ntr {
		f.AltFormat = "NTR"
	}
	if err := decodeLabel(&yf.Label, &f.LabelEN, &f.LabelFR); err != nil {
		return fmt.Errorf("field %s label: %w", yf.DatastoreID, err)
	}
	if t, ok := ckanFieldTypes[yf.DatastoreType]; ok {
		f.Type = t
		if yf.DatastoreType == "money" {
			f.IsCurrency = true
			f.DefaultValue = "float|0.0"
		}
	}
	switch {
	case strings.HasSuffix(f.FieldID, "_en"):
		f.Type, f.Lang, f.ExportFields = model.TypeTextEN, model.LangEN, f.FieldID+"g"
	case strings.HasSuffix(f.FieldID, "_fr"):
		f.Type, f.Lang, f.ExportFields = model.TypeTextFR, model.LangFR, f.FieldID+"a"
	case strings.HasSuffix(f.FieldID, "_date"):
		f.Type = model.TypeDate
		f.DefaultValue = "date|0001-01-01T00:00:00"
		f.IsDefaultYear = yf.ExtractDateYear
		f.IsDefaultMonth = yf.ExtractDateMonth
	}
	for _, v := range strings.Fields(yf.Validators) {
		if v == "scheming_multiple_choice" {
			f.MultiValued = true
		}
	}

	b.put(f)
	fid := model.FieldFID(b.def.Search.SearchID, f.FieldID)

	if len(yf.Choices) > 0 {
		b.def.Fields[b.index[f.FieldID]].IsCoded = true
		keys := make([]string, 0, len(yf.Choices))
		for k := range yf.Choices {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			node := yf.Choices[key]
			code, err := b.choice(fid, key, &node)
			if err != nil {
				return fmt.Errorf("field %s choice %s: %w", f.FieldID, key, err)
			}
			b.putCode(code)
		}
	}
	lookupKeys := make([]string, 0, len(yf.ChoicesLookup))
	for k := range yf.ChoicesLookup {
		lookupKeys = append(lookupKeys, k)
	}
	sort.Strings(lookupKeys)
	for _, key := range lookupKeys {
		lbl := yf.ChoicesLookup[key]
		b.putCode(model.Code{CodeID: key, FieldFID: fid, LabelEN: lbl.EN, LabelFR: lbl.FR, IsLookup: true})
	}
	return nil
}

func (b *ckanBuilder) putCode(c model.Code) {
	key := c.FieldFID + "_" + c.CodeID
	if i, ok := b.codeIndex[key]; ok {
		b.def.Codes[i] = c
		return
	}
	b.codeIndex[key] = len(b.def.Codes)
	b.def.Codes = append(b.def.Codes, c)
}

func (b *ckanBuilder) choice(fid, key string, node *yaml.Node) (model.Code, error) {
	code := model.Code{CodeID: key, FieldFID: fid}
	if node.Kind == yaml.ScalarNode {
		code.LabelEN, code.LabelFR = node.Value, node.Value
		return code, nil
	}
	var attrs map[string]yaml.Node
	if err := node.Decode(&attrs); err != nil {
		return code, err
	}
	en, hasEN := scalar(attrs, "en")
	fr, hasFR := scalar(attrs, "fr")
	code.LabelEN, code.LabelFR = en, fr
	if !hasEN {
		code.LabelEN = key
	}
	if !hasFR {
		code.LabelFR = code.LabelEN
	}

	if n, ok := attrs["lookup"]; ok {
		var lookup []string
		if err := n.Decode(&lookup); err != nil {
			return code, fmt.Errorf("lookup: %w", err)
		}
		code.LookupCodesDefault = strings.Join(lookup, ",")
	}
	if n, ok := attrs["conditional_lookup"]; ok {
		var conds []ckanConditional
		if err := n.Decode(&conds); err != nil {
			return code, fmt.Errorf("conditional_lookup: %w", err)
		}
		for _, cl := range conds {
			if cl.Column == "" {
				code.LookupCodesDefault = strings.Join(cl.Lookup, ",")
				continue
			}
			code.LookupDateField = cl.Column
			code.LookupCodesConditional = strings.Join(cl.Lookup, ",")
			if cl.LessThan != "" {
				d, err := time.Parse("2006-01-02", cl.LessThan)
				if err != nil {
					return code, fmt.Errorf("less_than %q: %w", cl.LessThan, err)
				}
				code.LookupDate = &d
				code.LookupTest = model.LookupLT
			}
		}
	}

	extras := []*string{&code.Extra01, &code.Extra02, &code.Extra03, &code.Extra04, &code.Extra05}
	extrasEN := []*string{&code.Extra01EN, &code.Extra02EN, &code.Extra03EN, &code.Extra04EN, &code.Extra05EN}
	extrasFR := []*string{&code.Extra01FR, &code.Extra02FR, &code.Extra03FR, &code.Extra04FR, &code.Extra05FR}
	for i := 0; i < 5; i++ {
		if k := b.opts.ExtraChoiceKeys[i]; k != "" {
			if v, ok := scalar(attrs, k); ok {
				*extras[i] = v
			}
		}
		if k := b.opts.ExtraBilingualKeys[i]; k != "" {
			if n, ok := attrs[k]; ok {
				var bl ckanBiLabel
				if err := n.Decode(&bl); err == nil {
					*extrasEN[i] = bl.EN
					*extrasFR[i] = bl.FR
					if bl.FR == "" {
						*extrasFR[i] = bl.EN
					}
				}
			}
		}
	}
	return code, nil
}

func decodeLabel(node *yaml.Node, en, fr *string) error {
	switch node.Kind {
	case 0:
		return nil
	case yaml.ScalarNode:
		*en, *fr = node.Value, node.Value
		return nil
	}
	var bl ckanBiLabel
	if err := node.Decode(&bl); err != nil {
		return err
	}
	*en, *fr = bl.EN, bl.FR
	return nil
}

func scalar(attrs map[string]yaml.Node, key string) (string, bool) {
	n, ok := attrs[key]
	if !ok || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}
