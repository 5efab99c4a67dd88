package normalizer

import (
	"strconv"
	"strings"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/model"
	"oc-search-go/internal/schema"
)

// defaultSpec is a parsed Field.DefaultValue: "str|-", "int|0", "date|...".
type defaultSpec struct {
	kind    string
	literal string
}

func parseDefault(spec string) (defaultSpec, bool) {
	kind, literal, ok := strings.Cut(spec, "|")
	if !ok || kind == "" {
		return defaultSpec{}, false
	}
	return defaultSpec{kind: kind, literal: literal}, true
}

func (d defaultSpec) value() interface{} {
	switch d.kind {
	case "str", "date":
		return d.literal
	case "int":
		if v, err := strconv.ParseInt(d.literal, 10, 64); err == nil {
			return v
		}
		return int64(0)
	case "float":
		if v, err := strconv.ParseFloat(d.literal, 64); err == nil {
			return v
		}
		return float64(0)
	}
	return ""
}

// SetEmptyFields backfills every field of the record shape that is absent or
// empty from its default value specification. Coded fields get UnknownValue
// in any label companion still unset. Applying it twice changes nothing.
func (n *Normalizer) SetEmptyFields(doc engine.Document) {
	for _, f := range n.fields {
		n.setEmptyField(f, doc)
	}
}

func (n *Normalizer) setEmptyField(f *model.Field, doc engine.Document) {
	if isEmpty(doc[f.FieldID]) {
		if d, ok := parseDefault(f.DefaultValue); ok {
			v := d.value()
			if f.MultiValued {
				v = []string{toString(v)}
			}
			doc[f.FieldID] = v
			if d.kind == "date" && !f.MultiValued {
				if t, err := parseDate(d.literal); err == nil {
					doc[f.FieldID+"_en"] = FormatDate(t, model.LangEN)
					doc[f.FieldID+"_fr"] = FormatDate(t, model.LangFR)
				}
			}
			if f.IsCoded {
				doc[f.FieldID+"_en"] = v
				doc[f.FieldID+"_fr"] = v
			}
		} else if f.Type == model.TypeDate || f.Type == model.TypeInt || f.Type == model.TypeFloat {
			// the engine rejects empty strings in typed fields
			delete(doc, f.FieldID)
		}
	}
	if f.IsCoded {
		for _, companion := range []string{f.FieldID + "_en", f.FieldID + "_fr"} {
			if isEmpty(doc[companion]) {
				doc[companion] = schema.UnknownValue
			}
		}
	}
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0 || t[0] == ""
	case []interface{}:
		return len(t) == 0 || t[0] == ""
	}
	return false
}
