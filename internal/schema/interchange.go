package schema

import (
	"encoding/json"
	"fmt"
	"io"

	"oc-search-go/internal/model"
)

// Definition is the interchange shape of one search application. Surrogate
// keys are not part of it.
type Definition struct {
	Search model.Search  `json:"search"`
	Fields []model.Field `json:"fields"`
	Codes  []model.Code  `json:"codes"`
}

// Export captures a schema as a Definition.
func Export(s *Schema) Definition {
	def := Definition{Search: s.Search}
	def.Search.Fields = nil
	for _, f := range s.Fields {
		field := *f
		field.ID = 0
		field.Codes = nil
		def.Fields = append(def.Fields, field)
	}
	for _, c := range s.AllCodes() {
		c.ID = 0
		if len(c.Chronologic) > 0 {
			chrono := make([]model.ChronologicCode, len(c.Chronologic))
			copy(chrono, c.Chronologic)
			for i := range chrono {
				chrono[i].ID = 0
			}
			c.Chronologic = chrono
		}
		def.Codes = append(def.Codes, c)
	}
	return def
}

// WriteDefinition encodes def as indented JSON.
func WriteDefinition(w io.Writer, def Definition) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(def); err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	return nil
}

// ReadDefinition decodes and validates a definition.
func ReadDefinition(r io.Reader) (Definition, error) {
	var def Definition
	if err := json.NewDecoder(r).Decode(&def); err != nil {
		return def, fmt.Errorf("decode definition: %w", err)
	}
	if err := def.Normalize(); err != nil {
		return def, err
	}
	return def, nil
}

// Normalize fills derived keys and checks referential integrity.
func (d *Definition) Normalize() error {
	searchID := d.Search.SearchID
	if searchID == "" {
		return fmt.Errorf("definition has no search_id")
	}
	seen := make(map[string]bool, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.FieldID == "" {
			return fmt.Errorf("field %d has no field_id", i)
		}
		if f.SearchID == "" {
			f.SearchID = searchID
		}
		if f.SearchID != searchID {
			return fmt.Errorf("field %s belongs to search %s, not %s", f.FieldID, f.SearchID, searchID)
		}
		if f.FID == "" {
			f.FID = model.FieldFID(searchID, f.FieldID)
		}
		if seen[f.FID] {
			return fmt.Errorf("duplicate field %s", f.FieldID)
		}
		seen[f.FID] = true
	}
	codes := make(map[string]bool, len(d.Codes))
	for i := range d.Codes {
		c := &d.Codes[i]
		if !seen[c.FieldFID] {
			return fmt.Errorf("code %s references unknown field %s", c.CodeID, c.FieldFID)
		}
		if c.CID == "" {
			c.CID = c.FieldFID + "_" + c.CodeID
		}
		if codes[c.CID] {
			return fmt.Errorf("duplicate code %s", c.CID)
		}
		codes[c.CID] = true
		for j := range c.Chronologic {
			cc := &c.Chronologic[j]
			cc.CodeCID = c.CID
			if cc.CCID == "" {
				cc.CCID = ChronologicID(c.CID, cc)
			}
		}
	}
	return nil
}

// Schema builds the in-memory graph of the definition.
func (d Definition) Schema() *Schema {
	fields := make([]model.Field, len(d.Fields))
	copy(fields, d.Fields)
	codes := make([]model.Code, len(d.Codes))
	copy(codes, d.Codes)
	return New(d.Search, fields, codes)
}

// ChronologicID composes the unique key of a chronologic variant.
func ChronologicID(cid string, cc *model.ChronologicCode) string {
	return fmt.Sprintf("%s_%s_%s_%s", cid, parameterize(cc.Label),
		cc.StartDate.Format("2006-01-02"), cc.EndDate.Format("2006-01-02"))
}

func parameterize(s string) string {
	out := make([]rune, 0, len(s))
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			dash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			dash = false
		default:
			if !dash && len(out) > 0 {
				out = append(out, '-')
				dash = true
			}
		}
	}
	if dash {
		out = out[:len(out)-1]
	}
	return string(out)
}
