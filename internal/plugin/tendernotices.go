package plugin

import (
	"oc-search-go/internal/model"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
)

// TenderNotices limits searches to notices published in the page language.
type TenderNotices struct{ Base }

func (TenderNotices) PreSearch(_ *schema.Schema, lang string, d *query.Descriptor) {
	if lang == model.LangFR {
		d.AddFilter("language", "Français")
		return
	}
	d.AddFilter("language", "English")
}
