// Package model defines the gorm structs backing the search configuration store.
package model

import "time"

// Field storage types.
const (
	TypeTextEN = "search_text_en"
	TypeTextFR = "search_text_fr"
	TypeText   = "text_general"
	TypeInt    = "pint"
	TypeString = "string"
	TypeDate   = "pdate"
	TypeFloat  = "pfloat"
)

// Language affinities. LangBilingual fields are searched in both languages.
const (
	LangEN        = "en"
	LangFR        = "fr"
	LangBilingual = "bi"
)

// Facet sort policies.
const (
	FacetSortCount = "count"
	FacetSortIndex = "index"
	FacetSortLabel = "label"
)

// Search corresponds to the 'searches' table: one configured search application.
type Search struct {
	SearchID string `gorm:"type:varchar(32);primaryKey" json:"search_id"`

	LabelEN           string `gorm:"type:varchar(128)" json:"label_en"`
	LabelFR           string `gorm:"type:varchar(128)" json:"label_fr"`
	DescEN            string `gorm:"type:text" json:"desc_en"`
	DescFR            string `gorm:"type:text" json:"desc_fr"`
	AboutMessageEN    string `gorm:"type:text" json:"about_message_en"`
	AboutMessageFR    string `gorm:"type:text" json:"about_message_fr"`
	SearchAliasEN     string `gorm:"type:varchar(64);index" json:"search_alias_en"`
	SearchAliasFR     string `gorm:"type:varchar(64);index" json:"search_alias_fr"`
	IsDisabled        bool   `gorm:"default:false" json:"is_disabled"`
	DisabledMessageEN string `gorm:"type:text" json:"disabled_message_en"`
	DisabledMessageFR string `gorm:"type:text" json:"disabled_message_fr"`

	// IndexName defaults to SearchID when empty.
	IndexName       string `gorm:"type:varchar(64)" json:"index_name"`
	DefaultOperator string `gorm:"type:varchar(3);default:AND" json:"default_operator"`
	PageSize        int    `gorm:"default:10" json:"page_size"`

	// Comma-separated machine sort tokens and their parallel display labels.
	SortOrderEN        string `gorm:"type:varchar(512);default:score desc" json:"sort_order_en"`
	SortOrderFR        string `gorm:"type:varchar(512);default:score desc" json:"sort_order_fr"`
	SortOrderDisplayEN string `gorm:"type:varchar(512);default:Best Match" json:"sort_order_display_en"`
	SortOrderDisplayFR string `gorm:"type:varchar(512);default:Pertinence" json:"sort_order_display_fr"`
	SortDefaultEN      string `gorm:"type:varchar(64);default:score desc" json:"sort_default_en"`
	SortDefaultFR      string `gorm:"type:varchar(64);default:score desc" json:"sort_default_fr"`

	IDFields   string `gorm:"type:varchar(64)" json:"id_fields"`
	AltFormats string `gorm:"type:varchar(128)" json:"alt_formats"`

	MLTEnabled   bool `gorm:"default:false" json:"mlt_enabled"`
	MLTItems     int  `gorm:"default:10" json:"mlt_items"`
	JSONResponse bool `gorm:"default:false" json:"json_response"`
	RawResponse  bool `gorm:"default:false" json:"raw_response"`

	DatasetDownloadURLEN  string `gorm:"type:varchar(512)" json:"dataset_download_url_en"`
	DatasetDownloadURLFR  string `gorm:"type:varchar(512)" json:"dataset_download_url_fr"`
	DatasetDownloadTextEN string `gorm:"type:varchar(256)" json:"dataset_download_text_en"`
	DatasetDownloadTextFR string `gorm:"type:varchar(256)" json:"dataset_download_text_fr"`

	ImportedOn *time.Time `json:"imported_on"`

	Fields []Field `gorm:"foreignKey:SearchID;references:SearchID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table name.
func (Search) TableName() string {
	return "searches"
}

// Field corresponds to the 'fields' table. FID is "<search>_<field>".
type Field struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	FID      string `gorm:"type:varchar(65);uniqueIndex" json:"fid"`
	FieldID  string `gorm:"type:varchar(32);uniqueIndex:idx_field_search" json:"field_id"`
	SearchID string `gorm:"type:varchar(32);uniqueIndex:idx_field_search" json:"search_id"`

	FormatName string `gorm:"type:varchar(32)" json:"format_name"`
	LabelEN    string `gorm:"type:varchar(512)" json:"label_en"`
	LabelFR    string `gorm:"type:varchar(512)" json:"label_fr"`
	Type       string `gorm:"type:varchar(20);default:string" json:"type"`
	Lang       string `gorm:"type:varchar(2);default:bi" json:"lang"`

	// ExportFields lists copy-fields that receive the raw value for export.
	ExportFields string `gorm:"type:varchar(512)" json:"export_fields"`
	// ExtraFields lists auxiliary copy-fields searched alongside this one.
	ExtraFields string `gorm:"type:varchar(1024)" json:"extra_fields"`

	IsCoded     bool   `gorm:"default:false" json:"is_coded"`
	Stored      bool   `gorm:"default:true" json:"stored"`
	Indexed     bool   `gorm:"default:true" json:"indexed"`
	MultiValued bool   `gorm:"default:false" json:"multi_valued"`
	Delimiter   string `gorm:"type:varchar(1);default:," json:"delimiter"`
	IsCurrency  bool   `gorm:"default:false" json:"is_currency"`

	IsFacet              bool   `gorm:"default:false" json:"is_facet"`
	FacetSort            string `gorm:"type:varchar(20);default:count" json:"facet_sort"`
	FacetLimit           int    `gorm:"default:0" json:"facet_limit"`
	FacetSnippet         string `gorm:"type:varchar(512)" json:"facet_snippet"`
	FacetDisplayReversed bool   `gorm:"default:false" json:"facet_display_reversed"`
	FacetDisplayOrder    int    `gorm:"default:0" json:"facet_display_order"`

	AltFormat        string `gorm:"type:varchar(30)" json:"alt_format"`
	IsDefaultDisplay bool   `gorm:"default:false" json:"is_default_display"`
	// DefaultValue is "<type>|<literal>", e.g. "str|-" or "int|0".
	DefaultValue   string `gorm:"type:varchar(512);default:str|-" json:"default_value"`
	IsDefaultYear  bool   `gorm:"default:false" json:"is_default_year"`
	IsDefaultMonth bool   `gorm:"default:false" json:"is_default_month"`

	Codes []Code `gorm:"foreignKey:FieldFID;references:FID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table name.
func (Field) TableName() string {
	return "fields"
}

// Code corresponds to the 'codes' table. CID is "<search>_<field>_<code>".
type Code struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	CID      string `gorm:"type:varchar(128);uniqueIndex" json:"cid"`
	CodeID   string `gorm:"type:varchar(512);uniqueIndex:idx_code_field,length:191" json:"code_id"`
	FieldFID string `gorm:"type:varchar(65);uniqueIndex:idx_code_field" json:"field_fid"`
	LabelEN  string `gorm:"type:text" json:"label_en"`
	LabelFR  string `gorm:"type:text" json:"label_fr"`

	// Lookup metadata: related code ids, and a conditional variant chosen by
	// comparing the record's LookupDateField value against LookupDate.
	LookupCodesDefault     string     `gorm:"type:varchar(1024)" json:"lookup_codes_default"`
	LookupCodesConditional string     `gorm:"type:varchar(1024)" json:"lookup_codes_conditional"`
	LookupDateField        string     `gorm:"type:varchar(32)" json:"lookup_date_field"`
	LookupDate             *time.Time `json:"lookup_date"`
	LookupTest             string     `gorm:"type:varchar(2)" json:"lookup_test"`
	IsLookup               bool       `gorm:"default:false" json:"is_lookup"`

	Extra01   string `gorm:"type:varchar(256)" json:"extra_01"`
	Extra02   string `gorm:"type:varchar(256)" json:"extra_02"`
	Extra03   string `gorm:"type:varchar(256)" json:"extra_03"`
	Extra04   string `gorm:"type:varchar(256)" json:"extra_04"`
	Extra05   string `gorm:"type:varchar(256)" json:"extra_05"`
	Extra01EN string `gorm:"type:varchar(256)" json:"extra_01_en"`
	Extra01FR string `gorm:"type:varchar(256)" json:"extra_01_fr"`
	Extra02EN string `gorm:"type:varchar(256)" json:"extra_02_en"`
	Extra02FR string `gorm:"type:varchar(256)" json:"extra_02_fr"`
	Extra03EN string `gorm:"type:varchar(256)" json:"extra_03_en"`
	Extra03FR string `gorm:"type:varchar(256)" json:"extra_03_fr"`
	Extra04EN string `gorm:"type:varchar(256)" json:"extra_04_en"`
	Extra04FR string `gorm:"type:varchar(256)" json:"extra_04_fr"`
	Extra05EN string `gorm:"type:varchar(256)" json:"extra_05_en"`
	Extra05FR string `gorm:"type:varchar(256)" json:"extra_05_fr"`

	Chronologic []ChronologicCode `gorm:"foreignKey:CodeCID;references:CID;constraint:OnDelete:CASCADE" json:"chronologic,omitempty"`
}

// TableName pins the table name.
func (Code) TableName() string {
	return "codes"
}

// ChronologicCode is a label variant of a Code valid for [StartDate, EndDate).
type ChronologicCode struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CCID      string    `gorm:"type:varchar(256);uniqueIndex" json:"ccid"`
	CodeCID   string    `gorm:"type:varchar(128);index" json:"code_cid"`
	Label     string    `gorm:"type:varchar(512)" json:"label"`
	LabelEN   string    `gorm:"type:text" json:"label_en"`
	LabelFR   string    `gorm:"type:text" json:"label_fr"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// TableName pins the table name.
func (ChronologicCode) TableName() string {
	return "chronologic_codes"
}

// FieldFID composes the unique field key.
func FieldFID(searchID, fieldID string) string {
	return searchID + "_" + fieldID
}

// CodeCID composes the unique code key.
func CodeCID(searchID, fieldID, codeID string) string {
	return searchID + "_" + fieldID + "_" + codeID
}
