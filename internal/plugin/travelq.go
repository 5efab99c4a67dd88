package plugin

import (
	"strconv"
	"strings"

	"oc-search-go/internal/engine"
	"oc-search-go/internal/normalizer"
	"oc-search-go/internal/schema"
)

// TotalRangeField receives the travel expense bucket.
const TotalRangeField = "total_range"

// totalBuckets are checked in order; a total matches when lo <= total < hi.
var totalBuckets = []struct {
	lo, hi float64
	code   string
}{
	{0, 250, "r6"},
	{250, 500, "r5"},
	{500, 1000, "r4"},
	{1000, 5000, "r3"},
	{5000, 25000, "r2"},
}

// TravelQ buckets quarterly travel totals into display ranges.
type TravelQ struct{ Base }

// LoadRecord sets total_range from the document total. Nothing To Report
// records, and records without a positive total, fall into r7.
func (TravelQ) LoadRecord(_ normalizer.Record, doc engine.Document, s *schema.Schema, format string) engine.Document {
	bucket := "r7"
	if total, ok := numeric(doc["total"]); ok && format != "NTR" {
		bucket = TotalRange(total)
	}
	setCodedValue(doc, s, TotalRangeField, bucket)
	return doc
}

// TotalRange returns the bucket code of total.
func TotalRange(total float64) string {
	if total <= 0 {
		return "r7"
	}
	for _, b := range totalBuckets {
		if total >= b.lo && total < b.hi {
			return b.code
		}
	}
	return "r1"
}

func numeric(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		clean := strings.NewReplacer(",", "", "$", "", " ", "").Replace(t)
		if clean == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(clean, 64)
		return f, err == nil
	}
	return 0, false
}
