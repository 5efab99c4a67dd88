package model

import (
	"strings"
	"time"
)

// Lookup comparison tests applied against Code.LookupDate.
const (
	LookupEQ = "EQ"
	LookupNE = "NE"
	LookupLT = "LT"
	LookupGT = "GT"
	LookupLE = "LE"
	LookupGE = "GE"
)

// Date bounds used when a ChronologicCode leaves its range open.
var (
	MinChronologicDate = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxChronologicDate = time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Label returns the label for lang, falling back to English.
func (c *Code) Label(lang string) string {
	if lang == LangFR {
		return c.LabelFR
	}
	return c.LabelEN
}

// LookupCodes returns the related code ids for a record dated recordDate. The
// conditional list wins when the code's test holds for that date.
func (c *Code) LookupCodes(recordDate time.Time) []string {
	if c.LookupCodesConditional != "" && c.LookupDate != nil && !recordDate.IsZero() &&
		compareDates(recordDate, *c.LookupDate, c.LookupTest) {
		return splitCodes(c.LookupCodesConditional)
	}
	return splitCodes(c.LookupCodesDefault)
}

// LabelAt returns the label in effect on date, using the chronologic variants
// when one covers it and the plain label otherwise.
func (c *Code) LabelAt(date time.Time, lang string) string {
	if !date.IsZero() {
		for i := range c.Chronologic {
			cc := &c.Chronologic[i]
			if cc.Covers(date) {
				if lang == LangFR && cc.LabelFR != "" {
					return cc.LabelFR
				}
				if cc.LabelEN != "" {
					return cc.LabelEN
				}
				return cc.Label
			}
		}
	}
	return c.Label(lang)
}

// Covers reports whether date falls in [StartDate, EndDate).
func (cc *ChronologicCode) Covers(date time.Time) bool {
	start, end := cc.StartDate, cc.EndDate
	if start.IsZero() {
		start = MinChronologicDate
	}
	if end.IsZero() {
		end = MaxChronologicDate
	}
	return !date.Before(start) && date.Before(end)
}

func compareDates(a, b time.Time, test string) bool {
	switch test {
	case LookupEQ:
		return a.Equal(b)
	case LookupNE:
		return !a.Equal(b)
	case LookupLT:
		return a.Before(b)
	case LookupGT:
		return a.After(b)
	case LookupLE:
		return !a.After(b)
	case LookupGE:
		return !a.Before(b)
	}
	return false
}

func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
