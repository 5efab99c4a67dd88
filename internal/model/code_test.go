package model

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCode_LookupCodes(t *testing.T) {
	pivot := day(2016, 1, 1)
	tests := []struct {
		test string
		date time.Time
		want []string
	}{
		{LookupEQ, pivot, []string{"new"}},
		{LookupEQ, day(2016, 1, 2), []string{"old", "older"}},
		{LookupNE, day(2016, 1, 2), []string{"new"}},
		{LookupNE, pivot, []string{"old", "older"}},
		{LookupLT, day(2015, 12, 31), []string{"new"}},
		{LookupLT, pivot, []string{"old", "older"}},
		{LookupGT, day(2016, 1, 2), []string{"new"}},
		{LookupGT, pivot, []string{"old", "older"}},
		{LookupLE, pivot, []string{"new"}},
		{LookupLE, day(2016, 1, 2), []string{"old", "older"}},
		{LookupGE, pivot, []string{"new"}},
		{LookupGE, day(2015, 12, 31), []string{"old", "older"}},
		{"XX", pivot, []string{"old", "older"}},
		{LookupGE, time.Time{}, []string{"old", "older"}},
	}
	for _, tc := range tests {
		t.Run(tc.test+" "+tc.date.Format("2006-01-02"), func(t *testing.T) {
			c := &Code{
				LookupCodesDefault:     "old, older,",
				LookupCodesConditional: "new",
				LookupDate:             &pivot,
				LookupTest:             tc.test,
			}
			if got := c.LookupCodes(tc.date); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("LookupCodes = %v, want %v", got, tc.want)
			}
		})
	}

	if got := (&Code{LookupCodesDefault: "a"}).LookupCodes(pivot); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("without a lookup date the default list applies, got %v", got)
	}
	if got := (&Code{}).LookupCodes(pivot); got != nil {
		t.Errorf("expected no lookup codes, got %v", got)
	}
}

func TestCode_LabelAt(t *testing.T) {
	c := &Code{
		LabelEN: "Health Canada",
		LabelFR: "Santé Canada",
		Chronologic: []ChronologicCode{{
			LabelEN:   "Health and Welfare",
			LabelFR:   "Santé et Bien-être",
			StartDate: day(1944, 1, 1),
			EndDate:   day(1996, 1, 1),
		}},
	}
	tests := []struct {
		date time.Time
		lang string
		want string
	}{
		{day(1990, 6, 1), LangEN, "Health and Welfare"},
		{day(1990, 6, 1), LangFR, "Santé et Bien-être"},
		{day(1996, 1, 1), LangEN, "Health Canada"},
		{day(1944, 1, 1), LangEN, "Health and Welfare"},
		{time.Time{}, LangFR, "Santé Canada"},
	}
	for _, tc := range tests {
		if got := c.LabelAt(tc.date, tc.lang); got != tc.want {
			t.Errorf("LabelAt(%s, %s) = %q, want %q", tc.date.Format("2006-01-02"), tc.lang, got, tc.want)
		}
	}
}
