package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"oc-search-go/internal/model"
)

// DateLayout is the source date format.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order; JSON-lines sources carry timestamps.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

var monthsEN = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var monthsFR = [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", v)
}

// FormatDate renders t in the medium date style of lang:
// "Apr 4, 2023" or "4 avr. 2023".
func FormatDate(t time.Time, lang string) string {
	if lang == model.LangFR {
		return fmt.Sprintf("%d %s %d", t.Day(), monthsFR[t.Month()-1], t.Year())
	}
	return fmt.Sprintf("%s %d, %d", monthsEN[t.Month()-1], t.Day(), t.Year())
}

// parseDecimal reads an en-US formatted number. Thousands separators and a
// dollar sign are ignored; a lone "." means zero.
func parseDecimal(v string) (float64, error) {
	clean := strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(v))
	if clean == "." {
		return 0, nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return f, nil
}

// parseInteger reads an integer field value. Fractions and values beyond the
// int64 range are rejected rather than rounded.
func parseInteger(v string) (int64, error) {
	f, err := parseDecimal(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q, has a fractional part", v)
	}
	if f < math.MinInt64 || f >= -math.MinInt64 {
		return 0, fmt.Errorf("integer %q out of range", v)
	}
	return int64(f), nil
}

// currencyFormatter renders Canadian dollar amounts for both languages.
type currencyFormatter struct {
	en *message.Printer
	fr *message.Printer
}

func newCurrencyFormatter() *currencyFormatter {
	cf := &currencyFormatter{en: message.NewPrinter(language.MustParse("en-CA"))}
	if tag, err := language.Parse("fr-CA"); err == nil {
		cf.fr = message.NewPrinter(tag)
	}
	return cf
}

// Format returns "$1,234.50" for English and "1 234,50 $" for French. A
// French printer that could not be built degrades to a plain decimal.
func (cf *currencyFormatter) Format(v float64, lang string) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	if lang == model.LangFR {
		if cf.fr == nil {
			return sign + strconv.FormatFloat(v, 'f', 2, 64)
		}
		return sign + cf.fr.Sprint(number.Decimal(v, number.Scale(2))) + " $"
	}
	return sign + "$" + cf.en.Sprint(number.Decimal(v, number.Scale(2)))
}
