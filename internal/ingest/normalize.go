// Package ingest turns uploaded statement files into canonical transactions.
package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// SanitizeHeader strips a leading byte-order mark and surrounding whitespace,
// collapses internal whitespace runs to one space, and lowercases.
// It is idempotent.
func SanitizeHeader(header string) string {
	header = strings.TrimLeftFunc(header, isLeadingJunk)
	return strings.ToLower(strings.Join(strings.Fields(header), " "))
}

// isLeadingJunk matches what may precede the first header character. BOMs are
// only junk in this position; one inside a header is kept as text.
func isLeadingJunk(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// NormalizeRow sanitizes every key and trims every value.
// Later columns win when two headers sanitize to the same key.
func NormalizeRow(row domain.RawRow) domain.RawRow {
	normalized := make(domain.RawRow, len(row))
	for k, v := range row {
		key := SanitizeHeader(k)
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(v)
	}
	return normalized
}

var (
	amountSymbols = strings.NewReplacer("(", "", ")", "", "₹", "", "$", "", ",", "")
	leadingFloat  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// ParseAmount parses currency formatted amounts such as "₹2,000", "$1,500.50"
// and accounting negatives like "(500)". Like parseFloat, trailing text after
// the number is ignored. Unparseable input yields NaN and false.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return math.NaN(), false
	}

	negative := len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')'

	cleaned := strings.TrimSpace(amountSymbols.Replace(s))
	num := leadingFloat.FindString(cleaned)
	if num == "" {
		return math.NaN(), false
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return math.NaN(), false
	}
	if negative {
		v = -v
	}
	return v, true
}

// genericDateLayouts are tried in order before the day-first fallback.
// Numeric slash and dash dates are read month-first here, the way browsers
// do; values like "31/01/2024" fail and fall through to dayMonthYear.
var genericDateLayouts = []string{
	domain.ISODateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006/01/02",
	"1/2/2006",
	"1/2/06",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1-2-2006",
	"1-2-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"Mon Jan 2 2006",
	time.RFC1123,
	time.RFC1123Z,
}

var dayMonthYear = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})$`)

// ParseDateFlexible converts a raw date cell to YYYY-MM-DD.
// It reports false when neither the generic layouts nor D/M/Y match.
func ParseDateFlexible(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(domain.ISODateLayout), true
		}
	}

	m := dayMonthYear.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	year := m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(year)
	if mo < 1 || mo > 12 || d < 1 {
		return "", false
	}

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		// 31/02 and friends roll over in time.Date
		return "", false
	}
	return t.Format(domain.ISODateLayout), true
}
