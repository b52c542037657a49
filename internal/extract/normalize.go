package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// confusables maps glyphs that OCR engines systematically misread on printed
// receipts to the digit they stand for. Applied only to runs known to be
// numeric, so a best-effort substitution improves field recovery without a
// second OCR pass.
var confusables = map[rune]rune{
	'O': '0', 'o': '0',
	'I': '1', 'l': '1', 'i': '1',
	'Z': '2', 'z': '2',
	'S': '5', 's': '5',
	'B': '8',
}

// CorrectDigits runs s through the confusable map and drops anything that is
// not a digit or a dot.
func CorrectDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if d, ok := confusables[r]; ok {
			r = d
		}
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DigitsOnly strips everything but digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeAmount strips currency symbols and thousands separators, keeping
// digits and a single decimal point.
func NormalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	dotSeen := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !dotSeen:
			dotSeen = true
			b.WriteRune(r)
		}
	}
	return b.String()
}

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var reDateShort = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)

// FormatDate normalizes a long-form or short-form receipt date to MM/DD/YYYY.
// Returns s unchanged when it matches neither form.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if m, d, y, ok := parseLongDate(s); ok {
		return fmt.Sprintf("%02d/%02d/%04d", m, d, y)
	}
	if g := reDateShort.FindStringSubmatch(s); g != nil {
		return fmt.Sprintf("%s/%s/%s", pad2(g[1]), pad2(g[2]), g[3])
	}
	return s
}

var reDateLong = regexp.MustCompile(`(?i)\b([A-Za-z]{3,9})\.?\s+(\d{1,2})\s*,?\s*(\d{4})\b`)

func parseLongDate(s string) (month time.Month, day, year int, ok bool) {
	g := reDateLong.FindStringSubmatch(s)
	if g == nil {
		return 0, 0, 0, false
	}
	prefix := strings.ToLower(g[1])
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	m, found := monthsByPrefix[prefix]
	if !found {
		return 0, 0, 0, false
	}
	var d, y int
	if _, err := fmt.Sscanf(g[2], "%d", &d); err != nil || d < 1 || d > 31 {
		return 0, 0, 0, false
	}
	if _, err := fmt.Sscanf(g[3], "%d", &y); err != nil {
		return 0, 0, 0, false
	}
	return m, d, y, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
