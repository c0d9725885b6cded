package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsRe     = regexp.MustCompile(`\d`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanText collapses whitespace runs (the markup is full of newlines and
// non-breaking spaces) and trims.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// parseLocaleNumber parses a number the way the site prints prices:
// spaces or dots as thousands separators, comma as the decimal mark.
// "15 999 $" -> 15999, "1.250" -> 1250, "12,5" -> 12.5.
func parseLocaleNumber(s string) (float64, bool) {
	s = cleanText(s)
	if s == "" || !digitsRe.MatchString(s) {
		return 0, false
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		case r == '.':
			// thousands separator unless followed by exactly 1-2 digits at end
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	// Re-handle a genuine decimal dot: "12.5" has no comma and one dot.
	if strings.Count(s, ".") == 1 && !strings.Contains(s, ",") {
		parts := strings.SplitN(s, ".", 2)
		frac := strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' })
		if len(frac) > 0 && len(frac) <= 2 {
			whole := digitsOnly(parts[0])
			v, err := strconv.ParseFloat(whole+"."+frac, 64)
			if err == nil {
				return v, true
			}
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseLocaleInt parses an integer with space/dot thousands separators.
func parseLocaleInt(s string) (int, bool) {
	d := digitsOnly(s)
	if d == "" {
		return 0, false
	}
	n, err := strconv.Atoi(d)
	if err != nil {
		return 0, false
	}
	return n, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePhone canonicalizes Ukrainian phone numbers to +380XXXXXXXXX.
// "(067) 123 45 67" -> "+380671234567", "380671234567" -> "+380671234567".
// Anything that does not look like a Ukrainian number keeps its digits with a
// leading plus.
func normalizePhone(s string) string {
	d := digitsOnly(s)
	if len(d) < 7 {
		return ""
	}
	switch {
	case strings.HasPrefix(d, "380") && len(d) == 12:
		return "+" + d
	case strings.HasPrefix(d, "0") && len(d) == 10:
		return "+38" + d
	case len(d) == 9:
		return "+380" + d
	default:
		return "+" + d
	}
}

// normalizePlate upper-cases and collapses the plate text, keeping the
// conventional "AA 1234 BB" spacing.
func normalizePlate(s string) string {
	return strings.ToUpper(cleanText(s))
}
