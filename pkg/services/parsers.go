package services

import (
	"strconv"
	"strings"
	"time"
)

// Parser strategies for multi-format value classification. Each parser is a
// pure function tried in a fixed priority order; the first success wins.
// No locale detection, no reflection - just an ordered strategy list.

// parseNumber parses a numeric token, normalizing thousands and decimal
// separators. Accepted forms: "1234.56", "1,234.56", "1.234,56", "-42",
// "+3.14", "1 234,56". Returns false for empty or non-numeric tokens.
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}

	// Spaces are only legal as thousands separators.
	s = strings.ReplaceAll(s, " ", "")

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost one is the decimal separator.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		// Comma only: decimal if it has 1-2 trailing digits and appears once,
		// otherwise treat as thousands grouping.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// Dot only: thousands grouping when it repeats ("1.234.567"),
		// decimal otherwise.
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// dateFormats is the fixed ordered list of layouts tried by parseDate.
// Order matters: ISO first, then day-first, then month-first, then compact.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"20060102",
	"2006/01/02",
}

// parseDate tries the fixed format list in order; first success wins.
func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// booleanTokens is the recognized boolean token set (case-insensitive).
var booleanTokens = map[string]bool{
	"true": true, "false": false,
	"yes": true, "no": false,
	"1": true, "0": false,
	"y": true, "n": false,
	"t": true, "f": false,
	"sim": true, "não": false, "nao": false,
}

// parseBool matches the recognized boolean token set.
func parseBool(raw string) (bool, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return false, false
	}
	v, ok := booleanTokens[s]
	return v, ok
}

// isNull reports whether a sampled token counts as null/empty.
func isNull(raw string) bool {
	return strings.TrimSpace(raw) == ""
}
