package catalog

import (
	"strings"
	"unicode"
)

// NormalizeUPC trims, uppercases and strips all whitespace from a UPC.
// Returns "" for nil or whitespace-only input.
func NormalizeUPC(upc *string) string {
	if upc == nil {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(*upc)) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeName lowercases a display description, strips punctuation and
// collapses runs of whitespace to single spaces.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
