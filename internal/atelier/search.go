package atelier

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldForSearch strips diacritics and case so "elodie" matches "Élodie".
func foldForSearch(value string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, value)
	if err != nil {
		stripped = value
	}
	return cases.Fold().String(stripped)
}

// matchesQuery reports whether any field contains the query, ignoring case and accents.
func matchesQuery(query string, fields ...string) bool {
	needle := foldForSearch(strings.TrimSpace(query))
	if needle == "" {
		return true
	}
	for _, field := range fields {
		if field == "" {
			continue
		}
		if strings.Contains(foldForSearch(field), needle) {
			return true
		}
	}
	return false
}
