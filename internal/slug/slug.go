// Package slug turns note display names into key-safe identifiers.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins the alphanumeric runs of a slug.
const Separator = "-"

var nonAlnumRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Make returns the slug for name: accents folded, lowercased, every run of
// non-alphanumeric characters collapsed to a single "-", and leading and
// trailing separators trimmed.
//
// Distinct names may produce the same slug ("A.md" and "a md" both give
// "a-md"); callers keying maps by slug must expect collisions.
func Make(name string) string {
	s := strings.ToLower(fold(name))
	s = nonAlnumRe.ReplaceAllString(s, Separator)
	return strings.Trim(s, Separator)
}

// fold strips combining marks so "Café" becomes "Cafe".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
