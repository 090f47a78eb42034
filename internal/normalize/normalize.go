// Package normalize provides utilities for normalizing and sanitizing user-supplied text.
package normalize

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxTagLength bounds the length of a tag slug.
const MaxTagLength = 48

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// TagSlug converts a free-form tag into its canonical slug.
// "Sci-Fi " -> "sci-fi", "Café Noir" -> "cafe-noir", "  " -> "".
func TagSlug(raw string) string {
	s := norm.NFKD.String(sanitizeString(raw))

	// Drop combining marks and anything else outside ASCII.
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxTagLength {
		s = strings.TrimRight(s[:MaxTagLength], "-")
	}
	return s
}

// TagSlugs normalizes a list of tags, dropping empties and duplicates.
// The result is sorted so equal tag sets compare equal.
func TagSlugs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if slug := TagSlug(r); slug != "" {
			out = append(out, slug)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TagWords splits a slug into its hyphen-separated words.
func TagWords(slug string) []string {
	return strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
}

// Text trims surrounding whitespace and strips null bytes and other control
// characters except newlines and tabs.
func Text(raw string) string {
	s := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(norm.NFC.String(s))
}

// sanitizeString removes null bytes, which break badger keys and JSON parsing.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
