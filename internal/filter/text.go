package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeText strips diacritics, folds case, turns punctuation into spaces
// and collapses whitespace. "Réf. No: RFP–2024/01" becomes "ref no rfp 2024 01".
func NormalizeText(str string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, str)
	if err != nil {
		result = str
	}
	result = folder.String(result)

	var b strings.Builder
	b.Grow(len(result))
	space := true
	for _, r := range result {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeURL lowercases scheme and host and drops fragments and trailing
// slashes so the same detail page compares equal.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		rest := s[i+3:]
		host, path := rest, ""
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			host, path = rest[:j], rest[j:]
		}
		s = strings.ToLower(s[:i]) + "://" + strings.ToLower(host) + path
	}
	return strings.TrimRight(s, "/")
}

// Tokens splits normalized text into words, dropping the given stop words.
func Tokens(str string, stop map[string]bool) []string {
	fields := strings.Fields(NormalizeText(str))
	out := fields[:0]
	for _, f := range fields {
		if stop[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
