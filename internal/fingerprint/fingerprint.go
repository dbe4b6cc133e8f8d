// Package fingerprint canonicalizes a business identity (name + address)
// into a stable hash used for deduplication within and across campaigns.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrDegenerate is returned when normalization produces an empty key. Such
// candidates must be treated as unique, never silently merged.
var ErrDegenerate = eris.New("fingerprint: degenerate input")

// corporateSuffixes are stripped from business names before hashing so
// "Joe's Cafe LLC" and "Joe's Cafe" collapse to the same identity.
var corporateSuffixes = map[string]bool{
	"llc": true, "inc": true, "incorporated": true, "corp": true,
	"corporation": true, "ltd": true, "limited": true, "co": true,
	"company": true, "llp": true, "lp": true, "pc": true, "pllc": true,
}

// streetAbbrevs maps spelled-out street tokens to their canonical short form
// so "100 Main Street" and "100 Main St" normalize identically.
var streetAbbrevs = map[string]string{
	"street": "st", "avenue": "ave", "boulevard": "blvd", "road": "rd",
	"drive": "dr", "lane": "ln", "court": "ct", "place": "pl",
	"suite": "ste", "highway": "hwy", "parkway": "pkwy",
	"north": "n", "south": "s", "east": "e", "west": "w",
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, strips diacritics and punctuation, collapses
// whitespace, and removes trailing corporate suffixes.
func NormalizeName(name string) string {
	tokens := tokenize(name)

	// Strip corporate suffixes from the tail only; "Co" in the middle of a
	// name ("Co-op Market") is part of the identity.
	for len(tokens) > 1 && corporateSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// NormalizeAddress lowercases, strips diacritics and punctuation, collapses
// whitespace, and canonicalizes common street-type abbreviations.
func NormalizeAddress(address string) string {
	tokens := tokenize(address)
	for i, tok := range tokens {
		if short, ok := streetAbbrevs[tok]; ok {
			tokens[i] = short
		}
	}
	return strings.Join(tokens, " ")
}

// Fingerprint derives the stable identity hash for a business. Equal
// fingerprints mean "the same real-world business". Returns ErrDegenerate
// when either component normalizes to empty.
func Fingerprint(name, address string) (string, error) {
	n := NormalizeName(name)
	a := NormalizeAddress(address)
	if n == "" || a == "" {
		return "", eris.Wrapf(ErrDegenerate, "name=%q address=%q", name, address)
	}

	h := sha256.Sum256([]byte(n + "|" + a))
	return fmt.Sprintf("%x", h), nil
}

// tokenize lowercases, removes diacritics, maps punctuation to spaces, and
// splits on whitespace.
func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Fields(b.String())
}
