// Package textnorm holds the text normalization shared by identity lookup,
// brand extraction and the lexical index.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// GramSize is the default n-gram width.
	GramSize = 3
	// minGramText is the shortest cleaned text that yields any grams.
	minGramText = 3
	// maxGramText caps how many word characters of a text are indexed.
	maxGramText = 90
)

// QualifierSep separates a listing title from its manufacturer/variant suffix.
const QualifierSep = " — "

// IsWord reports whether r is a word character: a letter, a number or '_'.
func IsWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Lower applies full Unicode lowercasing. A Caser is not safe for concurrent
// use, so one is created per call.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Unify is the weak unification applied before every exact-match lookup:
// trim, lowercase, turn each non-word character into a space, collapse
// space runs and trim again.
func Unify(s string) string {
	s = Lower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if !IsWord(r) {
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

// Grams returns the set of n-length windows over the first 90 word
// characters of s, lowercased. Texts shorter than three characters after
// cleaning produce an empty set.
func Grams(s string, n int) map[string]struct{} {
	out := make(map[string]struct{})

	word := make([]rune, 0, maxGramText)
	for _, r := range s {
		if !IsWord(r) {
			continue
		}
		word = append(word, r)
		if len(word) == maxGramText {
			break
		}
	}

	text := []rune(Lower(string(word)))
	if len(text) < minGramText || n <= 0 {
		return out
	}
	for i := n; i <= len(text); i++ {
		out[string(text[i-n:i])] = struct{}{}
	}
	return out
}

// StripQualifier drops everything from the first spaced dash separator on.
func StripQualifier(title string) string {
	head, _, _ := strings.Cut(title, QualifierSep)
	return head
}
