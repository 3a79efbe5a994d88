// Package brand recognizes brand words and phrases in free-text queries.
package brand

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// PatternRule maps a regular expression over unified text to a brand.
type PatternRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	BrandID int    `yaml:"brand_id" json:"brand_id"`
}

// Tables are the trained brand tables. Patterns are tried in order.
type Tables struct {
	Words    map[string]int `yaml:"words" json:"words"`
	Patterns []PatternRule  `yaml:"patterns" json:"patterns"`
	Names    map[int]string `yaml:"names" json:"names"`
}

// Set is a set of brand ids.
type Set map[int]struct{}

// Has reports whether id is in the set.
func (s Set) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s Set) Sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

type compiledRule struct {
	re      *regexp.Regexp
	brandID int
}

// Extractor strips brands from queries. It is immutable once built.
type Extractor struct {
	words map[string]int
	rules []compiledRule
	names map[int]string
}

// NewExtractor compiles the pattern table. Any invalid pattern fails the
// whole table.
func NewExtractor(t Tables) (*Extractor, error) {
	e := &Extractor{
		words: make(map[string]int, len(t.Words)),
		rules: make([]compiledRule, 0, len(t.Patterns)),
		names: make(map[int]string, len(t.Names)),
	}
	for word, id := range t.Words {
		e.words[word] = id
	}
	for i, p := range t.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("brand pattern %d %q: %w", i, p.Pattern, err)
		}
		e.rules = append(e.rules, compiledRule{re: re, brandID: p.BrandID})
	}
	for id, name := range t.Names {
		e.names[id] = name
	}
	return e, nil
}

// Extract returns the brands recognized in query and the text left after
// removing them. Whole tokens of the unified query are matched against the
// word table first; the pattern table then runs over what remains, each
// pattern seeing the residual left by the ones before it.
func (e *Extractor) Extract(query string) (Set, string) {
	brands := make(Set)
	residual := textnorm.Unify(query)

	tokens := strings.Fields(residual)
	kept := tokens[:0:0]
	for _, tok := range tokens {
		if id := e.words[tok]; id != 0 {
			brands[id] = struct{}{}
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) < len(tokens) {
		residual = strings.Join(kept, " ")
	}

	length := utf8.RuneCountInString(residual)
	for _, rule := range e.rules {
		next := strings.TrimSpace(rule.re.ReplaceAllString(residual, ""))
		n := utf8.RuneCountInString(next)
		if n >= length {
			continue
		}
		if rule.brandID != 0 {
			brands[rule.brandID] = struct{}{}
		}
		residual, length = next, n
	}
	return brands, residual
}

// Name returns the display name of a brand, or "" when unknown.
func (e *Extractor) Name(id int) string {
	return e.names[id]
}

// Stats reports the table sizes.
func (e *Extractor) Stats() (words, patterns int) {
	return len(e.words), len(e.rules)
}

// Holder keeps the active extractor so a reloaded table can be swapped in
// while queries are running.
type Holder struct {
	current atomic.Pointer[Extractor]
	version atomic.Uint64
}

// NewHolder returns a holder serving e.
func NewHolder(e *Extractor) *Holder {
	h := &Holder{}
	h.current.Store(e)
	return h
}

// Get returns the active extractor.
func (h *Holder) Get() *Extractor {
	return h.current.Load()
}

// Swap installs e and returns the previous extractor.
func (h *Holder) Swap(e *Extractor) *Extractor {
	prev := h.current.Swap(e)
	h.version.Add(1)
	return prev
}

// Version counts swaps. Results derived from one version are stale once it
// changes.
func (h *Holder) Version() uint64 {
	return h.version.Load()
}

// Extract runs the active extractor.
func (h *Holder) Extract(query string) (Set, string) {
	return h.Get().Extract(query)
}
