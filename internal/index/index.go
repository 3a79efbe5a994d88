// Package index builds the n-gram inverted index over a catalog.
package index

import (
	"sort"

	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// Index maps a lowercase gram to the ascending identities whose group name
// or item titles produced it. It is rebuilt in full for every catalog.
type Index struct {
	Grams map[string][]int `json:"grams"`
}

// Build indexes every group name and every item title with its qualifier
// stripped.
func Build(c *catalog.Catalog) *Index {
	return BuildN(c, textnorm.GramSize)
}

// BuildN is Build with grams of n runes.
func BuildN(c *catalog.Catalog, n int) *Index {
	idx := &Index{Grams: make(map[string][]int)}
	// IDs are ascending, so appending keeps every posting list sorted.
	for _, id := range c.IDs() {
		for gram := range groupGrams(c.Groups[id], n) {
			idx.Grams[gram] = append(idx.Grams[gram], id)
		}
	}
	return idx
}

// GroupGrams returns the union of grams of a group's name and item titles.
func GroupGrams(g *catalog.ProductGroup) map[string]struct{} {
	return groupGrams(g, textnorm.GramSize)
}

func groupGrams(g *catalog.ProductGroup, n int) map[string]struct{} {
	out := textnorm.Grams(g.GroupName, n)
	for _, item := range g.Items {
		for gram := range textnorm.Grams(textnorm.StripQualifier(item.Title), n) {
			out[gram] = struct{}{}
		}
	}
	return out
}

// Lookup returns the identities indexed under gram.
func (x *Index) Lookup(gram string) []int {
	if x == nil {
		return nil
	}
	return x.Grams[gram]
}

// Len returns the number of distinct grams.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.Grams)
}

// Postings returns the total number of gram to identity entries.
func (x *Index) Postings() int {
	if x == nil {
		return 0
	}
	n := 0
	for _, ids := range x.Grams {
		n += len(ids)
	}
	return n
}

// Terms returns every gram in lexical order.
func (x *Index) Terms() []string {
	if x == nil {
		return nil
	}
	terms := make([]string, 0, len(x.Grams))
	for g := range x.Grams {
		terms = append(terms, g)
	}
	sort.Strings(terms)
	return terms
}
