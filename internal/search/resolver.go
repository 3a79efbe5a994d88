// Package search scores catalog groups against a free-text query.
package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/callmeahab/catalog-search/internal/brand"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/index"
	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// BrandExtractor strips brands from a query.
type BrandExtractor interface {
	Extract(query string) (brand.Set, string)
}

// FilterSet is the set of requested filter groups. A nil set means no filter
// was supplied; an empty non-nil set still restricts results to the
// uncategorized group.
type FilterSet map[int]struct{}

// ParseFilterGroups parses a space separated list of filter group ids. A
// blank string means no filter.
func ParseFilterGroups(s string) (FilterSet, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	set := make(FilterSet, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid filter group %q: %w", f, err)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// FilterOf builds a filter from explicit ids.
func FilterOf(ids ...int) FilterSet {
	set := make(FilterSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Result is the ranked answer to one query.
type Result struct {
	Groups       []*catalog.ProductGroup
	FilterGroups []int
	Brands       []int
	Residual     string
	Fallback     bool
	// Scores holds the score of every returned group.
	Scores map[int]int
}

// Empty reports whether no group matched.
func (r Result) Empty() bool {
	return len(r.Groups) == 0
}

type candidate struct {
	group   *catalog.ProductGroup
	score   int
	nameLen int
}

// Resolve ranks the groups of c for query. Brands found in the query restrict
// results to those brands; a filter restricts them to the filter's groups
// plus the uncategorized one. When no gram of the residual is indexed the
// whole catalog is considered, but only if a brand or filter narrows it.
// Results are ordered by ascending score, then by group name length.
func Resolve(query string, idx *index.Index, c *catalog.Catalog, brands BrandExtractor, filter FilterSet) Result {
	return ResolveN(query, textnorm.GramSize, idx, c, brands, filter)
}

// ResolveN is Resolve over grams of n runes; idx must be built with the same
// n. A matched gram longer than textnorm.GramSize adds its length to the
// score instead of 1.
func ResolveN(query string, n int, idx *index.Index, c *catalog.Catalog, brands BrandExtractor, filter FilterSet) Result {
	var res Result
	if strings.TrimSpace(query) == "" {
		return res
	}

	var found brand.Set
	residual := query
	if brands != nil {
		found, residual = brands.Extract(query)
	}
	res.Brands = found.Sorted()
	res.Residual = residual

	scores := make(map[int]int)
	for gram := range textnorm.Grams(residual, n) {
		ids := idx.Lookup(gram)
		if len(ids) == 0 {
			continue
		}
		weight := 1
		if l := utf8.RuneCountInString(gram); l > textnorm.GramSize {
			weight = l
		}
		for _, id := range ids {
			scores[id] += weight
		}
	}

	if len(scores) == 0 {
		if len(found) == 0 && filter == nil {
			return res
		}
		for _, id := range c.IDs() {
			scores[id] = 1
		}
		res.Fallback = true
	}

	var allowed FilterSet
	if filter != nil {
		allowed = FilterOf(catalog.UncategorizedGroup)
		for id := range filter {
			allowed[id] = struct{}{}
		}
	}

	candidates := make([]candidate, 0, len(scores))
	maxScore := 0
	for id, score := range scores {
		g, ok := c.Group(id)
		if !ok {
			continue
		}
		if len(found) > 0 && !found.Has(g.BrandID) {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[g.FilterGroupID]; !ok {
				continue
			}
		}
		candidates = append(candidates, candidate{
			group:   g,
			score:   score,
			nameLen: utf8.RuneCountInString(g.GroupName),
		})
		if score > maxScore {
			maxScore = score
		}
	}

	kept := candidates[:0]
	for _, cand := range candidates {
		if 2*cand.score <= maxScore {
			continue
		}
		kept = append(kept, cand)
	}

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.nameLen != b.nameLen {
			return a.nameLen < b.nameLen
		}
		return a.group.ID < b.group.ID
	})

	fgs := make(map[int]struct{})
	res.Groups = make([]*catalog.ProductGroup, 0, len(kept))
	res.Scores = make(map[int]int, len(kept))
	for _, cand := range kept {
		res.Groups = append(res.Groups, cand.group)
		res.Scores[cand.group.ID] = cand.score
		fgs[cand.group.FilterGroupID] = struct{}{}
	}
	res.FilterGroups = make([]int, 0, len(fgs))
	for id := range fgs {
		res.FilterGroups = append(res.FilterGroups, id)
	}
	sort.Ints(res.FilterGroups)
	return res
}
