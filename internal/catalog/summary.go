package catalog

import "sort"

// PriceRange is the spread of item prices inside a group.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Summary aggregates one product group.
type Summary struct {
	PriceRange  PriceRange `json:"price_range"`
	SourceCount int        `json:"source_count"`
	ItemCount   int        `json:"item_count"`
}

// Summarize returns the price range and source count of a group. Items are
// price-sorted, so the first and last item bound the range.
func Summarize(g *ProductGroup) Summary {
	var s Summary
	if g == nil || len(g.Items) == 0 {
		return s
	}
	s.ItemCount = len(g.Items)
	s.PriceRange.Min = g.Items[0].Price
	s.PriceRange.Max = g.Items[len(g.Items)-1].Price

	sources := make(map[string]struct{}, len(g.Items))
	total := 0.0
	for _, item := range g.Items {
		total += item.Price
		sources[item.SourceName] = struct{}{}
	}
	s.PriceRange.Avg = total / float64(len(g.Items))
	s.SourceCount = len(sources)
	return s
}

// FeaturedGroup is a group offered by several sources, with its summary.
type FeaturedGroup struct {
	Group   *ProductGroup `json:"group"`
	Summary Summary       `json:"summary"`
}

// Featured returns up to limit groups sold by more than one source, the most
// widely sold first. Ties are ordered by identity. A non-positive limit
// returns every such group.
func Featured(c *Catalog, limit int) []FeaturedGroup {
	var out []FeaturedGroup
	for _, id := range c.IDs() {
		g := c.Groups[id]
		s := Summarize(g)
		if s.SourceCount < 2 {
			continue
		}
		out = append(out, FeaturedGroup{Group: g, Summary: s})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Summary.SourceCount > out[j].Summary.SourceCount
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
