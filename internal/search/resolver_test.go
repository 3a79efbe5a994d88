package search

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callmeahab/catalog-search/internal/brand"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/index"
)

func group(id, fg, brandID int, name string, titles ...string) *catalog.ProductGroup {
	g := &catalog.ProductGroup{ID: id, GroupName: name, FilterGroupID: fg, BrandID: brandID}
	for _, title := range titles {
		g.Items = append(g.Items, catalog.ListingView{Title: title})
	}
	return g
}

func newCatalog(groups ...*catalog.ProductGroup) *catalog.Catalog {
	c := &catalog.Catalog{Groups: make(map[int]*catalog.ProductGroup)}
	for _, g := range groups {
		c.Groups[g.ID] = g
	}
	return c
}

func defaultBrands(t *testing.T) *brand.Extractor {
	t.Helper()
	e, err := brand.NewExtractor(brand.DefaultTables())
	require.NoError(t, err)
	return e
}

func ids(groups []*catalog.ProductGroup) []int {
	out := make([]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}

func TestResolveEmptyQuery(t *testing.T) {
	c := newCatalog(group(1, 2, 0, "strips"))
	for _, q := range []string{"", "   ", "\t\n"} {
		res := Resolve(q, index.Build(c), c, defaultBrands(t), FilterOf(2))
		assert.True(t, res.Empty())
		assert.Empty(t, res.FilterGroups)
	}
}

func TestResolveBrandScenario(t *testing.T) {
	c := newCatalog(
		group(10, 2, brand.AccuChek, "Тест-полоски Accu-Chek Active №50", "Accu-Chek Active test strips 50"),
		group(11, 2, brand.OneTouch, "Тест-полоски OneTouch Select №50", "OneTouch Select test strips 50"),
		group(12, 3, 0, "Active lancets", "Active lancets 100"),
	)
	idx := index.Build(c)
	brands := defaultBrands(t)

	found, residual := brands.Extract("accu chek active")
	assert.Equal(t, []int{brand.AccuChek}, found.Sorted())
	assert.Equal(t, "active", residual)

	res := Resolve("accu chek active", idx, c, brands, nil)
	assert.Equal(t, []int{10}, ids(res.Groups))
	assert.Equal(t, []int{2}, res.FilterGroups)
	assert.Equal(t, []int{brand.AccuChek}, res.Brands)
	assert.False(t, res.Fallback)
}

func TestResolveBrandOnlyFallsBackToWholeCatalog(t *testing.T) {
	c := newCatalog(
		group(10, 2, brand.AccuChek, "Performa strips"),
		group(11, 2, brand.OneTouch, "Select strips"),
		group(12, 4, brand.AccuChek, "Softclix lancets"),
	)
	res := Resolve("accuchek", index.Build(c), c, defaultBrands(t), nil)
	assert.True(t, res.Fallback)
	assert.Equal(t, []int{10, 12}, ids(res.Groups), "equal scores order by name length")
	assert.Equal(t, []int{2, 4}, res.FilterGroups)
}

func TestResolveFilterScenario(t *testing.T) {
	c := newCatalog(
		group(1, 7, 0, "glucose strips seven"),
		group(2, 9, 0, "glucose strips nine"),
		group(3, 15, 0, "glucose strips misc"),
		group(4, 20, 0, "glucose strips twenty"),
	)
	filter, err := ParseFilterGroups("7 9")
	require.NoError(t, err)

	res := Resolve("glucose strips", index.Build(c), c, defaultBrands(t), filter)
	assert.ElementsMatch(t, []int{1, 2, 3}, ids(res.Groups))
	assert.Equal(t, []int{7, 9, 15}, res.FilterGroups)
	for _, g := range res.Groups {
		assert.Contains(t, []int{7, 9, 15}, g.FilterGroupID)
	}
}

func TestResolveNoMatchWithoutConstraints(t *testing.T) {
	c := newCatalog(group(1, 2, 0, "strips"))
	res := Resolve("zzzz qqqq", index.Build(c), c, defaultBrands(t), nil)
	assert.True(t, res.Empty())
	assert.False(t, res.Fallback)
}

func TestResolveFilterOnlyFallback(t *testing.T) {
	c := newCatalog(
		group(1, 7, 0, "strips"),
		group(2, 8, 0, "needles"),
		group(3, 15, 0, "misc"),
	)
	res := Resolve("zzzz", index.Build(c), c, defaultBrands(t), FilterOf(7))
	assert.True(t, res.Fallback)
	assert.Equal(t, []int{3, 1}, ids(res.Groups))
}

func TestResolveFallbackFilteredToNothing(t *testing.T) {
	c := newCatalog(group(1, 7, brand.OneTouch, "strips"))
	res := Resolve("accuchek", index.Build(c), c, defaultBrands(t), nil)
	assert.True(t, res.Fallback)
	assert.True(t, res.Empty())
	assert.Empty(t, res.FilterGroups)
}

func TestResolveEmptyFilterAllowsUncategorized(t *testing.T) {
	c := newCatalog(
		group(1, 7, 0, "strips one"),
		group(2, 15, 0, "strips two"),
	)
	res := Resolve("strips", index.Build(c), c, nil, FilterSet{})
	assert.Equal(t, []int{2}, ids(res.Groups))
}

func TestResolveHalfMaxCutoff(t *testing.T) {
	// "abcdef" has grams abc bcd cde def. Group 1 shares all four, group 2
	// shares exactly two (half, dropped), group 3 shares three (kept).
	c := newCatalog(
		group(1, 2, 0, "abcdef"),
		group(2, 2, 0, "abcd"),
		group(3, 2, 0, "abcde"),
	)
	res := Resolve("abcdef", index.Build(c), c, nil, nil)
	assert.Equal(t, []int{3, 1}, ids(res.Groups), "lower score sorts first")
}

func TestResolveOrdersByScoreThenNameLength(t *testing.T) {
	c := newCatalog(
		group(1, 2, 0, "strips for meter long name"),
		group(2, 2, 0, "strips"),
		group(3, 2, 0, "xstrips"),
	)
	res := Resolve("strips", index.Build(c), c, nil, nil)
	assert.Equal(t, []int{2, 3, 1}, ids(res.Groups))
}

func TestResolveIgnoresIndexEntriesMissingFromCatalog(t *testing.T) {
	c := newCatalog(group(1, 2, 0, "strips"))
	idx := index.Build(newCatalog(group(1, 2, 0, "strips"), group(99, 2, 0, "strips")))
	res := Resolve("strips", idx, c, nil, nil)
	assert.Equal(t, []int{1}, ids(res.Groups))
}

func TestParseFilterGroups(t *testing.T) {
	set, err := ParseFilterGroups(" 7  9 ")
	require.NoError(t, err)
	assert.Equal(t, FilterOf(7, 9), set)

	set, err = ParseFilterGroups("")
	require.NoError(t, err)
	assert.Nil(t, set)

	_, err = ParseFilterGroups("7 x")
	require.Error(t, err)
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fgs := []int{7, 9, 15, 20}
	build := func(names []string) *catalog.Catalog {
		c := newCatalog()
		for i, name := range names {
			c.Groups[i+1] = group(i+1, fgs[i%len(fgs)], 0, name, fmt.Sprintf("%s item", name))
		}
		return c
	}
	names := gen.SliceOfN(8, gen.RegexMatch(`[a-z]{3,10}`))

	properties.Property("exact group name finds its group", prop.ForAll(
		func(names []string, pick int) bool {
			if len(names) == 0 {
				return true
			}
			c := build(names)
			want := pick%len(names) + 1
			res := Resolve(c.Groups[want].GroupName, index.Build(c), c, nil, nil)
			for _, g := range res.Groups {
				if g.ID == want {
					return true
				}
			}
			return false
		},
		names,
		gen.IntRange(0, 100),
	))

	properties.Property("results come from the catalog and respect the filter", prop.ForAll(
		func(names []string, query string, fg int) bool {
			c := build(names)
			res := Resolve(query, index.Build(c), c, nil, FilterOf(fg))
			for _, g := range res.Groups {
				if _, ok := c.Group(g.ID); !ok {
					return false
				}
				if g.FilterGroupID != fg && g.FilterGroupID != catalog.UncategorizedGroup {
					return false
				}
			}
			return true
		},
		names,
		gen.RegexMatch(`[a-z ]{0,12}`),
		gen.OneConstOf(7, 9, 20),
	))

	properties.TestingRun(t)
}

func TestResolveNWeighsLongGramsByLength(t *testing.T) {
	c := newCatalog(
		group(1, 2, 0, "strips"),
		group(2, 2, 0, "stripe"),
	)

	res := Resolve("strips", index.Build(c), c, nil, nil)
	assert.Equal(t, []int{2, 1}, ids(res.Groups))
	assert.Equal(t, map[int]int{1: 4, 2: 3}, res.Scores)

	// "strip" and "trips" each add 5; stripe keeps only "strip" and falls
	// to half the best score.
	res = ResolveN("strips", 5, index.BuildN(c, 5), c, nil, nil)
	assert.Equal(t, []int{1}, ids(res.Groups))
	assert.Equal(t, map[int]int{1: 10}, res.Scores)
}
