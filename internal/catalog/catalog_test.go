package catalog

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callmeahab/catalog-search/internal/identity"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func listing(title string, source int, price float64, available int) RawListing {
	return RawListing{
		Title:      title,
		SourceID:   source,
		Price:      price,
		ShipPrice:  price,
		URL:        "https://shop.example/" + title,
		Available:  available,
		ObservedAt: t0,
	}
}

func noMatch(RawListing) (int, bool) { return 0, false }

func TestBuildUnmatchedListingGetsSyntheticGroup(t *testing.T) {
	raw := RawListing{
		Title: "OneTouch Select strips 50pc", SourceID: 1,
		Price: 500, ShipPrice: 500, URL: "u1", Available: 1, ObservedAt: t0,
	}
	c, stats := Build(Input{Raws: []RawListing{raw}, IdentityOf: noMatch})

	require.Equal(t, 1, c.Len())
	group := c.Groups[c.IDs()[0]]
	assert.GreaterOrEqual(t, group.ID, identity.SyntheticBase)
	assert.Equal(t, UncategorizedGroup, group.FilterGroupID)
	assert.Equal(t, 0, group.BrandID)
	assert.Equal(t, "", group.BrandName)
	assert.Equal(t, "OneTouch Select strips 50pc", group.GroupName)
	require.Len(t, group.Items, 1)
	assert.Equal(t, 500.0, group.Items[0].Price)
	assert.Equal(t, "1", group.Items[0].SourceName)
	assert.Equal(t, 1, stats.Synthetic)
}

func TestBuildGroupsMatchedListings(t *testing.T) {
	dict := identity.NewResolver(identity.Dictionary{
		"accu chek active 50": 7,
	})
	raws := []RawListing{
		listing("Accu-Chek Active 50", 1, 900, 1),
		listing("accu chek   active (50)", 3, 850, 1),
		listing("Accu-Chek Active 50", 4, 100, 0),
		listing("Unknown lancets", 2, 200, 1),
	}
	meta := map[int]GroupMeta{
		7: {GroupName: "Accu-Chek Active №50", FilterGroupID: 2, BrandID: 3, BrandName: "Accu-Chek"},
	}
	sources := map[int]string{1: "МедМаг", 3: "ДиаКаталог"}

	c, stats := Build(Input{Raws: raws, IdentityOf: ByTitle(dict), Meta: meta, Sources: sources})

	require.Equal(t, 2, c.Len())
	g, ok := c.Group(7)
	require.True(t, ok)
	assert.Equal(t, "Accu-Chek Active №50", g.GroupName)
	assert.Equal(t, 3, g.BrandID)
	require.Len(t, g.Items, 2)
	assert.Equal(t, "ДиаКаталог", g.Items[0].SourceName)
	assert.Equal(t, 850.0, g.Items[0].Price)
	assert.Equal(t, 900.0, g.Items[1].Price)

	assert.Equal(t, BuildStats{Listings: 4, Dropped: 1, Groups: 2, Matched: 1, Synthetic: 1}, stats)
}

func TestBuildMissingMetadataFallsBack(t *testing.T) {
	identityOf := func(RawListing) (int, bool) { return 42, true }
	raws := []RawListing{
		listing("Glucometer first", 1, 10, 1),
		listing("Glucometer second", 2, 5, 1),
	}

	c, stats := Build(Input{Raws: raws, IdentityOf: identityOf})

	g, ok := c.Group(42)
	require.True(t, ok)
	assert.Equal(t, "Glucometer first", g.GroupName)
	assert.Equal(t, UncategorizedGroup, g.FilterGroupID)
	assert.Len(t, g.Items, 2)
	assert.Equal(t, 1, stats.MissingMeta)
}

func TestBuildZeroIdentityIsUnmatched(t *testing.T) {
	identityOf := func(RawListing) (int, bool) { return 0, true }
	c, _ := Build(Input{Raws: []RawListing{listing("a", 1, 1, 1)}, IdentityOf: identityOf})
	assert.Equal(t, []int{identity.SyntheticBase}, c.IDs())
}

func TestBuildSyntheticCounterIsPerBuild(t *testing.T) {
	raws := []RawListing{listing("x", 1, 1, 1), listing("y", 1, 2, 1)}
	first, _ := Build(Input{Raws: raws, IdentityOf: noMatch})
	second, _ := Build(Input{Raws: raws, IdentityOf: noMatch})
	assert.Equal(t, first.IDs(), second.IDs())
	assert.Equal(t, []int{identity.SyntheticBase, identity.SyntheticBase + 1}, second.IDs())
	assert.Equal(t, "x", second.Groups[identity.SyntheticBase].GroupName)
}

func TestBuildStableOnEqualPrices(t *testing.T) {
	identityOf := func(RawListing) (int, bool) { return 1, true }
	raws := []RawListing{
		listing("b", 1, 5, 1),
		listing("a", 2, 5, 1),
		listing("c", 3, 1, 1),
	}
	c, _ := Build(Input{Raws: raws, IdentityOf: identityOf, Meta: map[int]GroupMeta{1: {GroupName: "g"}}})
	var titles []string
	for _, item := range c.Groups[1].Items {
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{"c", "b", "a"}, titles)
}

func TestBuildEmpty(t *testing.T) {
	c, stats := Build(Input{})
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.IDs())
	assert.Equal(t, BuildStats{}, stats)
}

func TestBuildProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	makeRaws := func(prices []float64, keys []int) []RawListing {
		raws := make([]RawListing, 0, len(prices))
		for i, p := range prices {
			key := 0
			if i < len(keys) {
				key = keys[i]
			}
			raws = append(raws, listing(fmt.Sprintf("item %d", key), key, p, 1))
		}
		return raws
	}
	// Even keys resolve to trained identities, odd keys are unmatched.
	identityOf := func(raw RawListing) (int, bool) {
		if raw.SourceID%2 == 0 {
			return raw.SourceID + 1, true
		}
		return 0, false
	}

	properties.Property("items are sorted by price", prop.ForAll(
		func(prices []float64, keys []int) bool {
			c, _ := Build(Input{Raws: makeRaws(prices, keys), IdentityOf: identityOf})
			for _, g := range c.Groups {
				for i := 1; i < len(g.Items); i++ {
					if g.Items[i-1].Price > g.Items[i].Price {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.Property("synthetic ids increase in first-seen order", prop.ForAll(
		func(prices []float64, keys []int) bool {
			raws := makeRaws(prices, keys)
			c, _ := Build(Input{Raws: raws, IdentityOf: identityOf})
			want := identity.SyntheticBase
			for _, raw := range raws {
				if _, ok := identityOf(raw); ok {
					continue
				}
				g, ok := c.Group(want)
				if !ok || g.GroupName != raw.Title {
					return false
				}
				want++
			}
			return c.Len() >= want-identity.SyntheticBase
		},
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.Property("every available listing lands in exactly one group", prop.ForAll(
		func(prices []float64, keys []int) bool {
			raws := makeRaws(prices, keys)
			c, stats := Build(Input{Raws: raws, IdentityOf: identityOf})
			total := 0
			for _, g := range c.Groups {
				total += len(g.Items)
			}
			return total == len(raws) && stats.Dropped == 0
		},
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.TestingRun(t)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   RawListing
		want RawListing
	}{
		{
			name: "missing ship price takes item price",
			in:   RawListing{Title: " Strips ", Price: 300, Available: 1},
			want: RawListing{Title: "Strips", Price: 300, ShipPrice: 300, Available: 1},
		},
		{
			name: "garbled prices become zero",
			in:   RawListing{Title: "Strips", Price: math.NaN(), ShipPrice: -5, Available: 1},
			want: RawListing{Title: "Strips", Price: 0, ShipPrice: 0, Available: 1},
		},
		{
			name: "unknown availability becomes unavailable",
			in:   RawListing{Title: "Strips", Price: 10, ShipPrice: 12, Available: 3},
			want: RawListing{Title: "Strips", Price: 10, ShipPrice: 12, Available: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Sanitize(RawListing{Title: "   "})
	assert.ErrorIs(t, err, ErrEmptyTitle)
}
