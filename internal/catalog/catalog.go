// Package catalog groups raw listings under canonical identities and keeps
// each group's listings ordered by price.
package catalog

import (
	"sort"
	"strconv"
	"time"

	"github.com/callmeahab/catalog-search/internal/identity"
)

// UncategorizedGroup is the filter group every synthesized identity belongs to.
// It is also always allowed when a query filters by group.
const UncategorizedGroup = 15

// RawListing is one scraped offer as produced by a source adapter.
type RawListing struct {
	Title      string    `json:"title"`
	SourceID   int       `json:"source_id"`
	Price      float64   `json:"price"`
	ShipPrice  float64   `json:"ship_price"`
	URL        string    `json:"url"`
	Available  int       `json:"available"`
	ObservedAt time.Time `json:"observed_at"`
}

// ListingView is the part of a listing kept inside a product group.
type ListingView struct {
	Title      string  `json:"title"`
	SourceName string  `json:"source_name"`
	Price      float64 `json:"price"`
	ShipPrice  float64 `json:"ship_price"`
	URL        string  `json:"url"`
}

// GroupMeta is the trained metadata of one canonical identity.
type GroupMeta struct {
	GroupName     string `json:"group_name"`
	FilterGroupID int    `json:"filter_group_id"`
	BrandID       int    `json:"brand_id"`
	BrandName     string `json:"brand_name"`
}

// ProductGroup is every available listing of one canonical identity.
type ProductGroup struct {
	ID            int           `json:"id"`
	GroupName     string        `json:"group_name"`
	FilterGroupID int           `json:"filter_group_id"`
	BrandID       int           `json:"brand_id"`
	BrandName     string        `json:"brand_name"`
	Items         []ListingView `json:"items"`
}

// Catalog maps canonical identity to its product group. A built catalog is
// never mutated.
type Catalog struct {
	Groups map[int]*ProductGroup `json:"groups"`
}

// Group returns the group with the given identity.
func (c *Catalog) Group(id int) (*ProductGroup, bool) {
	if c == nil {
		return nil, false
	}
	g, ok := c.Groups[id]
	return g, ok
}

// Len returns the number of groups.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Groups)
}

// IDs returns every identity in ascending order.
func (c *Catalog) IDs() []int {
	if c == nil {
		return nil
	}
	ids := make([]int, 0, len(c.Groups))
	for id := range c.Groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IdentityFunc resolves the canonical identity of a listing. false means
// unmatched.
type IdentityFunc func(RawListing) (int, bool)

// ByTitle adapts a title resolver to an IdentityFunc.
func ByTitle(r *identity.Resolver) IdentityFunc {
	return func(raw RawListing) (int, bool) {
		return r.Resolve(raw.Title)
	}
}

// BuildStats describes one catalog build.
type BuildStats struct {
	Listings    int `json:"listings"`
	Dropped     int `json:"dropped"`
	Groups      int `json:"groups"`
	Matched     int `json:"matched"`
	Synthetic   int `json:"synthetic"`
	MissingMeta int `json:"missing_meta"`
}

// Input carries the read-only tables a build consults.
type Input struct {
	Raws       []RawListing
	IdentityOf IdentityFunc
	Meta       map[int]GroupMeta
	Sources    map[int]string
}

// Build groups the available listings of one batch. Unmatched listings get
// synthesized identities from identity.SyntheticBase upward in the order they
// are first seen; the counter is local to this call.
func Build(in Input) (*Catalog, BuildStats) {
	stats := BuildStats{Listings: len(in.Raws)}
	c := &Catalog{Groups: make(map[int]*ProductGroup)}
	nextSynthetic := identity.SyntheticBase

	for _, raw := range in.Raws {
		if raw.Available != 1 {
			stats.Dropped++
			continue
		}

		id, matched := 0, false
		if in.IdentityOf != nil {
			id, matched = in.IdentityOf(raw)
		}
		if !matched || id == 0 {
			id = nextSynthetic
			nextSynthetic++
			matched = false
		}

		group, ok := c.Groups[id]
		if !ok {
			meta, known := in.Meta[id]
			if !matched || !known {
				meta = defaultMeta(raw)
				if matched {
					stats.MissingMeta++
				}
			}
			group = &ProductGroup{
				ID:            id,
				GroupName:     meta.GroupName,
				FilterGroupID: meta.FilterGroupID,
				BrandID:       meta.BrandID,
				BrandName:     meta.BrandName,
			}
			c.Groups[id] = group
			if matched {
				stats.Matched++
			} else {
				stats.Synthetic++
			}
		}

		group.Items = append(group.Items, ListingView{
			Title:      raw.Title,
			SourceName: sourceName(in.Sources, raw.SourceID),
			Price:      raw.Price,
			ShipPrice:  raw.ShipPrice,
			URL:        raw.URL,
		})
	}

	for _, group := range c.Groups {
		sort.SliceStable(group.Items, func(i, j int) bool {
			return group.Items[i].Price < group.Items[j].Price
		})
	}
	stats.Groups = len(c.Groups)
	return c, stats
}

func defaultMeta(raw RawListing) GroupMeta {
	return GroupMeta{
		GroupName:     raw.Title,
		FilterGroupID: UncategorizedGroup,
	}
}

func sourceName(sources map[int]string, id int) string {
	if name, ok := sources[id]; ok && name != "" {
		return name
	}
	return strconv.Itoa(id)
}
