package catalog

import (
	"errors"
	"math"
	"strings"
)

// ErrEmptyTitle is returned by Sanitize for listings without a title.
var ErrEmptyTitle = errors.New("listing has an empty title")

// Sanitize coerces a scraped listing into the raw listing contract. Garbled
// prices become 0, a missing ship price becomes the item price and any
// availability flag other than 1 becomes 0. The listing is rejected only
// when its title is empty.
func Sanitize(raw RawListing) (RawListing, error) {
	raw.Title = strings.TrimSpace(raw.Title)
	if raw.Title == "" {
		return raw, ErrEmptyTitle
	}
	raw.URL = strings.TrimSpace(raw.URL)

	if invalidPrice(raw.Price) {
		raw.Price = 0
	}
	if invalidPrice(raw.ShipPrice) || raw.ShipPrice == 0 {
		raw.ShipPrice = raw.Price
	}
	if raw.Available != 1 {
		raw.Available = 0
	}
	return raw, nil
}

func invalidPrice(p float64) bool {
	return math.IsNaN(p) || math.IsInf(p, 0) || p < 0
}
