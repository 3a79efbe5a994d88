// Package identity maps raw listing titles to canonical product identities
// through a trained exact-match dictionary keyed by the weakly unified title.
package identity

import (
	"context"
	"fmt"

	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// SyntheticBase is the first identity handed out to unmatched listings.
// Trained identities are always below it.
const SyntheticBase = 100000

// Dictionary is the trained table: unified title -> canonical identity.
type Dictionary map[string]int

// DictionaryLoader loads the trained dictionary from its backing store.
type DictionaryLoader interface {
	Dictionary(ctx context.Context) (Dictionary, error)
}

// Resolver resolves titles against one loaded dictionary. It is immutable
// and safe for concurrent use.
type Resolver struct {
	dict Dictionary
}

// NewResolver wraps an already loaded dictionary. A nil dictionary resolves
// nothing.
func NewResolver(dict Dictionary) *Resolver {
	if dict == nil {
		dict = Dictionary{}
	}
	return &Resolver{dict: dict}
}

// Load reads the dictionary once so a whole batch can be resolved without
// reloading it per listing.
func Load(ctx context.Context, loader DictionaryLoader) (*Resolver, error) {
	dict, err := loader.Dictionary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity dictionary: %w", err)
	}
	return NewResolver(dict), nil
}

// Resolve returns the canonical identity for title. The second result is
// false when the unified title is empty or not in the dictionary.
func (r *Resolver) Resolve(title string) (int, bool) {
	key := textnorm.Unify(title)
	if key == "" {
		return 0, false
	}
	id, ok := r.dict[key]
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// Size returns the number of trained entries.
func (r *Resolver) Size() int {
	return len(r.dict)
}
