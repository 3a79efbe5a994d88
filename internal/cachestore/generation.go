// Package cachestore holds the active catalog generation and rebuilds it.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/identity"
	"github.com/callmeahab/catalog-search/internal/index"
	"github.com/callmeahab/catalog-search/internal/store"
)

// Generation is one catalog and the index built from it. Both come from the
// same listing batch and are never mutated after the build.
type Generation struct {
	ID      string           `json:"id"`
	BuiltAt time.Time        `json:"built_at"`
	BatchID int64            `json:"batch_id"`
	Catalog *catalog.Catalog `json:"catalog"`
	Index   *index.Index     `json:"index"`
	Stats   Stats            `json:"stats"`
}

// Stats describes how a generation was built.
type Stats struct {
	catalog.BuildStats
	Grams    int           `json:"grams"`
	Postings int           `json:"postings"`
	Duration time.Duration `json:"duration"`
}

// NewGeneration indexes c and wraps both in a fresh generation.
func NewGeneration(batch int64, c *catalog.Catalog, stats catalog.BuildStats) *Generation {
	idx := index.Build(c)
	return &Generation{
		ID:      uuid.NewString(),
		BuiltAt: time.Now().UTC(),
		BatchID: batch,
		Catalog: c,
		Index:   idx,
		Stats: Stats{
			BuildStats: stats,
			Grams:      idx.Len(),
			Postings:   idx.Postings(),
		},
	}
}

// Source is the read side of the backing store a build consumes.
type Source interface {
	identity.DictionaryLoader
	LatestBatch(ctx context.Context) (int64, []catalog.RawListing, error)
	GroupMeta(ctx context.Context) (map[int]catalog.GroupMeta, error)
	Sources(ctx context.Context) (map[int]string, error)
}

// Builder produces generations.
type Builder interface {
	Build(ctx context.Context) (*Generation, error)
}

// SourceBuilder builds generations from the latest batch of a Source.
type SourceBuilder struct {
	source Source
	logger zerolog.Logger
}

// NewSourceBuilder returns a builder reading from source.
func NewSourceBuilder(source Source, logger zerolog.Logger) *SourceBuilder {
	return &SourceBuilder{
		source: source,
		logger: logger.With().Str("component", "builder").Logger(),
	}
}

// Build runs one full rebuild. The dictionary is loaded once for the whole
// batch. A store with no batch yet yields an empty generation.
func (b *SourceBuilder) Build(ctx context.Context) (*Generation, error) {
	start := time.Now()

	resolver, err := identity.Load(ctx, b.source)
	if err != nil {
		return nil, err
	}

	batch, raws, err := b.source.LatestBatch(ctx)
	if err != nil && !errors.Is(err, store.ErrNoBatch) {
		return nil, fmt.Errorf("load latest batch: %w", err)
	}
	meta, err := b.source.GroupMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("load group metadata: %w", err)
	}
	sources, err := b.source.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, stats := catalog.Build(catalog.Input{
		Raws:       raws,
		IdentityOf: catalog.ByTitle(resolver),
		Meta:       meta,
		Sources:    sources,
	})
	gen := NewGeneration(batch, c, stats)
	gen.Stats.Duration = time.Since(start)

	b.logger.Info().
		Str("generation", gen.ID).
		Int64("batch", batch).
		Int("listings", stats.Listings).
		Int("dropped", stats.Dropped).
		Int("groups", stats.Groups).
		Int("synthetic", stats.Synthetic).
		Int("missing_meta", stats.MissingMeta).
		Int("dictionary", resolver.Size()).
		Int("grams", gen.Stats.Grams).
		Dur("duration", gen.Stats.Duration).
		Msg("generation built")
	return gen, nil
}
