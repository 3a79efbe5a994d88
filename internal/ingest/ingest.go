// Package ingest appends scraped listings and trained metadata to the store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/identity"
	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// Store is the write side of the listing store.
type Store interface {
	identity.DictionaryLoader
	NextBatchID(ctx context.Context) (int64, error)
	InsertRaws(ctx context.Context, batch int64, raws []catalog.RawListing, ids []int) error
	UpsertSource(ctx context.Context, id int, name string) error
	UpsertGroupMeta(ctx context.Context, id int, meta catalog.GroupMeta) error
	UpsertMatch(ctx context.Context, title string, goodID int) error
}

// Result describes one ingested batch.
type Result struct {
	Batch    int64 `json:"batch"`
	Accepted int   `json:"accepted"`
	Rejected int   `json:"rejected"`
	Matched  int   `json:"matched"`
}

// Ingester writes batches to a Store.
type Ingester struct {
	store  Store
	logger zerolog.Logger
}

// New returns an ingester over store.
func New(store Store, logger zerolog.Logger) *Ingester {
	return &Ingester{
		store:  store,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Listings sanitizes raws, resolves each against the trained dictionary and
// appends them as a new batch. Listings with an empty title are skipped.
func (in *Ingester) Listings(ctx context.Context, raws []catalog.RawListing) (Result, error) {
	resolver, err := identity.Load(ctx, in.store)
	if err != nil {
		return Result{}, err
	}

	var res Result
	clean := make([]catalog.RawListing, 0, len(raws))
	ids := make([]int, 0, len(raws))
	for i, raw := range raws {
		raw, err := catalog.Sanitize(raw)
		if err != nil {
			if errors.Is(err, catalog.ErrEmptyTitle) {
				res.Rejected++
				in.logger.Warn().Int("row", i).Int("source", raw.SourceID).Msg("skipping listing without title")
				continue
			}
			return Result{}, err
		}
		id, ok := resolver.Resolve(raw.Title)
		if ok {
			res.Matched++
		}
		clean = append(clean, raw)
		ids = append(ids, id)
	}
	if len(clean) == 0 {
		in.logger.Warn().Int("rejected", res.Rejected).Msg("nothing to ingest")
		return res, nil
	}

	batch, err := in.store.NextBatchID(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := in.store.InsertRaws(ctx, batch, clean, ids); err != nil {
		return Result{}, err
	}
	res.Batch = batch
	res.Accepted = len(clean)

	in.logger.Info().
		Int64("batch", batch).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Int("matched", res.Matched).
		Msg("batch ingested")
	return res, nil
}

// Goods stores group metadata rows.
func (in *Ingester) Goods(ctx context.Context, goods []GoodRecord) error {
	for _, g := range goods {
		if err := in.store.UpsertGroupMeta(ctx, g.ID, g.Meta); err != nil {
			return err
		}
	}
	in.logger.Info().Int("goods", len(goods)).Msg("goods stored")
	return nil
}

// Matches trains the identity dictionary. Titles that unify to nothing are
// skipped.
func (in *Ingester) Matches(ctx context.Context, matches []MatchRecord) (int, error) {
	stored := 0
	for _, m := range matches {
		if textnorm.Unify(m.Title) == "" {
			in.logger.Warn().Str("title", m.Title).Msg("skipping match with empty key")
			continue
		}
		if err := in.store.UpsertMatch(ctx, m.Title, m.GoodID); err != nil {
			return stored, fmt.Errorf("train %q: %w", m.Title, err)
		}
		stored++
	}
	in.logger.Info().Int("matches", stored).Msg("matches stored")
	return stored, nil
}

// Sources stores source display names.
func (in *Ingester) Sources(ctx context.Context, sources []SourceRecord) error {
	for _, s := range sources {
		if err := in.store.UpsertSource(ctx, s.ID, s.Name); err != nil {
			return err
		}
	}
	in.logger.Info().Int("sources", len(sources)).Msg("sources stored")
	return nil
}
