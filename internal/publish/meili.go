// Package publish mirrors catalog groups into Meilisearch for autocomplete.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	meilisearch "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/catalog"
)

// DefaultIndex is the Meilisearch index the catalog is mirrored into.
const DefaultIndex = "groups"

// Document is one product group as stored in Meilisearch. Prices are cents.
type Document struct {
	ID          string `json:"id"`
	GroupID     int    `json:"group_id"`
	GroupName   string `json:"group_name"`
	Brand       string `json:"brand"`
	FgID        int    `json:"fg_id"`
	MinPrice    int64  `json:"min_price"`
	MaxPrice    int64  `json:"max_price"`
	SourceCount int    `json:"source_count"`
	ItemCount   int    `json:"item_count"`
}

// Suggestion is one autocomplete hit.
type Suggestion struct {
	ID        int     `json:"id"`
	GroupName string  `json:"group_name"`
	Brand     string  `json:"brand"`
	MinPrice  float64 `json:"min_price"`
}

// Documents converts every group of c, in identity order.
func Documents(c *catalog.Catalog) []Document {
	docs := make([]Document, 0, c.Len())
	for _, id := range c.IDs() {
		g := c.Groups[id]
		s := catalog.Summarize(g)
		docs = append(docs, Document{
			ID:          "group_" + strconv.Itoa(id),
			GroupID:     id,
			GroupName:   g.GroupName,
			Brand:       g.BrandName,
			FgID:        g.FilterGroupID,
			MinPrice:    cents(s.PriceRange.Min),
			MaxPrice:    cents(s.PriceRange.Max),
			SourceCount: s.SourceCount,
			ItemCount:   s.ItemCount,
		})
	}
	return docs
}

func cents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Mirror publishes generations to Meilisearch and serves autocomplete from it.
type Mirror struct {
	client    meilisearch.ServiceManager
	indexName string
	batchSize int
	logger    zerolog.Logger
}

// NewMirror connects a mirror to the Meilisearch instance at url.
func NewMirror(url, apiKey, indexName string, logger zerolog.Logger) *Mirror {
	if indexName == "" {
		indexName = DefaultIndex
	}
	return &Mirror{
		client:    meilisearch.New(url, meilisearch.WithAPIKey(apiKey)),
		indexName: indexName,
		batchSize: 1000,
		logger:    logger.With().Str("component", "meili").Logger(),
	}
}

// Publish replaces the index contents with the groups of gen.
func (m *Mirror) Publish(ctx context.Context, gen *cachestore.Generation) error {
	_, _ = m.client.DeleteIndex(m.indexName)
	if _, err := m.client.CreateIndex(&meilisearch.IndexConfig{Uid: m.indexName, PrimaryKey: "id"}); err != nil {
		return fmt.Errorf("create index %s: %w", m.indexName, err)
	}

	index := m.client.Index(m.indexName)
	settings := meilisearch.Settings{
		SearchableAttributes: []string{"group_name", "brand"},
		FilterableAttributes: []string{"fg_id", "brand", "min_price"},
		SortableAttributes:   []string{"min_price", "source_count"},
	}
	if _, err := index.UpdateSettings(&settings); err != nil {
		m.logger.Warn().Err(err).Msg("could not update index settings")
	}

	docs := Documents(gen.Catalog)
	for start := 0; start < len(docs); start += m.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + m.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if _, err := index.AddDocuments(docs[start:end], nil); err != nil {
			return fmt.Errorf("add documents %d-%d: %w", start, end, err)
		}
	}

	m.logger.Info().Str("generation", gen.ID).Int("documents", len(docs)).Msg("catalog mirrored")
	return nil
}

// Listener publishes every swapped-in generation.
func (m *Mirror) Listener() cachestore.Listener {
	return func(ctx context.Context, _, next *cachestore.Generation) error {
		return m.Publish(ctx, next)
	}
}

// Autocomplete searches the mirrored groups.
func (m *Mirror) Autocomplete(_ context.Context, q string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := m.client.Index(m.indexName).Search(q, &meilisearch.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	var hits []Document
	b, err := json.Marshal(res.Hits)
	if err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}
	if err := json.Unmarshal(b, &hits); err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}

	out := make([]Suggestion, 0, len(hits))
	for _, h := range hits {
		if h.GroupName == "" {
			continue
		}
		out = append(out, Suggestion{
			ID:        h.GroupID,
			GroupName: h.GroupName,
			Brand:     h.Brand,
			MinPrice:  float64(h.MinPrice) / 100.0,
		})
	}
	m.logger.Debug().Str("q", q).Int("processing_ms", int(res.ProcessingTimeMs)).Int("hits", len(out)).Msg("autocomplete")
	return out, nil
}
