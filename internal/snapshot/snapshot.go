// Package snapshot persists the last published generation in a bbolt file so
// a restarted server can serve before its first rebuild. The catalog and the
// index are stored as separate JSON blobs written in one transaction.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/index"
)

// Bucket keys
var (
	bucketGeneration = []byte("generation")
	keyMeta          = []byte("meta")
	keyCatalog       = []byte("catalog")
	keyIndex         = []byte("index")
)

// meta is everything in a generation except the catalog and the index.
type meta struct {
	ID      string           `json:"id"`
	BuiltAt time.Time        `json:"built_at"`
	BatchID int64            `json:"batch_id"`
	Stats   cachestore.Stats `json:"stats"`
}

// Store is a bbolt-backed snapshot file.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored generation. Either the whole generation is
// written or nothing is.
func (s *Store) Save(gen *cachestore.Generation) error {
	if gen == nil {
		return fmt.Errorf("nil generation")
	}

	metaJSON, err := json.Marshal(meta{ID: gen.ID, BuiltAt: gen.BuiltAt, BatchID: gen.BatchID, Stats: gen.Stats})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	catalogJSON, err := json.Marshal(gen.Catalog)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	indexJSON, err := json.Marshal(gen.Index)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketGeneration)
		if err != nil {
			return err
		}
		if err := b.Put(keyMeta, metaJSON); err != nil {
			return err
		}
		if err := b.Put(keyCatalog, catalogJSON); err != nil {
			return err
		}
		return b.Put(keyIndex, indexJSON)
	})
}

// Load returns the stored generation. Returns nil, nil if nothing was saved.
func (s *Store) Load() (*cachestore.Generation, error) {
	var metaJSON, catalogJSON, indexJSON []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGeneration)
		if b == nil {
			return nil
		}
		// bbolt slices are only valid inside the transaction.
		metaJSON = copyBytes(b.Get(keyMeta))
		catalogJSON = copyBytes(b.Get(keyCatalog))
		indexJSON = copyBytes(b.Get(keyIndex))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if metaJSON == nil || catalogJSON == nil || indexJSON == nil {
		return nil, nil
	}

	var m meta
	if err := json.Unmarshal(metaJSON, &m); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	c := &catalog.Catalog{}
	if err := json.Unmarshal(catalogJSON, c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	idx := &index.Index{}
	if err := json.Unmarshal(indexJSON, idx); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	if c.Groups == nil {
		c.Groups = make(map[int]*catalog.ProductGroup)
	}
	if idx.Grams == nil {
		idx.Grams = make(map[string][]int)
	}

	return &cachestore.Generation{
		ID:      m.ID,
		BuiltAt: m.BuiltAt,
		BatchID: m.BatchID,
		Catalog: c,
		Index:   idx,
		Stats:   m.Stats,
	}, nil
}

// Listener saves every swapped-in generation.
func (s *Store) Listener() cachestore.Listener {
	return func(_ context.Context, _, next *cachestore.Generation) error {
		return s.Save(next)
	}
}

func copyBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
