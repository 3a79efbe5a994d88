// Package store persists raw listing batches, group metadata and the trained
// identity dictionary in PostgreSQL or SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/identity"
	"github.com/callmeahab/catalog-search/internal/textnorm"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNoBatch is returned when no listing batch has been ingested yet.
var ErrNoBatch = errors.New("no listing batch ingested")

// Store is the SQL backing store.
type Store struct {
	db     *sql.DB
	driver string
	logger zerolog.Logger
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	return New(db, driver, logger), nil
}

// New wraps an open database.
func New(db *sql.DB, driver string, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		driver: driver,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	realType := "REAL"
	if s.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
		realType = "DOUBLE PRECISION"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS raw_listings (
			id          ` + idColumn + `,
			batch_id    BIGINT NOT NULL,
			title       TEXT NOT NULL,
			source_id   INTEGER NOT NULL,
			price       ` + realType + ` NOT NULL DEFAULT 0,
			ship_price  ` + realType + ` NOT NULL DEFAULT 0,
			url         TEXT NOT NULL DEFAULT '',
			available   INTEGER NOT NULL DEFAULT 0,
			observed_at BIGINT NOT NULL DEFAULT 0,
			good_id     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_listings_batch ON raw_listings(batch_id)`,
		`CREATE TABLE IF NOT EXISTS brands (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS goods (
			id       INTEGER PRIMARY KEY,
			title    TEXT NOT NULL,
			group_id INTEGER NOT NULL DEFAULT 15,
			brand_id INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS title_matches (
			unified_title TEXT PRIMARY KEY,
			good_id       INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.driver, err)
		}
	}
	return nil
}

// NextBatchID returns the id the next ingested batch should use.
func (s *Store) NextBatchID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(batch_id), 0) + 1 FROM raw_listings`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next batch id: %w", err)
	}
	return id, nil
}

// InsertRaws appends a batch of listings in one transaction. ids holds the
// identity resolved for each listing at ingest; 0 or a short slice stores
// NULL.
func (s *Store) InsertRaws(ctx context.Context, batch int64, raws []catalog.RawListing, ids []int) error {
	if len(raws) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO raw_listings
			(batch_id, title, source_id, price, ship_price, url, available, observed_at, good_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, raw := range raws {
		var goodID sql.NullInt64
		if i < len(ids) && ids[i] != 0 {
			goodID = sql.NullInt64{Int64: int64(ids[i]), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			batch,
			raw.Title,
			raw.SourceID,
			raw.Price,
			raw.ShipPrice,
			raw.URL,
			raw.Available,
			raw.ObservedAt.Unix(),
			goodID,
		)
		if err != nil {
			return fmt.Errorf("insert listing %d of batch %d: %w", i, batch, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug().Int64("batch", batch).Int("listings", len(raws)).Msg("batch stored")
	return nil
}

// LatestBatchID returns the id of the most recent batch, or ErrNoBatch.
func (s *Store) LatestBatchID(ctx context.Context) (int64, error) {
	var batch sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(batch_id) FROM raw_listings`).Scan(&batch); err != nil {
		return 0, fmt.Errorf("latest batch id: %w", err)
	}
	if !batch.Valid {
		return 0, ErrNoBatch
	}
	return batch.Int64, nil
}

// LatestBatch returns the listings of the most recent batch in insert order.
func (s *Store) LatestBatch(ctx context.Context) (int64, []catalog.RawListing, error) {
	batch, err := s.LatestBatchID(ctx)
	if err != nil {
		return 0, nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT title, source_id, price, ship_price, url, available, observed_at
		FROM raw_listings
		WHERE batch_id = ?
		ORDER BY id
	`), batch)
	if err != nil {
		return 0, nil, fmt.Errorf("load batch %d: %w", batch, err)
	}
	defer rows.Close()

	var raws []catalog.RawListing
	for rows.Next() {
		var (
			raw      catalog.RawListing
			observed int64
		)
		if err := rows.Scan(&raw.Title, &raw.SourceID, &raw.Price, &raw.ShipPrice, &raw.URL, &raw.Available, &observed); err != nil {
			return 0, nil, fmt.Errorf("scan listing: %w", err)
		}
		raw.ObservedAt = time.Unix(observed, 0).UTC()
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("load batch %d: %w", batch, err)
	}
	return batch, raws, nil
}

// GroupMeta returns the metadata of every trained identity.
func (s *Store) GroupMeta(ctx context.Context) (map[int]catalog.GroupMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.title, g.group_id, g.brand_id, COALESCE(b.name, '')
		FROM goods g
		LEFT JOIN brands b ON b.id = g.brand_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load group metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[int]catalog.GroupMeta)
	for rows.Next() {
		var (
			id int
			m  catalog.GroupMeta
		)
		if err := rows.Scan(&id, &m.GroupName, &m.FilterGroupID, &m.BrandID, &m.BrandName); err != nil {
			return nil, fmt.Errorf("scan group metadata: %w", err)
		}
		meta[id] = m
	}
	return meta, rows.Err()
}

// Sources returns source display names by id.
func (s *Store) Sources(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	defer rows.Close()

	sources := make(map[int]string)
	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources[id] = name
	}
	return sources, rows.Err()
}

// Dictionary loads the trained title dictionary.
func (s *Store) Dictionary(ctx context.Context) (identity.Dictionary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT unified_title, good_id FROM title_matches`)
	if err != nil {
		return nil, fmt.Errorf("load title matches: %w", err)
	}
	defer rows.Close()

	dict := make(identity.Dictionary)
	for rows.Next() {
		var (
			title string
			id    int
		)
		if err := rows.Scan(&title, &id); err != nil {
			return nil, fmt.Errorf("scan title match: %w", err)
		}
		dict[title] = id
	}
	return dict, rows.Err()
}

// UpsertSource sets the display name of a source.
func (s *Store) UpsertSource(ctx context.Context, id int, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sources (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`), id, name)
	if err != nil {
		return fmt.Errorf("upsert source %d: %w", id, err)
	}
	return nil
}

// UpsertGroupMeta stores the metadata of a trained identity, including its
// brand name when it has a brand.
func (s *Store) UpsertGroupMeta(ctx context.Context, id int, meta catalog.GroupMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if meta.BrandID != 0 {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO brands (id, name) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name
		`), meta.BrandID, meta.BrandName)
		if err != nil {
			return fmt.Errorf("upsert brand %d: %w", meta.BrandID, err)
		}
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO goods (id, title, group_id, brand_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, group_id = excluded.group_id, brand_id = excluded.brand_id
	`), id, meta.GroupName, meta.FilterGroupID, meta.BrandID)
	if err != nil {
		return fmt.Errorf("upsert good %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertMatch trains the dictionary: title, once unified, resolves to goodID.
func (s *Store) UpsertMatch(ctx context.Context, title string, goodID int) error {
	key := textnorm.Unify(title)
	if key == "" {
		return fmt.Errorf("title %q unifies to an empty key", title)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO title_matches (unified_title, good_id) VALUES (?, ?)
		ON CONFLICT (unified_title) DO UPDATE SET good_id = excluded.good_id
	`), key, goodID)
	if err != nil {
		return fmt.Errorf("upsert title match: %w", err)
	}
	return nil
}

// Stats summarizes what the store holds.
type Stats struct {
	Listings int   `json:"listings"`
	Batches  int   `json:"batches"`
	Latest   int64 `json:"latest_batch"`
	Goods    int   `json:"goods"`
	Matches  int   `json:"matches"`
	Sources  int   `json:"sources"`
}

// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_listings),
			(SELECT COUNT(DISTINCT batch_id) FROM raw_listings),
			(SELECT COALESCE(MAX(batch_id), 0) FROM raw_listings),
			(SELECT COUNT(*) FROM goods),
			(SELECT COUNT(*) FROM title_matches),
			(SELECT COUNT(*) FROM sources)
	`).Scan(&stats.Listings, &stats.Batches, &stats.Latest, &stats.Goods, &stats.Matches, &stats.Sources)
	if err != nil {
		return stats, fmt.Errorf("failed to get store stats: %w", err)
	}
	return stats, nil
}
