package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/callmeahab/catalog-search/internal/brand"
	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/config"
	"github.com/callmeahab/catalog-search/internal/observability"
	"github.com/callmeahab/catalog-search/internal/publish"
	"github.com/callmeahab/catalog-search/internal/resultcache"
	"github.com/callmeahab/catalog-search/internal/snapshot"
	"github.com/callmeahab/catalog-search/internal/store"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *store.Store
	snap   *snapshot.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Log.Format,
		ServiceName: "catalogd",
	})

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, db: db}
	if cfg.Snapshot.Path != "" {
		snap, err := snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.snap = snap
	}
	return a, nil
}

func (a *app) close() {
	if a.snap != nil {
		if err := a.snap.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close snapshot")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close store")
	}
}

// catalogStore returns a cache store that rebuilds from the SQL store and
// persists every swap to the snapshot file.
func (a *app) catalogStore() *cachestore.Store {
	s := cachestore.NewStore(cachestore.NewSourceBuilder(a.db, a.logger), a.logger)
	if a.snap != nil {
		s.OnSwap("snapshot", a.snap.Listener())
	}
	return s
}

// snapshotGeneration returns the snapshot generation when it is usable. A
// missing or unreadable snapshot, or one older than the latest stored batch,
// yields nil.
func (a *app) snapshotGeneration(ctx context.Context) *cachestore.Generation {
	if a.snap == nil {
		return nil
	}
	gen, err := a.snap.Load()
	if err != nil {
		a.logger.Warn().Err(err).Msg("snapshot unreadable, rebuilding")
		return nil
	}
	if gen == nil {
		return nil
	}
	latest, err := a.db.LatestBatchID(ctx)
	switch {
	case errors.Is(err, store.ErrNoBatch):
	case err != nil:
		a.logger.Warn().Err(err).Msg("latest batch unknown, using snapshot as is")
	case latest > gen.BatchID:
		a.logger.Info().Int64("snapshot_batch", gen.BatchID).Int64("latest_batch", latest).Msg("snapshot is behind, rebuilding")
		return nil
	}
	return gen
}

// restore installs the snapshot generation when it is usable. It reports
// whether one was installed.
func (a *app) restore(ctx context.Context, s *cachestore.Store) bool {
	gen := a.snapshotGeneration(ctx)
	if gen == nil {
		return false
	}
	s.Install(gen)
	return true
}

func (a *app) resultCache(ctx context.Context) (resultcache.Client, error) {
	switch a.cfg.Cache.Driver {
	case "redis":
		r := a.cfg.Cache.Redis
		c, err := resultcache.NewRedisClient(ctx, resultcache.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			PoolSize: r.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "memory":
		return resultcache.NewMemoryClient(a.cfg.Cache.MaxEntries), nil
	default:
		return nil, nil
	}
}

func (a *app) mirror() *publish.Mirror {
	if a.cfg.Search.MeiliURL == "" {
		return nil
	}
	return publish.NewMirror(a.cfg.Search.MeiliURL, a.cfg.Search.MeiliAPIKey, a.cfg.Search.Index, a.logger)
}

func (a *app) brands() (*brand.Holder, error) {
	e, err := brand.Load(a.cfg.Training.BrandTables)
	if err != nil {
		return nil, err
	}
	words, patterns := e.Stats()
	a.logger.Info().Int("words", words).Int("patterns", patterns).Str("path", a.cfg.Training.BrandTables).Msg("brand tables loaded")
	return brand.NewHolder(e), nil
}
