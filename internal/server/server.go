// Package server exposes the catalog over Connect RPC and a small REST API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/publish"
	"github.com/callmeahab/catalog-search/internal/resultcache"
	"github.com/callmeahab/catalog-search/internal/search"
	"github.com/callmeahab/catalog-search/internal/tagger"
)

// ErrQueryRequired is returned when a query request carries no query text.
var ErrQueryRequired = errors.New("query not set")

// Autocompleter suggests groups for a prefix.
type Autocompleter interface {
	Autocomplete(ctx context.Context, q string, limit int) ([]publish.Suggestion, error)
}

// Options wires a Server.
type Options struct {
	Store          *cachestore.Store
	Brands         search.BrandExtractor
	Tagger         *tagger.Tagger
	Cache          resultcache.Client
	CacheTTL       time.Duration
	Suggest        Autocompleter
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Server answers queries against the active generation.
type Server struct {
	store    *cachestore.Store
	brands   search.BrandExtractor
	tagger   *tagger.Tagger
	cache    resultcache.Client
	cacheTTL time.Duration
	suggest  Autocompleter
	timeout  time.Duration
	logger   zerolog.Logger
	started  time.Time
}

// New returns a server over opts.
func New(opts Options) *Server {
	return &Server{
		store:    opts.Store,
		brands:   opts.Brands,
		tagger:   opts.Tagger,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		suggest:  opts.Suggest,
		timeout:  opts.RequestTimeout,
		logger:   opts.Logger.With().Str("component", "server").Logger(),
		started:  time.Now(),
	}
}

// QueryResponse is the answer to one query.
type QueryResponse struct {
	Status       string                  `json:"status"`
	Info         []*catalog.ProductGroup `json:"info"`
	FilterGroups []int                   `json:"filter_groups"`
	Tags         []tagger.Tag            `json:"tags"`
	Generation   string                  `json:"generation"`
}

// Query resolves q against the active generation. Results are cached per
// generation.
func (s *Server) Query(ctx context.Context, q string, filter search.FilterSet) (*QueryResponse, error) {
	if q == "" {
		return nil, ErrQueryRequired
	}
	gen, err := s.store.Active()
	if err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil {
		ids := make([]int, 0, len(filter))
		for id := range filter {
			ids = append(ids, id)
		}
		key = resultcache.QueryKey(gen.ID, s.brandsVersion(), q, ids, filter != nil)
		if resp, ok := s.cached(ctx, key); ok {
			return resp, nil
		}
	}

	res := search.Resolve(q, gen.Index, gen.Catalog, s.brands, filter)
	resp := &QueryResponse{
		Status:       "ok",
		Info:         res.Groups,
		FilterGroups: res.FilterGroups,
		Tags:         []tagger.Tag{},
		Generation:   gen.ID,
	}
	if resp.Info == nil {
		resp.Info = []*catalog.ProductGroup{}
	}
	if resp.FilterGroups == nil {
		resp.FilterGroups = []int{}
	}
	if s.tagger != nil {
		if tags, _ := s.tagger.Tag(q); tags != nil {
			resp.Tags = tags
		}
	}

	if s.cache != nil {
		s.remember(ctx, key, resp)
	}
	return resp, nil
}

// versioned is implemented by brand sources that can be swapped at runtime.
type versioned interface {
	Version() uint64
}

func (s *Server) brandsVersion() uint64 {
	if v, ok := s.brands.(versioned); ok {
		return v.Version()
	}
	return 0
}

func (s *Server) cached(ctx context.Context, key string) (*QueryResponse, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, resultcache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("result cache read failed")
		}
		return nil, false
	}
	var resp QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn().Err(err).Msg("result cache entry is corrupt")
		return nil, false
	}
	return &resp, true
}

func (s *Server) remember(ctx context.Context, key string, resp *QueryResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn().Err(err).Msg("result cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("result cache write failed")
	}
}

// ReloadResponse reports a finished rebuild.
type ReloadResponse struct {
	Status     string           `json:"status"`
	Generation string           `json:"generation"`
	Stats      cachestore.Stats `json:"stats"`
}

// Reload rebuilds the catalog and swaps it in.
func (s *Server) Reload(ctx context.Context) (*ReloadResponse, error) {
	gen, err := s.store.Reload(ctx)
	if err != nil {
		return nil, err
	}
	return &ReloadResponse{Status: "ok", Generation: gen.ID, Stats: gen.Stats}, nil
}

// Featured returns groups sold by several sources.
func (s *Server) Featured(_ context.Context, limit int) ([]catalog.FeaturedGroup, error) {
	gen, err := s.store.Active()
	if err != nil {
		return nil, err
	}
	out := catalog.Featured(gen.Catalog, limit)
	if out == nil {
		out = []catalog.FeaturedGroup{}
	}
	return out, nil
}

// Autocomplete suggests groups for q. Without a mirror, or when the mirror
// fails, suggestions come from the local resolver.
func (s *Server) Autocomplete(ctx context.Context, q string, limit int) ([]publish.Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	if q == "" {
		return []publish.Suggestion{}, nil
	}
	if s.suggest != nil {
		out, err := s.suggest.Autocomplete(ctx, q, limit)
		if err == nil {
			return out, nil
		}
		s.logger.Warn().Err(err).Msg("autocomplete mirror failed, using local resolver")
	}

	gen, err := s.store.Active()
	if err != nil {
		return nil, err
	}
	res := search.Resolve(q, gen.Index, gen.Catalog, s.brands, nil)
	out := make([]publish.Suggestion, 0, limit)
	for _, g := range res.Groups {
		if len(out) == limit {
			break
		}
		out = append(out, publish.Suggestion{
			ID:        g.ID,
			GroupName: g.GroupName,
			Brand:     g.BrandName,
			MinPrice:  catalog.Summarize(g).PriceRange.Min,
		})
	}
	return out, nil
}

// HealthResponse describes the serving state.
type HealthResponse struct {
	Status     string `json:"status"`
	Generation string `json:"generation,omitempty"`
	BatchID    int64  `json:"batch_id"`
	Groups     int    `json:"groups"`
	Uptime     string `json:"uptime"`
}

// Health reports whether a generation is being served.
func (s *Server) Health(context.Context) *HealthResponse {
	resp := &HealthResponse{Status: "starting", Uptime: time.Since(s.started).Round(time.Second).String()}
	if gen := s.store.Current(); gen != nil {
		resp.Status = "healthy"
		resp.Generation = gen.ID
		resp.BatchID = gen.BatchID
		resp.Groups = gen.Catalog.Len()
	}
	return resp
}

// Handler returns the full HTTP handler: REST routes, Connect procedures,
// CORS and h2c.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(s.recoverer)
	if s.timeout > 0 {
		r.Use(chimiddleware.Timeout(s.timeout))
	}

	s.routes(r)
	s.mountConnect(r)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Connect-Protocol-Version"},
		ExposedHeaders:   []string{"Grpc-Status", "Grpc-Message"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return h2c.NewHandler(corsHandler.Handler(r), &http2.Server{})
}

// Run serves on addr until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("catalog server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("catalog server stopped")
	return nil
}
