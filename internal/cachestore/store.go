package cachestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNoGeneration is returned when nothing has been built or installed yet.
var ErrNoGeneration = errors.New("no catalog generation loaded")

// Listener runs after a generation swap. prev is nil on the first swap.
type Listener func(ctx context.Context, prev, next *Generation) error

type namedListener struct {
	name string
	fn   Listener
}

// Store holds the active generation. Readers never block: a reload builds a
// new generation off to the side and publishes it with one pointer swap, so
// a query sees either the old generation or the new one.
type Store struct {
	builder Builder
	logger  zerolog.Logger

	current atomic.Pointer[Generation]
	reloads singleflight.Group

	mu        sync.Mutex
	listeners []namedListener
}

// NewStore returns an empty store that rebuilds with builder.
func NewStore(builder Builder, logger zerolog.Logger) *Store {
	return &Store{
		builder: builder,
		logger:  logger.With().Str("component", "cachestore").Logger(),
	}
}

// OnSwap registers a listener that runs after every successful reload.
func (s *Store) OnSwap(name string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, namedListener{name: name, fn: fn})
}

// Current returns the active generation, or nil before the first build.
func (s *Store) Current() *Generation {
	return s.current.Load()
}

// Active returns the active generation or ErrNoGeneration.
func (s *Store) Active() (*Generation, error) {
	gen := s.current.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	return gen, nil
}

// Install makes gen active without notifying listeners. It is used to serve
// a generation restored from a snapshot. A nil gen is ignored.
func (s *Store) Install(gen *Generation) {
	if gen == nil {
		s.logger.Warn().Msg("ignoring install of nil generation")
		return
	}
	s.current.Store(gen)
	s.logger.Info().Str("generation", gen.ID).Int64("batch", gen.BatchID).Msg("generation installed")
}

// Reload builds a new generation and swaps it in. Concurrent calls share one
// build. A failed build leaves the active generation untouched.
func (s *Store) Reload(ctx context.Context) (*Generation, error) {
	v, err, shared := s.reloads.Do("reload", func() (interface{}, error) {
		gen, err := s.builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		prev := s.current.Swap(gen)
		s.notify(ctx, prev, gen)
		return gen, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("reload failed")
		return nil, fmt.Errorf("reload: %w", err)
	}
	if shared {
		s.logger.Debug().Msg("reload coalesced with a running build")
	}
	return v.(*Generation), nil
}

func (s *Store) notify(ctx context.Context, prev, next *Generation) {
	s.mu.Lock()
	listeners := make([]namedListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		if err := l.fn(ctx, prev, next); err != nil {
			s.logger.Warn().Err(err).Str("listener", l.name).Str("generation", next.ID).Msg("swap listener failed")
		}
	}
}
