// Package watch reloads brand tables when their file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/callmeahab/catalog-search/internal/brand"
)

// DefaultDebounce collapses the burst of events an editor produces per save.
const DefaultDebounce = 200 * time.Millisecond

// Loader builds an extractor from the tables file.
type Loader func(path string) (*brand.Extractor, error)

// BrandWatcher swaps a freshly loaded extractor into a holder whenever the
// tables file changes. A failed load keeps the previous extractor.
type BrandWatcher struct {
	path     string
	holder   *brand.Holder
	load     Loader
	debounce time.Duration
	logger   zerolog.Logger

	fw       *fsnotify.Watcher
	mu       sync.Mutex
	stopped  bool
	reloaded func(err error)
}

// Option configures a BrandWatcher.
type Option func(*BrandWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *BrandWatcher) { w.debounce = d }
}

// WithLoader replaces brand.Load.
func WithLoader(l Loader) Option {
	return func(w *BrandWatcher) { w.load = l }
}

// OnReload registers a hook called after every reload attempt.
func OnReload(fn func(err error)) Option {
	return func(w *BrandWatcher) { w.reloaded = fn }
}

// New watches the directory holding path. Editors often replace a file
// instead of writing it, so the directory is watched and events are filtered
// by name.
func New(path string, holder *brand.Holder, logger zerolog.Logger, opts ...Option) (*BrandWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w := &BrandWatcher{
		path:     abs,
		holder:   holder,
		load:     brand.Load,
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "brand-watch").Str("path", abs).Logger(),
		fw:       fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is cancelled or the watcher is stopped.
func (w *BrandWatcher) Run(ctx context.Context) error {
	defer w.Stop()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *BrandWatcher) reload() {
	e, err := w.load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("brand tables reload failed, keeping previous tables")
	} else {
		w.holder.Swap(e)
		words, patterns := e.Stats()
		w.logger.Info().Int("words", words).Int("patterns", patterns).Msg("brand tables reloaded")
	}
	if w.reloaded != nil {
		w.reloaded(err)
	}
}

// Stop releases the watcher. Safe to call more than once.
func (w *BrandWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fw.Close()
}
