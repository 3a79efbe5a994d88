package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/callmeahab/catalog-search/internal/resultcache"
	"github.com/callmeahab/catalog-search/internal/server"
	"github.com/callmeahab/catalog-search/internal/tagger"
	"github.com/callmeahab/catalog-search/internal/watch"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries over Connect RPC and REST",
	Long: `Serve restores the last snapshot when one exists, otherwise builds a
generation from the latest listing batch, then serves queries until
interrupted. Brand tables are reloaded on change when training.watch is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	catalogs := a.catalogStore()

	cache, err := a.resultCache(ctx)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		catalogs.OnSwap("result-cache", resultcache.PurgeListener(cache))
	}

	mirror := a.mirror()
	if mirror != nil {
		catalogs.OnSwap("meilisearch", mirror.Listener())
	}

	if a.restore(ctx, catalogs) {
		if mirror != nil {
			if err := mirror.Publish(ctx, catalogs.Current()); err != nil {
				a.logger.Warn().Err(err).Msg("publish restored generation")
			}
		}
	} else if _, err := catalogs.Reload(ctx); err != nil {
		return err
	}

	holder, err := a.brands()
	if err != nil {
		return err
	}

	opts := server.Options{
		Store:          catalogs,
		Brands:         holder,
		Tagger:         tagger.Default(),
		Cache:          cache,
		CacheTTL:       cfg.Cache.TTL,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         a.logger,
	}
	if mirror != nil {
		opts.Suggest = mirror
	}
	srv := server.New(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Addr, cfg.Server.GracefulShutdown)
	})
	if cfg.Training.Watch {
		var opts []watch.Option
		if cache != nil {
			opts = append(opts, watch.OnReload(func(err error) {
				if err != nil {
					return
				}
				if err := cache.DeleteByPrefix(gctx, ""); err != nil {
					a.logger.Warn().Err(err).Msg("purge result cache after brand reload")
				}
			}))
		}
		w, err := watch.New(cfg.Training.BrandTables, holder, a.logger, opts...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
