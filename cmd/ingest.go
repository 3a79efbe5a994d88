package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/callmeahab/catalog-search/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load listings and training data from CSV files",
}

var ingestListingsCmd = &cobra.Command{
	Use:   "listings <file.csv>",
	Short: "Append scraped listings as a new batch",
	Long: `Reads title,source_id,price,ship_price,url,available,observed_at rows,
sanitizes them, resolves each title against the trained dictionary and
appends them as the newest batch. Use "-" to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngester(args[0], func(ctx context.Context, in *ingest.Ingester, r io.Reader) error {
			raws, err := ingest.ReadListings(r, time.Now())
			if err != nil {
				return err
			}
			res, err := in.Listings(ctx, raws)
			if err != nil {
				return err
			}
			if res.Accepted == 0 {
				warn("nothing ingested (%d rejected)", res.Rejected)
				return nil
			}
			success("batch %d ingested", res.Batch)
			field("accepted", res.Accepted)
			field("rejected", res.Rejected)
			field("matched", res.Matched)
			return nil
		})
	},
}

var ingestGoodsCmd = &cobra.Command{
	Use:   "goods <file.csv>",
	Short: "Store group metadata (id,title,group_id,brand_id,brand_name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngester(args[0], func(ctx context.Context, in *ingest.Ingester, r io.Reader) error {
			goods, err := ingest.ReadGoods(r)
			if err != nil {
				return err
			}
			if err := in.Goods(ctx, goods); err != nil {
				return err
			}
			success("%d goods stored", len(goods))
			return nil
		})
	},
}

var ingestMatchesCmd = &cobra.Command{
	Use:   "matches <file.csv>",
	Short: "Train the title dictionary (title,good_id)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngester(args[0], func(ctx context.Context, in *ingest.Ingester, r io.Reader) error {
			matches, err := ingest.ReadMatches(r)
			if err != nil {
				return err
			}
			n, err := in.Matches(ctx, matches)
			if err != nil {
				return err
			}
			success("%d matches stored", n)
			if skipped := len(matches) - n; skipped > 0 {
				warn("%d titles skipped", skipped)
			}
			return nil
		})
	},
}

var ingestSourcesCmd = &cobra.Command{
	Use:   "sources <file.csv>",
	Short: "Store source display names (id,name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngester(args[0], func(ctx context.Context, in *ingest.Ingester, r io.Reader) error {
			sources, err := ingest.ReadSources(r)
			if err != nil {
				return err
			}
			if err := in.Sources(ctx, sources); err != nil {
				return err
			}
			success("%d sources stored", len(sources))
			return nil
		})
	},
}

func init() {
	ingestCmd.AddCommand(ingestListingsCmd, ingestGoodsCmd, ingestMatchesCmd, ingestSourcesCmd)
	rootCmd.AddCommand(ingestCmd)
}

func withIngester(path string, fn func(ctx context.Context, in *ingest.Ingester, r io.Reader) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, ingest.New(a.db, a.logger), r)
}
