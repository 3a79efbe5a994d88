package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/search"
	"github.com/callmeahab/catalog-search/internal/tagger"
)

var (
	queryFilter string
	queryJSON   bool
	queryFresh  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run one query against the snapshot or a fresh build",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryFilter, "fg", "", `filter groups, space separated (e.g. "7 9")`)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the raw result as JSON")
	queryCmd.Flags().BoolVar(&queryFresh, "fresh", false, "ignore the snapshot and build from the store")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	filter, err := search.ParseFilterGroups(queryFilter)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	gen, err := loadGeneration(ctx, a)
	if err != nil {
		return err
	}
	holder, err := a.brands()
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	res := search.Resolve(text, gen.Index, gen.Catalog, holder, filter)
	tags, _ := tagger.Default().Tag(text)

	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(map[string]interface{}{
			"status":        "ok",
			"info":          res.Groups,
			"filter_groups": res.FilterGroups,
			"tags":          tags,
		})
	}

	printResult(res, tags)
	return nil
}

func loadGeneration(ctx context.Context, a *app) (*cachestore.Generation, error) {
	if !queryFresh {
		if gen := a.snapshotGeneration(ctx); gen != nil {
			return gen, nil
		}
	}
	return cachestore.NewSourceBuilder(a.db, a.logger).Build(ctx)
}

func printResult(res search.Result, tags []tagger.Tag) {
	if len(res.Brands) > 0 {
		field("brands", res.Brands)
	}
	field("residual", fmt.Sprintf("%q", res.Residual))
	for _, t := range tags {
		if t.Value != "" {
			field("tag", t.Category+"/"+t.Name+"="+t.Value)
		} else {
			field("tag", t.Category+"/"+t.Name)
		}
	}
	if res.Fallback {
		warn("no gram matched, showing the narrowed catalog")
	}
	if res.Empty() {
		warn("no groups found")
		return
	}

	for _, g := range res.Groups {
		s := catalog.Summarize(g)
		titleColor.Fprintf(out, "\n#%d %s\n", g.ID, g.GroupName)
		fmt.Fprintf(out, "  %s fg %d, %d offers from %d sources, %.2f – %.2f\n",
			dimColor.Sprint(brandLabel(g)), g.FilterGroupID, s.ItemCount, s.SourceCount, s.PriceRange.Min, s.PriceRange.Max)
		for _, item := range g.Items {
			fmt.Fprintf(out, "    %10.2f  %-16s %s\n", item.Price, item.SourceName, item.Title)
		}
	}
	fmt.Fprintln(out)
	success("%d groups in filter groups %v", len(res.Groups), res.FilterGroups)
}

func brandLabel(g *catalog.ProductGroup) string {
	if g.BrandName == "" {
		return "no brand,"
	}
	return g.BrandName + ","
}
