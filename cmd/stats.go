package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the store and the snapshot hold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.db.Stats(ctx)
		if err != nil {
			return err
		}
		titleColor.Fprintln(out, "store")
		field("listings", st.Listings)
		field("batches", st.Batches)
		field("latest batch", st.Latest)
		field("goods", st.Goods)
		field("matches", st.Matches)
		field("sources", st.Sources)

		if a.snap == nil {
			warn("snapshot disabled")
			return nil
		}
		gen, err := a.snap.Load()
		if err != nil {
			return err
		}
		if gen == nil {
			warn("no snapshot saved yet")
			return nil
		}
		titleColor.Fprintln(out, "snapshot")
		field("generation", gen.ID)
		field("built", gen.BuiltAt.Format(time.RFC3339))
		field("batch", gen.BatchID)
		field("groups", gen.Catalog.Len())
		field("grams", gen.Index.Len())
		if gen.BatchID < st.Latest {
			warn("snapshot is behind the latest batch, run rebuild")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
