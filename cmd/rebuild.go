package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rebuildNotify string

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Build a generation from the latest batch and save the snapshot",
	Long: `Rebuild runs a full catalog and index build, writes it to the snapshot
file and publishes it to Meilisearch when configured. With --notify the
running server at the given URL is asked to reload as well.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildNotify, "notify", "", "server base URL to ask for a reload")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	catalogs := a.catalogStore()
	if mirror := a.mirror(); mirror != nil {
		catalogs.OnSwap("meilisearch", mirror.Listener())
	}
	gen, err := catalogs.Reload(ctx)
	if err != nil {
		return err
	}

	success("generation %s built", gen.ID)
	field("batch", gen.BatchID)
	field("listings", gen.Stats.Listings)
	field("dropped", gen.Stats.Dropped)
	field("groups", gen.Stats.Groups)
	field("synthetic", gen.Stats.Synthetic)
	field("missing meta", gen.Stats.MissingMeta)
	field("grams", gen.Stats.Grams)
	field("duration", gen.Stats.Duration.Round(time.Millisecond))
	if a.snap == nil {
		warn("snapshot disabled, generation not persisted")
	}

	if rebuildNotify != "" {
		if err := notifyServer(ctx, rebuildNotify); err != nil {
			return err
		}
		success("server at %s reloaded", rebuildNotify)
	}
	return nil
}

// notifyServer asks a running server to rebuild its generation.
func notifyServer(ctx context.Context, baseURL string) error {
	url := strings.TrimRight(baseURL, "/") + "/api/v1/update_goods"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify %s: status %d", url, resp.StatusCode)
	}
	return nil
}
