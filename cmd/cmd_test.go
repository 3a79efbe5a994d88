package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/snapshot"
	"github.com/callmeahab/catalog-search/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, buf *bytes.Buffer, args ...string) error {
	t.Helper()
	buf.Reset()
	out = buf
	t.Cleanup(func() { out = os.Stdout })
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestIngestRebuildQuery(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "catalogd.yaml", `
database:
  driver: sqlite
  dsn: `+filepath.Join(dir, "catalog.db")+`
snapshot:
  path: `+filepath.Join(dir, "catalog.snapshot")+`
cache:
  driver: none
log:
  level: error
`)
	sources := writeFile(t, dir, "sources.csv", "id,name\n1,МедМаг\n2,ДиаКаталог\n")
	goods := writeFile(t, dir, "goods.csv", "id,title,group_id,brand_id,brand_name\n7,Accu-Chek Active №50,2,3,Accu-Chek\n")
	matches := writeFile(t, dir, "matches.csv", "title,good_id\nAccu-Chek Active 50,7\nAccu-Chek Active test strips 50,7\n")
	listings := writeFile(t, dir, "listings.csv", `title,source_id,price,ship_price,url,available
Accu-Chek Active 50,1,900,,https://a.example/1,1
Accu-Chek Active test strips 50,2,850,,https://b.example/1,1
Ланцеты Medlance,2,300,,https://b.example/2,1
Sold out strips,1,100,,https://a.example/2,0
`)

	var buf bytes.Buffer
	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "ingest", "sources", sources))
	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "ingest", "goods", goods))
	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "ingest", "matches", matches))
	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "ingest", "listings", listings))
	assert.Contains(t, buf.String(), "batch 1 ingested")

	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "rebuild"))
	assert.Contains(t, buf.String(), "built")

	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "query", "--json", "--fg", "2", "accu", "chek", "active"))
	var res struct {
		Status string `json:"status"`
		Info   []struct {
			ID    int `json:"id"`
			Items []struct {
				SourceName string `json:"source_name"`
			} `json:"items"`
		} `json:"info"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	require.Len(t, res.Info, 1)
	assert.Equal(t, 7, res.Info[0].ID)
	require.Len(t, res.Info[0].Items, 2)
	assert.Equal(t, "ДиаКаталог", res.Info[0].Items[0].SourceName)

	require.NoError(t, run(t, &buf, "--no-color", "-c", cfg, "stats"))
	assert.Contains(t, buf.String(), "snapshot")
}

func TestNotifyServer(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/update_goods", r.URL.Path)
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	require.NoError(t, notifyServer(context.Background(), ts.URL+"/"))
	assert.Equal(t, 1, hits)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	assert.Error(t, notifyServer(context.Background(), failing.URL))
}

func TestSnapshotBehindLatestBatchIsRebuilt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(dir, "catalog.db"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	snap, err := snapshot.Open(filepath.Join(dir, "catalog.snapshot"))
	require.NoError(t, err)
	a := &app{logger: zerolog.Nop(), db: db, snap: snap}
	defer a.close()

	assert.Nil(t, a.snapshotGeneration(ctx), "no snapshot yet")

	ingestBatch := func(title string) int64 {
		batch, err := db.NextBatchID(ctx)
		require.NoError(t, err)
		require.NoError(t, db.InsertRaws(ctx, batch, []catalog.RawListing{
			{Title: title, SourceID: 1, Price: 100, ShipPrice: 100, Available: 1},
		}, nil))
		return batch
	}

	first := ingestBatch("Ланцеты Medlance")
	require.NoError(t, snap.Save(cachestore.NewGeneration(first, &catalog.Catalog{}, catalog.BuildStats{})))

	gen := a.snapshotGeneration(ctx)
	require.NotNil(t, gen)
	assert.Equal(t, first, gen.BatchID)

	ingestBatch("Ланцеты Medlance 200")
	assert.Nil(t, a.snapshotGeneration(ctx))

	catalogs := a.catalogStore()
	assert.False(t, a.restore(ctx, catalogs))
	assert.Nil(t, catalogs.Current())
}
