package ingest

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callmeahab/catalog-search/internal/catalog"
	"github.com/callmeahab/catalog-search/internal/store"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestReadListings(t *testing.T) {
	in := strings.NewReader(`title,source_id,price,ship_price,url,available,observed_at
"Accu-Chek Active, 50",3,"1 234,50",,https://a.example/1,1,2024-02-01T10:00:00Z
Lancets,1,oops,120,https://b.example/2,0,1706781600
No date,2,10,10,,1,
`)
	raws, err := ReadListings(in, now)
	require.NoError(t, err)
	require.Len(t, raws, 3)

	assert.Equal(t, "Accu-Chek Active, 50", raws[0].Title)
	assert.Equal(t, 3, raws[0].SourceID)
	assert.InDelta(t, 1234.5, raws[0].Price, 1e-9)
	assert.Equal(t, 0.0, raws[0].ShipPrice)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), raws[0].ObservedAt)

	assert.True(t, math.IsNaN(raws[1].Price))
	assert.Equal(t, 0, raws[1].Available)
	assert.Equal(t, time.Unix(1706781600, 0).UTC(), raws[1].ObservedAt)

	assert.Equal(t, now, raws[2].ObservedAt)
}

func TestReadListingsRequiresColumns(t *testing.T) {
	_, err := ReadListings(strings.NewReader("title,price\nx,1\n"), now)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadListings(strings.NewReader(""), now)
	assert.Error(t, err)
}

func TestReadListingsBadSource(t *testing.T) {
	_, err := ReadListings(strings.NewReader("title,source_id\nx,abc\n"), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadGoodsMatchesSources(t *testing.T) {
	goods, err := ReadGoods(strings.NewReader("id,title,group_id,brand_id,brand_name\n7,Accu-Chek Active №50,2,3,Accu-Chek\n8,Lancets,,,\n"))
	require.NoError(t, err)
	assert.Equal(t, []GoodRecord{
		{ID: 7, Meta: catalog.GroupMeta{GroupName: "Accu-Chek Active №50", FilterGroupID: 2, BrandID: 3, BrandName: "Accu-Chek"}},
		{ID: 8, Meta: catalog.GroupMeta{GroupName: "Lancets", FilterGroupID: catalog.UncategorizedGroup}},
	}, goods)

	matches, err := ReadMatches(strings.NewReader("title,good_id\nAccu-Chek Active 50,7\n"))
	require.NoError(t, err)
	assert.Equal(t, []MatchRecord{{Title: "Accu-Chek Active 50", GoodID: 7}}, matches)

	sources, err := ReadSources(strings.NewReader("id,name\n1,МедМаг\n"))
	require.NoError(t, err)
	assert.Equal(t, []SourceRecord{{ID: 1, Name: "МедМаг"}}, sources)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "catalog.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestIngestListings(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	in := New(s, zerolog.Nop())

	n, err := in.Matches(ctx, []MatchRecord{{Title: "Accu-Chek Active 50", GoodID: 7}, {Title: " -- ", GoodID: 8}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := in.Listings(ctx, []catalog.RawListing{
		{Title: " Accu-Chek Active 50 ", SourceID: 3, Price: 900, Available: 1, ObservedAt: now},
		{Title: "", SourceID: 1, Price: 10, Available: 1, ObservedAt: now},
		{Title: "Unknown strips", SourceID: 1, Price: math.NaN(), ShipPrice: -1, Available: 7, ObservedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Batch: 1, Accepted: 2, Rejected: 1, Matched: 1}, res)

	batch, raws, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), batch)
	assert.Equal(t, []catalog.RawListing{
		{Title: "Accu-Chek Active 50", SourceID: 3, Price: 900, ShipPrice: 900, Available: 1, ObservedAt: now},
		{Title: "Unknown strips", SourceID: 1, Price: 0, ShipPrice: 0, Available: 0, ObservedAt: now},
	}, raws)
}

func TestIngestNothing(t *testing.T) {
	s := openStore(t)
	res, err := New(s, zerolog.Nop()).Listings(context.Background(), []catalog.RawListing{{Title: "  "}})
	require.NoError(t, err)
	assert.Equal(t, Result{Rejected: 1}, res)

	_, _, err = s.LatestBatch(context.Background())
	assert.True(t, errors.Is(err, store.ErrNoBatch))
}

func TestIngestGoodsAndSources(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	in := New(s, zerolog.Nop())

	require.NoError(t, in.Goods(ctx, []GoodRecord{{ID: 7, Meta: catalog.GroupMeta{GroupName: "Accu-Chek Active", FilterGroupID: 2, BrandID: 3, BrandName: "Accu-Chek"}}}))
	require.NoError(t, in.Sources(ctx, []SourceRecord{{ID: 3, Name: "ДиаКаталог"}}))

	meta, err := s.GroupMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Accu-Chek Active", meta[7].GroupName)

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{3: "ДиаКаталог"}, sources)
}
