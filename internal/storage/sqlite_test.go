package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}

	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
}

func TestProductLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.AddProduct(ctx, Product{
		ChatID:    42,
		URL:       "https://www.uniqlo.com/id/id/products/E479678-000/00",
		CatalogID: "E479678-000",
		Name:      "Kaos Oblong",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	// Same URL in the same chat is a duplicate.
	_, err = st.AddProduct(ctx, Product{
		ChatID:    42,
		URL:       "https://www.uniqlo.com/id/id/products/E479678-000/00",
		CatalogID: "E479678-000",
	})
	require.ErrorIs(t, err, ErrExists)

	// Another chat may track the same URL.
	_, err = st.AddProduct(ctx, Product{
		ChatID:    43,
		URL:       "https://www.uniqlo.com/id/id/products/E479678-000/00",
		CatalogID: "E479678-000",
	})
	require.NoError(t, err)

	p, ok, err := st.GetProduct(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Kaos Oblong", p.Name)
	require.Equal(t, int64(42), p.ChatID)

	require.NoError(t, st.UpdateProductName(ctx, id, "Kaos Oblong Airism"))
	p, _, err = st.GetProduct(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Kaos Oblong Airism", p.Name)

	byChat, err := st.ListProductsByChat(ctx, 42)
	require.NoError(t, err)
	require.Len(t, byChat, 1)

	all, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, st.DeleteProduct(ctx, id))
	_, ok, err = st.GetProduct(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestObservationBatches(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.AddProduct(ctx, Product{ChatID: 42, URL: "u1", CatalogID: "E459565-000"})
	require.NoError(t, err)

	_, found, err := st.LatestBatchOnSale(ctx, id)
	require.NoError(t, err)
	require.False(t, found)

	t0 := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendObservations(ctx, id, t0, []Observation{
		{VariantID: "L1", SizeCode: "003", OnSale: true, BasePrice: 300000, PromoPrice: 200000, StockStatus: StockInStock, StockQty: 5},
	}))

	onSale, found, err := st.LatestBatchOnSale(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, onSale)

	// A later batch without sale flips the answer.
	t1 := t0.Add(time.Hour)
	require.NoError(t, st.AppendObservations(ctx, id, t1, []Observation{
		{VariantID: "L1", SizeCode: "003", OnSale: false, BasePrice: 300000, PromoPrice: 300000, StockStatus: StockInStock, StockQty: 5},
	}))
	onSale, found, err = st.LatestBatchOnSale(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, onSale)

	// An empty batch still counts as the latest state.
	t2 := t1.Add(time.Hour)
	require.NoError(t, st.AppendObservations(ctx, id, t2, nil))
	_, found, err = st.LatestBatchOnSale(ctx, id)
	require.NoError(t, err)
	require.True(t, found)

	n, err := st.PruneObservations(ctx, t2)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	onSale, found, err = st.LatestBatchOnSale(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, onSale)
}

func TestLedger(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.AddProduct(ctx, Product{ChatID: 42, URL: "u1", CatalogID: "E459565-000"})
	require.NoError(t, err)

	_, ok, err := st.GetLedger(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	rec := LedgerRecord{ProductID: id, NotifiedOn: "2026-08-29", LastPrice: 199000, ConsecutiveDays: 1}
	require.NoError(t, st.PutLedger(ctx, rec))

	got, ok, err := st.GetLedger(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	// Upsert replaces the row.
	rec.ConsecutiveDays = 2
	require.NoError(t, st.PutLedger(ctx, rec))
	got, _, err = st.GetLedger(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, got.ConsecutiveDays)

	n, err := st.ClearLedgerByChat(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok, err = st.GetLedger(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.PutLedger(ctx, rec))
	require.NoError(t, st.DeleteLedger(ctx, id))
	_, ok, err = st.GetLedger(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrackedStores(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddTrackedStore(ctx, TrackedStore{ChatID: 42, StoreID: "113757", StoreName: "UNIQLO Grand Indonesia"}))
	// Re-adding refreshes the name instead of erroring.
	require.NoError(t, st.AddTrackedStore(ctx, TrackedStore{ChatID: 42, StoreID: "113757", StoreName: "UNIQLO Grand Indonesia Mall"}))
	require.NoError(t, st.AddTrackedStore(ctx, TrackedStore{ChatID: 42, StoreID: "102893", StoreName: "UNIQLO Kota Kasablanka"}))

	stores, err := st.ListTrackedStores(ctx, 42)
	require.NoError(t, err)
	require.Len(t, stores, 2)

	var names []string
	for _, s := range stores {
		names = append(names, s.StoreName)
	}
	require.Contains(t, names, "UNIQLO Grand Indonesia Mall")

	require.NoError(t, st.DeleteTrackedStore(ctx, 42, "113757"))
	stores, err = st.ListTrackedStores(ctx, 42)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	require.Equal(t, "102893", stores[0].StoreID)
}

func TestDedup(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	until := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, st.PutDedup(ctx, "k1", until))

	got, ok, err := st.GetDedup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, until.UnixMilli(), got.UnixMilli())

	_, ok, err = st.GetDedup(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	// Empty keys are ignored, not stored.
	require.NoError(t, st.PutDedup(ctx, "", until))
	_, ok, err = st.GetDedup(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	err := st.AppendAudit(context.Background(), AuditEntry{
		ActorID: 7, ActorUsername: "ryan", ChatID: 42,
		Action: "add", Target: "E479678-000", OK: 1, TookMS: 12,
	})
	require.NoError(t, err)
}
