package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

// memStore implements the slices of storage.Store the monitor path
// touches; everything else panics via the embedded nil interface.
type memStore struct {
	storage.Store

	batches []bool // anyOnSale per appended batch
	ledger  map[int64]storage.LedgerRecord
	stores  []storage.TrackedStore
}

func newMemStore() *memStore {
	return &memStore{ledger: map[int64]storage.LedgerRecord{}}
}

func (m *memStore) ListTrackedStores(ctx context.Context, chatID int64) ([]storage.TrackedStore, error) {
	return m.stores, nil
}

func (m *memStore) AppendObservations(ctx context.Context, productID int64, checkedAt time.Time, obs []storage.Observation) error {
	onSale := false
	for _, o := range obs {
		if o.OnSale && o.BasePrice > o.PromoPrice {
			onSale = true
		}
	}
	m.batches = append(m.batches, onSale)
	return nil
}

func (m *memStore) LatestBatchOnSale(ctx context.Context, productID int64) (bool, bool, error) {
	if len(m.batches) == 0 {
		return false, false, nil
	}
	return m.batches[len(m.batches)-1], true, nil
}

func (m *memStore) GetLedger(ctx context.Context, productID int64) (storage.LedgerRecord, bool, error) {
	rec, ok := m.ledger[productID]
	return rec, ok, nil
}

func (m *memStore) PutLedger(ctx context.Context, rec storage.LedgerRecord) error {
	m.ledger[rec.ProductID] = rec
	return nil
}

func (m *memStore) DeleteLedger(ctx context.Context, productID int64) error {
	delete(m.ledger, productID)
	return nil
}

type fakeCatalog struct {
	variants   []catalog.Variant
	fetchErr   error
	stockState string // StoreStock answer; "" means not found
	online     catalog.OnlineAvailability
}

func (f *fakeCatalog) ProductVariants(ctx context.Context, productID, storeID string) ([]catalog.Variant, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]catalog.Variant(nil), f.variants...), nil
}

func (f *fakeCatalog) StoreStock(ctx context.Context, variantID, storeID string) (string, bool, error) {
	if f.stockState == "" {
		return "", false, nil
	}
	return f.stockState, true, nil
}

func (f *fakeCatalog) StoreName(ctx context.Context, storeID string) string {
	return "UNIQLO Grand Indonesia"
}

func (f *fakeCatalog) OnlineAvailability(ctx context.Context, productID string) (catalog.OnlineAvailability, error) {
	return f.online, nil
}

type fakePublisher struct {
	calls int
	err   error
}

func (f *fakePublisher) PublishSale(ctx context.Context, p storage.Product, state engine.SaleState) error {
	f.calls++
	return f.err
}

func newTestService(st *memStore, api CatalogSource, pub Publisher) *Service {
	det := engine.NewDetector(st, logx.Nop())
	pol := engine.NewPolicy(st, time.UTC, logx.Nop())
	return New(Config{Enabled: true}, st, api, det, pol, pub, nil, logx.Nop())
}

func saleProduct() storage.Product {
	return storage.Product{ID: 1, ChatID: 42, CatalogID: "E479678-000", Name: "Kaos Oblong"}
}

func onSaleVariant() catalog.Variant {
	return catalog.Variant{
		ID: "L1", SizeCode: "003", SizeName: "S",
		BasePrice: 300000, PromoPrice: 200000, OnSale: true,
		StockStatus: catalog.StockInStock, StockQty: 5,
	}
}

func TestCheckProductNotifiesOnceThenSuppresses(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	api := &fakeCatalog{variants: []catalog.Variant{onSaleVariant()}, stockState: catalog.StockInStock}
	pub := &fakePublisher{}
	svc := newTestService(st, api, pub)
	ctx := context.Background()

	res := svc.CheckProduct(ctx, saleProduct())
	if res.Outcome != OutcomeNotified {
		t.Fatalf("first check outcome = %v (err %v), want notified", res.Outcome, res.Err)
	}
	if res.Reason != engine.ReasonFirstNotification {
		t.Fatalf("reason = %v, want first_notification", res.Reason)
	}
	if pub.calls != 1 {
		t.Fatalf("publisher called %d times, want 1", pub.calls)
	}

	rec, ok := st.ledger[1]
	if !ok {
		t.Fatal("ledger row missing after notification")
	}
	if rec.LastPrice != 200000 || rec.ConsecutiveDays != 1 {
		t.Fatalf("ledger = %+v", rec)
	}

	// Same sale again: the previous batch was on sale, so this is not a
	// new sale and no second alert goes out.
	res = svc.CheckProduct(ctx, saleProduct())
	if res.Outcome != OutcomeSuppressed {
		t.Fatalf("second check outcome = %v, want suppressed", res.Outcome)
	}
	if res.Reason != engine.ReasonNotNewSale {
		t.Fatalf("second reason = %v, want not_new_sale", res.Reason)
	}
	if pub.calls != 1 {
		t.Fatalf("publisher called %d times after re-check, want 1", pub.calls)
	}
}

func TestCheckProductSaleEndedClearsLedger(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.batches = []bool{true}
	st.ledger[1] = storage.LedgerRecord{ProductID: 1, NotifiedOn: "2026-08-28", LastPrice: 200000, ConsecutiveDays: 1}

	v := onSaleVariant()
	v.OnSale = false
	v.PromoPrice = v.BasePrice
	api := &fakeCatalog{variants: []catalog.Variant{v}, stockState: catalog.StockInStock}
	pub := &fakePublisher{}
	svc := newTestService(st, api, pub)

	res := svc.CheckProduct(context.Background(), saleProduct())
	if res.Outcome != OutcomeSaleEnded {
		t.Fatalf("outcome = %v, want sale_ended", res.Outcome)
	}
	if _, ok := st.ledger[1]; ok {
		t.Fatal("ledger row should be cleared when the sale ends")
	}
	if pub.calls != 0 {
		t.Fatal("no alert expected when a sale ends")
	}
}

func TestCheckProductStoreStockOverridesGeneric(t *testing.T) {
	t.Parallel()

	// Generic answer says in stock, but the store-selection endpoint is
	// conclusive about this store being sold out: the variant drops and
	// the check reports online availability instead.
	st := newMemStore()
	api := &fakeCatalog{
		variants:   []catalog.Variant{onSaleVariant()},
		stockState: catalog.StockOutOfStock,
		online:     catalog.OnlineAvailability{Available: true, VariantCount: 2, Sizes: []string{"S", "M"}},
	}
	pub := &fakePublisher{}
	svc := newTestService(st, api, pub)

	res := svc.CheckProduct(context.Background(), saleProduct())
	if res.Outcome != OutcomeOutOfStock {
		t.Fatalf("outcome = %v, want out_of_stock", res.Outcome)
	}
	if res.Online == nil || !res.Online.Available {
		t.Fatalf("online fallback missing: %+v", res.Online)
	}
	if pub.calls != 0 {
		t.Fatal("no alert expected for an out-of-stock store")
	}
	// The empty state was still persisted as a batch.
	if len(st.batches) != 1 || st.batches[0] {
		t.Fatalf("batches = %v, want one off-sale batch", st.batches)
	}
}

func TestCheckProductAllFetchesFailedMutatesNothing(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	api := &fakeCatalog{fetchErr: errors.New("boom")}
	pub := &fakePublisher{}
	svc := newTestService(st, api, pub)

	res := svc.CheckProduct(context.Background(), saleProduct())
	if res.Outcome != OutcomeNoData {
		t.Fatalf("outcome = %v, want no_data", res.Outcome)
	}
	if res.StoresFailed != res.StoresChecked || res.StoresFailed == 0 {
		t.Fatalf("stores checked/failed = %d/%d", res.StoresChecked, res.StoresFailed)
	}
	if len(st.batches) != 0 {
		t.Fatal("no batch may be written when every fetch fails")
	}
	if pub.calls != 0 {
		t.Fatal("no alert expected on fetch failure")
	}
}

func TestCheckProductLedgerSurvivesDispatchFailure(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	api := &fakeCatalog{variants: []catalog.Variant{onSaleVariant()}, stockState: catalog.StockInStock}
	pub := &fakePublisher{err: errors.New("telegram down")}
	svc := newTestService(st, api, pub)

	res := svc.CheckProduct(context.Background(), saleProduct())
	if res.Outcome != OutcomeNotified {
		t.Fatalf("outcome = %v, want notified", res.Outcome)
	}
	if _, ok := st.ledger[1]; !ok {
		t.Fatal("ledger must be written even when dispatch fails")
	}
}

func TestStoresForFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	svc := newTestService(st, &fakeCatalog{}, &fakePublisher{})
	ctx := context.Background()

	ids := svc.storesFor(ctx, 42)
	if len(ids) != 1 || ids[0] != DefaultStoreID {
		t.Fatalf("default stores = %v", ids)
	}

	st.stores = []storage.TrackedStore{{ChatID: 42, StoreID: "102893"}, {ChatID: 42, StoreID: "113757"}}
	ids = svc.storesFor(ctx, 42)
	if len(ids) != 2 || ids[0] != "102893" {
		t.Fatalf("tracked stores = %v", ids)
	}
}
