package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

// batchStore implements the observation slice of storage.Store.
type batchStore struct {
	storage.Store
	wasOnSale bool
	hasBatch  bool

	appendedID int64
	appended   []storage.Observation
	appends    int
}

func (s *batchStore) LatestBatchOnSale(ctx context.Context, productID int64) (bool, bool, error) {
	return s.wasOnSale, s.hasBatch, nil
}

func (s *batchStore) AppendObservations(ctx context.Context, productID int64, checkedAt time.Time, obs []storage.Observation) error {
	s.appendedID = productID
	s.appended = obs
	s.appends++
	return nil
}

func saleVariant(id string, base, promo int64) catalog.Variant {
	return catalog.Variant{
		ID:          id,
		SizeCode:    "027",
		SizeName:    `27"`,
		BasePrice:   base,
		PromoPrice:  promo,
		OnSale:      true,
		StockStatus: catalog.StockInStock,
		StockQty:    5,
	}
}

func TestDetectFirstSale(t *testing.T) {
	t.Parallel()
	st := &batchStore{}
	d := NewDetector(st, nopLogger())

	current := []catalog.Variant{
		saleVariant("l2-1", 300000, 200000),
		saleVariant("l2-2", 300000, 180000),
		{ID: "l2-3", BasePrice: 300000, PromoPrice: 300000, StockStatus: catalog.StockInStock, StockQty: 2},
	}
	state, err := d.Detect(context.Background(), 1, time.Now(), current)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if !state.HasSale || !state.IsNewSale || state.SaleEnded {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.SaleVariants) != 2 {
		t.Fatalf("SaleVariants = %d, want 2", len(state.SaleVariants))
	}
	if state.LowestPromo != 180000 {
		t.Fatalf("LowestPromo = %d, want 180000", state.LowestPromo)
	}
	if len(st.appended) != 3 {
		t.Fatalf("appended %d observations, want 3", len(st.appended))
	}
}

func TestDetectContinuingSaleIsNotNew(t *testing.T) {
	t.Parallel()
	st := &batchStore{wasOnSale: true, hasBatch: true}
	d := NewDetector(st, nopLogger())

	state, err := d.Detect(context.Background(), 1, time.Now(), []catalog.Variant{saleVariant("l2-1", 300000, 200000)})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if !state.HasSale || state.IsNewSale {
		t.Fatalf("expected continuing sale, got %+v", state)
	}
}

func TestDetectSaleEnded(t *testing.T) {
	t.Parallel()
	st := &batchStore{wasOnSale: true, hasBatch: true}
	d := NewDetector(st, nopLogger())

	state, err := d.Detect(context.Background(), 1, time.Now(), []catalog.Variant{
		{ID: "l2-1", BasePrice: 300000, PromoPrice: 300000, StockStatus: catalog.StockInStock, StockQty: 1},
	})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if state.HasSale || !state.SaleEnded {
		t.Fatalf("expected sale ended, got %+v", state)
	}
}

func TestDetectPersistsEmptyBatch(t *testing.T) {
	t.Parallel()
	st := &batchStore{wasOnSale: true, hasBatch: true}
	d := NewDetector(st, nopLogger())

	state, err := d.Detect(context.Background(), 9, time.Now(), nil)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if !state.SaleEnded {
		t.Fatalf("expected sale ended on empty batch, got %+v", state)
	}
	if st.appends != 1 || st.appendedID != 9 {
		t.Fatal("expected the empty batch to be persisted")
	}
	if len(st.appended) != 0 {
		t.Fatalf("expected zero observations, got %d", len(st.appended))
	}
}

func TestDetectFlaggedWithoutDiscountIsNotSale(t *testing.T) {
	t.Parallel()
	st := &batchStore{}
	d := NewDetector(st, nopLogger())

	// sales flag set but promo equals base: not an actual discount
	v := saleVariant("l2-1", 200000, 200000)
	state, err := d.Detect(context.Background(), 1, time.Now(), []catalog.Variant{v})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if state.HasSale {
		t.Fatalf("expected no sale, got %+v", state)
	}
}
