package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

// Detector derives the sale state of a product from the current
// variants and the observation history.
type Detector struct {
	store storage.Store
	log   logx.Logger
}

func NewDetector(store storage.Store, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{store: store, log: log}
}

// Detect compares current variants against the most recent persisted
// batch and appends the new batch at now. The new batch is persisted
// unconditionally, including when current is empty; the empty batch is
// what lets the next check see a sale ending into out-of-stock.
//
// Callers must hold the product's check lock so batches never interleave.
func (d *Detector) Detect(ctx context.Context, productID int64, now time.Time, current []catalog.Variant) (SaleState, error) {
	wasOnSale, _, err := d.store.LatestBatchOnSale(ctx, productID)
	if err != nil {
		return SaleState{}, fmt.Errorf("detect: read last batch: %w", err)
	}

	var st SaleState
	for _, v := range current {
		if v.OnSale && v.BasePrice > v.PromoPrice {
			st.SaleVariants = append(st.SaleVariants, v)
			if st.LowestPromo == 0 || v.PromoPrice < st.LowestPromo {
				st.LowestPromo = v.PromoPrice
			}
		}
	}
	st.HasSale = len(st.SaleVariants) > 0
	st.IsNewSale = st.HasSale && !wasOnSale
	st.SaleEnded = wasOnSale && !st.HasSale

	obs := make([]storage.Observation, 0, len(current))
	for _, v := range current {
		obs = append(obs, toObservation(v))
	}
	if err := d.store.AppendObservations(ctx, productID, now, obs); err != nil {
		return SaleState{}, fmt.Errorf("detect: append batch: %w", err)
	}

	d.log.Debug("sale state",
		logx.Int64("product_id", productID),
		logx.Bool("has_sale", st.HasSale),
		logx.Bool("is_new_sale", st.IsNewSale),
		logx.Bool("sale_ended", st.SaleEnded),
		logx.Int("sale_variants", len(st.SaleVariants)),
		logx.Int64("lowest_promo", st.LowestPromo),
	)
	return st, nil
}

func toObservation(v catalog.Variant) storage.Observation {
	status := v.StockStatus
	switch status {
	case catalog.StockInStock, catalog.StockLowStock, catalog.StockOutOfStock:
	default:
		status = storage.StockUnknown
	}
	return storage.Observation{
		VariantID:   v.ID,
		SizeCode:    v.SizeCode,
		SizeName:    v.SizeName,
		ColorCode:   v.ColorCode,
		StoreID:     v.StoreID,
		StoreName:   v.StoreName,
		BasePrice:   v.BasePrice,
		PromoPrice:  v.PromoPrice,
		OnSale:      v.OnSale,
		StockStatus: status,
		StockQty:    v.StockQty,
	}
}
