package catalog

import (
	"errors"
	"time"
)

// DefaultBaseURL is the Uniqlo ID commerce API root.
const DefaultBaseURL = "https://www.uniqlo.com/id/api/commerce/v5/id"

// ErrNoData means the API answered but carried no usable result
// (non-ok envelope status, missing result, unknown product).
var ErrNoData = errors.New("catalog: no data")

// Stock status codes as the API reports them.
const (
	StockInStock    = "IN_STOCK"
	StockLowStock   = "LOW_STOCK"
	StockOutOfStock = "OUT_OF_STOCK"
	StockUnknown    = "UNKNOWN"
)

// Config configures the API client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSec     int
}

// Variant is one sellable product variant (size x color), joined from
// the l2s/prices/stocks sections of the API response.
// Prices are rupiah values as the API reports them.
type Variant struct {
	ID          string // l2Id
	SizeCode    string
	SizeName    string
	ColorCode   string
	BasePrice   int64
	PromoPrice  int64
	OnSale      bool
	StockStatus string
	StockQty    int

	// Store context the variant was fetched for ("" for online).
	StoreID   string
	StoreName string
}

// Available reports whether the variant can actually be bought:
// positive quantity AND an in-stock-ish status. Unknown status or zero
// quantity means unavailable.
func (v Variant) Available() bool {
	if v.StockQty <= 0 {
		return false
	}
	return v.StockStatus == StockInStock || v.StockStatus == StockLowStock
}

// OnlineAvailability summarizes the online channel for a product.
type OnlineAvailability struct {
	Available    bool
	VariantCount int
	Sizes        []string
}
