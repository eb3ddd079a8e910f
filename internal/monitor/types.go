package monitor

import (
	"context"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
)

// DefaultStoreID is used for subscribers with no tracked stores.
const DefaultStoreID = "113757"

// Config controls the periodic check loop.
type Config struct {
	Enabled  bool
	Schedule string

	DefaultStoreIDs []string
	Pace            time.Duration
	ProductTimeout  time.Duration
	Retention       time.Duration
	Timezone        string
}

// CatalogSource is what the monitor needs from the retailer API.
// *catalog.Client satisfies it; tests provide fakes.
type CatalogSource interface {
	ProductVariants(ctx context.Context, productID, storeID string) ([]catalog.Variant, error)
	StoreStock(ctx context.Context, variantID, storeID string) (status string, found bool, err error)
	StoreName(ctx context.Context, storeID string) string
	OnlineAvailability(ctx context.Context, productID string) (catalog.OnlineAvailability, error)
}

// Publisher delivers a sale alert for a product. Delivery is
// best-effort; errors are logged and never unwind a check.
type Publisher interface {
	PublishSale(ctx context.Context, product storage.Product, state engine.SaleState) error
}

// Outcome classifies a finished product check.
type Outcome string

const (
	OutcomeNoData     Outcome = "no_data"
	OutcomeOutOfStock Outcome = "out_of_stock"
	OutcomeNoSale     Outcome = "no_sale"
	OutcomeSaleEnded  Outcome = "sale_ended"
	OutcomeNotified   Outcome = "notified"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeError      Outcome = "error"
)

// CheckResult reports one product check.
type CheckResult struct {
	Product storage.Product
	Outcome Outcome
	Reason  engine.Reason
	State   engine.SaleState

	StoresChecked int
	StoresFailed  int
	Online        *catalog.OnlineAvailability
	Err           error
}

// Snapshot is a point-in-time view for /status.
type Snapshot struct {
	Enabled      bool
	Schedule     string
	Running      bool
	LastRunAt    time.Time
	LastDuration time.Duration
	LastChecked  int
	LastNotified int
	LastFailed   int
}
