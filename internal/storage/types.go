package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")

	// ErrExists reports a unique-constraint violation (e.g. adding the
	// same product URL twice for one chat).
	ErrExists = errors.New("already exists")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc, CGO-free)
//
// If Driver is empty or "none", storage is disabled. The app requires
// a working store at startup, so disabled storage is a startup error
// there; the constant exists for tooling that opens stores directly.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Product is a tracked catalog item for one subscriber chat.
type Product struct {
	ID        int64
	ChatID    int64
	URL       string
	CatalogID string // retailer product code, e.g. "E459388-000"
	Name      string
	CreatedAt time.Time
}

// Stock status codes as stored. These mirror the retailer's status
// vocabulary; anything unrecognized is stored as "UNKNOWN".
const (
	StockInStock    = "IN_STOCK"
	StockLowStock   = "LOW_STOCK"
	StockOutOfStock = "OUT_OF_STOCK"
	StockUnknown    = "UNKNOWN"
)

// Observation is one variant snapshot inside a batch.
// Prices are in minor currency units (IDR has none, so rupiah as-is).
type Observation struct {
	VariantID   string
	SizeCode    string
	SizeName    string
	ColorCode   string
	StoreID     string
	StoreName   string
	BasePrice   int64
	PromoPrice  int64
	OnSale      bool
	StockStatus string
	StockQty    int
}

// LedgerRecord is the per-product notification throttle state.
// NotifiedOn is a local date in "2006-01-02" form.
type LedgerRecord struct {
	ProductID       int64
	NotifiedOn      string
	LastPrice       int64
	ConsecutiveDays int
}

// TrackedStore is a subscriber's preferred physical store.
type TrackedStore struct {
	ChatID    int64
	StoreID   string
	StoreName string
	AddedAt   time.Time
}

// AuditEntry records a subscriber or operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	ThreadID      int
	Action        string
	Target        string
	OK            int
	Fail          int
	Error         string
	TookMS        int64
	MetaJSON      string
}
