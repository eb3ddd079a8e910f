package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

// Store is the persistence API used by the engine, monitor and bot.
type Store interface {
	// Products
	AddProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, bool, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListProductsByChat(ctx context.Context, chatID int64) ([]Product, error)
	UpdateProductName(ctx context.Context, id int64, name string) error
	DeleteProduct(ctx context.Context, id int64) error

	// Observations (append-only batches)
	AppendObservations(ctx context.Context, productID int64, checkedAt time.Time, obs []Observation) error
	LatestBatchOnSale(ctx context.Context, productID int64) (wasOnSale bool, found bool, err error)
	PruneObservations(ctx context.Context, olderThan time.Time) (int64, error)

	// Notification ledger
	GetLedger(ctx context.Context, productID int64) (LedgerRecord, bool, error)
	PutLedger(ctx context.Context, rec LedgerRecord) error
	DeleteLedger(ctx context.Context, productID int64) error
	ClearLedgerByChat(ctx context.Context, chatID int64) (int64, error)

	// Tracked stores
	AddTrackedStore(ctx context.Context, s TrackedStore) error
	ListTrackedStores(ctx context.Context, chatID int64) ([]TrackedStore, error)
	DeleteTrackedStore(ctx context.Context, chatID int64, storeID string) error

	// Ambient
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
