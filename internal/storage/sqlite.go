package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Products ----

func (s *sqliteStore) AddProduct(ctx context.Context, p Product) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products(chat_id, url, catalog_id, name, created_at) VALUES(?,?,?,?,?)`,
		p.ChatID, p.URL, p.CatalogID, p.Name, p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrExists
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetProduct(ctx context.Context, id int64) (Product, bool, error) {
	if s == nil || s.db == nil {
		return Product{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, url, catalog_id, name, created_at FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.listProducts(ctx, `SELECT id, chat_id, url, catalog_id, name, created_at FROM products ORDER BY id`)
}

func (s *sqliteStore) ListProductsByChat(ctx context.Context, chatID int64) ([]Product, error) {
	return s.listProducts(ctx,
		`SELECT id, chat_id, url, catalog_id, name, created_at FROM products WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *sqliteStore) listProducts(ctx context.Context, q string, args ...any) ([]Product, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanProduct(r rowScanner) (Product, error) {
	var p Product
	var createdAt string
	if err := r.Scan(&p.ID, &p.ChatID, &p.URL, &p.CatalogID, &p.Name, &createdAt); err != nil {
		return Product{}, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	return p, nil
}

func (s *sqliteStore) UpdateProductName(ctx context.Context, id int64, name string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `UPDATE products SET name = ? WHERE id = ?`, name, id)
	return err
}

// DeleteProduct removes the product with all of its observation history,
// batches and ledger state.
func (s *sqliteStore) DeleteProduct(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM observations WHERE product_id = ?`,
		`DELETE FROM observation_batches WHERE product_id = ?`,
		`DELETE FROM notify_ledger WHERE product_id = ?`,
		`DELETE FROM products WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- Observations ----

// AppendObservations persists one batch at checkedAt. An empty obs slice
// still records the batch row so was-on-sale checks see the empty state.
func (s *sqliteStore) AppendObservations(ctx context.Context, productID int64, checkedAt time.Time, obs []Observation) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO observation_batches(product_id, checked_at) VALUES(?,?)`,
		productID, checkedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, o := range obs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO observations(batch_id, product_id, variant_id, size_code, size_name, color_code,
			                          store_id, store_name, base_price, promo_price, on_sale, stock_status, stock_qty)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			batchID, productID, o.VariantID, o.SizeCode, o.SizeName, o.ColorCode,
			o.StoreID, o.StoreName, o.BasePrice, o.PromoPrice, boolInt(o.OnSale), o.StockStatus, o.StockQty,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestBatchOnSale reports whether the most recent persisted batch for
// the product contained any on-sale observation. found is false when the
// product has no batches at all.
func (s *sqliteStore) LatestBatchOnSale(ctx context.Context, productID int64) (bool, bool, error) {
	if s == nil || s.db == nil {
		return false, false, ErrDisabled
	}
	var batchID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM observation_batches WHERE product_id = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		productID,
	).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE batch_id = ? AND on_sale = 1`, batchID,
	).Scan(&n)
	if err != nil {
		return false, false, err
	}
	return n > 0, true, nil
}

// PruneObservations drops batches (and their rows) checked before olderThan.
func (s *sqliteStore) PruneObservations(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cut := olderThan.Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM observations WHERE batch_id IN
		   (SELECT id FROM observation_batches WHERE checked_at < ?)`, cut); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM observation_batches WHERE checked_at < ?`, cut)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// ---- Notification ledger ----

func (s *sqliteStore) GetLedger(ctx context.Context, productID int64) (LedgerRecord, bool, error) {
	if s == nil || s.db == nil {
		return LedgerRecord{}, false, ErrDisabled
	}
	var rec LedgerRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, notified_on, last_price, consecutive_days FROM notify_ledger WHERE product_id = ?`,
		productID,
	).Scan(&rec.ProductID, &rec.NotifiedOn, &rec.LastPrice, &rec.ConsecutiveDays)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerRecord{}, false, nil
	}
	if err != nil {
		return LedgerRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) PutLedger(ctx context.Context, rec LedgerRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notify_ledger(product_id, notified_on, last_price, consecutive_days)
		 VALUES(?,?,?,?)
		 ON CONFLICT(product_id) DO UPDATE SET
		   notified_on=excluded.notified_on,
		   last_price=excluded.last_price,
		   consecutive_days=excluded.consecutive_days`,
		rec.ProductID, rec.NotifiedOn, rec.LastPrice, rec.ConsecutiveDays,
	)
	return err
}

func (s *sqliteStore) DeleteLedger(ctx context.Context, productID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM notify_ledger WHERE product_id = ?`, productID)
	return err
}

func (s *sqliteStore) ClearLedgerByChat(ctx context.Context, chatID int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notify_ledger WHERE product_id IN (SELECT id FROM products WHERE chat_id = ?)`,
		chatID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- Tracked stores ----

func (s *sqliteStore) AddTrackedStore(ctx context.Context, t TrackedStore) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_stores(chat_id, store_id, store_name, added_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id, store_id) DO UPDATE SET store_name=excluded.store_name`,
		t.ChatID, t.StoreID, t.StoreName, t.AddedAt.Format(time.RFC3339),
	)
	return err
}

func (s *sqliteStore) ListTrackedStores(ctx context.Context, chatID int64) ([]TrackedStore, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, store_id, store_name, added_at FROM tracked_stores WHERE chat_id = ? ORDER BY added_at, store_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedStore
	for rows.Next() {
		var t TrackedStore
		var addedAt string
		if err := rows.Scan(&t.ChatID, &t.StoreID, &t.StoreName, &addedAt); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339, addedAt); err == nil {
			t.AddedAt = ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteTrackedStore(ctx context.Context, chatID int64, storeID string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_stores WHERE chat_id = ? AND store_id = ?`, chatID, storeID)
	return err
}

// ---- Audit & dedup ----

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, thread_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID, e.ThreadID,
		e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpiredDedup(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpiredDedup(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
