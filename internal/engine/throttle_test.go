package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	const (
		today     = "2026-08-29"
		yesterday = "2026-08-28"
	)
	rec := func(on string, price int64, days int) storage.LedgerRecord {
		return storage.LedgerRecord{ProductID: 1, NotifiedOn: on, LastPrice: price, ConsecutiveDays: days}
	}

	tests := []struct {
		name   string
		rec    storage.LedgerRecord
		found  bool
		price  int64
		notify bool
		reason Reason
	}{
		{name: "first notification", found: false, price: 200000, notify: true, reason: ReasonFirstNotification},
		{name: "already notified today", rec: rec(today, 200000, 1), found: true, price: 200000, notify: false, reason: ReasonAlreadyNotifiedToday},
		{name: "gap day resets", rec: rec("2026-08-25", 200000, 3), found: true, price: 200000, notify: true, reason: ReasonNewSaleAfterGap},
		{name: "same price day 2", rec: rec(yesterday, 200000, 1), found: true, price: 200000, notify: true, reason: ReasonSamePriceContinue},
		{name: "same price day 3", rec: rec(yesterday, 200000, 2), found: true, price: 200000, notify: true, reason: ReasonSamePriceContinue},
		{name: "same price day 4 capped", rec: rec(yesterday, 200000, 3), found: true, price: 200000, notify: false, reason: ReasonMax3DaysSamePrice},
		{name: "price drop under cap", rec: rec(yesterday, 200000, 2), found: true, price: 150000, notify: true, reason: ReasonPriceDroppedReset},
		{name: "price drop overrides cap", rec: rec(yesterday, 200000, 3), found: true, price: 150000, notify: true, reason: ReasonPriceDroppedReset},
		{name: "price increase under cap", rec: rec(yesterday, 200000, 2), found: true, price: 250000, notify: false, reason: ReasonPriceIncreased},
		{name: "price increase at cap", rec: rec(yesterday, 200000, 3), found: true, price: 250000, notify: false, reason: ReasonMax3DaysReached},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			notify, reason := decide(tt.rec, tt.found, tt.price, today, yesterday)
			if notify != tt.notify {
				t.Fatalf("notify = %v, want %v", notify, tt.notify)
			}
			if reason != tt.reason {
				t.Fatalf("reason = %s, want %s", reason, tt.reason)
			}
		})
	}
}

// ledgerStore implements only the ledger slice of storage.Store.
type ledgerStore struct {
	storage.Store
	rec     storage.LedgerRecord
	found   bool
	put     *storage.LedgerRecord
	deleted []int64
}

func (s *ledgerStore) GetLedger(ctx context.Context, productID int64) (storage.LedgerRecord, bool, error) {
	return s.rec, s.found, nil
}

func (s *ledgerStore) PutLedger(ctx context.Context, rec storage.LedgerRecord) error {
	s.put = &rec
	return nil
}

func (s *ledgerStore) DeleteLedger(ctx context.Context, productID int64) error {
	s.deleted = append(s.deleted, productID)
	return nil
}

func policyAt(store storage.Store, at time.Time) *Policy {
	p := NewPolicy(store, time.UTC, nopLogger())
	p.now = func() time.Time { return at }
	return p
}

func TestShouldNotifyNotNewSale(t *testing.T) {
	t.Parallel()
	p := policyAt(&ledgerStore{}, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))

	ok, reason, err := p.ShouldNotify(context.Background(), 1, 200000, false)
	if err != nil {
		t.Fatalf("ShouldNotify error: %v", err)
	}
	if ok || reason != ReasonNotNewSale {
		t.Fatalf("got (%v, %s), want suppressed not_new_sale", ok, reason)
	}
}

func TestRecordNotificationContinuesRun(t *testing.T) {
	t.Parallel()
	st := &ledgerStore{
		rec:   storage.LedgerRecord{ProductID: 7, NotifiedOn: "2026-08-28", LastPrice: 200000, ConsecutiveDays: 2},
		found: true,
	}
	p := policyAt(st, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))

	if err := p.RecordNotification(context.Background(), 7, 200000); err != nil {
		t.Fatalf("RecordNotification error: %v", err)
	}
	if st.put == nil {
		t.Fatal("expected ledger write")
	}
	if st.put.ConsecutiveDays != 3 {
		t.Fatalf("ConsecutiveDays = %d, want 3", st.put.ConsecutiveDays)
	}
	if st.put.NotifiedOn != "2026-08-29" {
		t.Fatalf("NotifiedOn = %s, want 2026-08-29", st.put.NotifiedOn)
	}
}

func TestRecordNotificationRestartsOnPriceChange(t *testing.T) {
	t.Parallel()
	st := &ledgerStore{
		rec:   storage.LedgerRecord{ProductID: 7, NotifiedOn: "2026-08-28", LastPrice: 200000, ConsecutiveDays: 2},
		found: true,
	}
	p := policyAt(st, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))

	if err := p.RecordNotification(context.Background(), 7, 150000); err != nil {
		t.Fatalf("RecordNotification error: %v", err)
	}
	if st.put == nil || st.put.ConsecutiveDays != 1 {
		t.Fatalf("expected run restart at 1, got %+v", st.put)
	}
	if st.put.LastPrice != 150000 {
		t.Fatalf("LastPrice = %d, want 150000", st.put.LastPrice)
	}
}

func TestOnSaleEndedClearsLedger(t *testing.T) {
	t.Parallel()
	st := &ledgerStore{}
	p := policyAt(st, time.Now())

	if err := p.OnSaleEnded(context.Background(), 42); err != nil {
		t.Fatalf("OnSaleEnded error: %v", err)
	}
	if len(st.deleted) != 1 || st.deleted[0] != 42 {
		t.Fatalf("expected ledger delete for product 42, got %v", st.deleted)
	}
}
