package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

const dayFormat = "2006-01-02"

// Policy throttles sale notifications per product:
// at most one per day, at most three consecutive days at the same
// price, with a price drop overriding the three-day cap.
type Policy struct {
	store storage.Store
	log   logx.Logger

	loc *time.Location
	now func() time.Time // injectable for tests
}

func NewPolicy(store storage.Store, loc *time.Location, log logx.Logger) *Policy {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Policy{store: store, log: log, loc: loc, now: time.Now}
}

func (p *Policy) today() (today, yesterday string) {
	n := p.now().In(p.loc)
	return n.Format(dayFormat), n.AddDate(0, 0, -1).Format(dayFormat)
}

// ShouldNotify decides whether to notify for the product at the given
// promo price. isNewSale false short-circuits every other rule.
func (p *Policy) ShouldNotify(ctx context.Context, productID int64, price int64, isNewSale bool) (bool, Reason, error) {
	if !isNewSale {
		return false, ReasonNotNewSale, nil
	}

	rec, found, err := p.store.GetLedger(ctx, productID)
	if err != nil {
		return false, "", fmt.Errorf("throttle: read ledger: %w", err)
	}

	today, yesterday := p.today()
	ok, reason := decide(rec, found, price, today, yesterday)
	p.log.Debug("throttle decision",
		logx.Int64("product_id", productID),
		logx.Int64("price", price),
		logx.Bool("notify", ok),
		logx.String("reason", string(reason)),
	)
	return ok, reason, nil
}

// decide is the pure core of the policy; rules apply in order.
func decide(rec storage.LedgerRecord, found bool, price int64, today, yesterday string) (bool, Reason) {
	if !found {
		return true, ReasonFirstNotification
	}
	if rec.NotifiedOn == today {
		return false, ReasonAlreadyNotifiedToday
	}
	if rec.NotifiedOn != yesterday {
		// A gap day resets the run.
		return true, ReasonNewSaleAfterGap
	}

	if rec.ConsecutiveDays >= 3 {
		switch {
		case price == rec.LastPrice:
			return false, ReasonMax3DaysSamePrice
		case price < rec.LastPrice:
			return true, ReasonPriceDroppedReset
		default:
			return false, ReasonMax3DaysReached
		}
	}

	switch {
	case price == rec.LastPrice:
		return true, ReasonSamePriceContinue
	case price < rec.LastPrice:
		return true, ReasonPriceDroppedReset
	default:
		return false, ReasonPriceIncreased
	}
}

// RecordNotification marks the product as notified today at price.
// The consecutive-day counter is re-derived from stored state at write
// time: it continues a run only when yesterday's notification used the
// same price, and restarts at 1 otherwise.
func (p *Policy) RecordNotification(ctx context.Context, productID int64, price int64) error {
	rec, found, err := p.store.GetLedger(ctx, productID)
	if err != nil {
		return fmt.Errorf("throttle: read ledger: %w", err)
	}

	today, yesterday := p.today()
	days := 1
	if found && rec.NotifiedOn == yesterday && rec.LastPrice == price {
		days = rec.ConsecutiveDays + 1
	}

	return p.store.PutLedger(ctx, storage.LedgerRecord{
		ProductID:       productID,
		NotifiedOn:      today,
		LastPrice:       price,
		ConsecutiveDays: days,
	})
}

// OnSaleEnded clears the product's ledger row so the next sale starts a
// fresh notification cycle.
func (p *Policy) OnSaleEnded(ctx context.Context, productID int64) error {
	return p.store.DeleteLedger(ctx, productID)
}
