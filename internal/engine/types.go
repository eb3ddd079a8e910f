package engine

import (
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
)

// SaleState is the detector's verdict for one product check.
type SaleState struct {
	HasSale   bool
	IsNewSale bool
	SaleEnded bool

	// SaleVariants are the current variants actually discounted
	// (flagged on sale AND base price above promo price).
	SaleVariants []catalog.Variant

	// LowestPromo is the cheapest promo price among SaleVariants
	// (0 when there is no sale).
	LowestPromo int64
}

// Reason explains a notify/suppress decision. The strings are stable;
// they appear in logs and operator output.
type Reason string

const (
	ReasonNotNewSale           Reason = "not_new_sale"
	ReasonFirstNotification    Reason = "first_notification"
	ReasonAlreadyNotifiedToday Reason = "already_notified_today"
	ReasonNewSaleAfterGap      Reason = "new_sale_after_gap"
	ReasonMax3DaysSamePrice    Reason = "max_3_days_same_price"
	ReasonPriceDroppedReset    Reason = "price_dropped_reset"
	ReasonMax3DaysReached      Reason = "max_3_days_reached"
	ReasonSamePriceContinue    Reason = "same_price_continue"
	ReasonPriceIncreased       Reason = "price_increased"
)
