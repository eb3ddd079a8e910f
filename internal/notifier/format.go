package notifier

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
	kit "github.com/ryanwhyr/uniqlo-sale-notifier/internal/transport"
	"github.com/ryanwhyr/uniqlo-sale-notifier/pkg/tgui"
)

// PublishSale formats one sale alert for the product's subscriber and
// enqueues it. One message per product per pass, regardless of how
// many sizes are on sale.
func (s *Service) PublishSale(ctx context.Context, p storage.Product, state engine.SaleState) error {
	if len(state.SaleVariants) == 0 {
		return nil
	}
	text := FormatSaleAlert(p, state, time.Now())
	// Priority 0: the alert carries its own heading, no severity prefix.
	return s.Notify(ctx, kit.Notification{
		Channel:  "telegram",
		Priority: 0,
		Target:   kit.ChatTarget{ChatID: p.ChatID},
		Text:     text,
		Options:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
}

// FormatSaleAlert renders the Indonesian sale message in Telegram HTML.
func FormatSaleAlert(p storage.Product, state engine.SaleState, now time.Time) string {
	first := state.SaleVariants[0]
	base := first.BasePrice
	promo := first.PromoPrice
	discount := base - promo
	percent := 0
	if base > 0 {
		percent = int(discount * 100 / base)
	}

	name := p.Name
	if name == "" {
		name = p.CatalogID
	}
	title := tgui.B(name)
	if p.URL != "" {
		title = "<b>" + tgui.Link(name, p.URL) + "</b>"
	}

	lines := []tgui.H{
		"🎉 " + tgui.B("PRODUK SEDANG SALE!"),
		"",
		"📦 " + title,
		"📏 " + tgui.B("Size Tersedia:") + " " + tgui.Esc(sizeList(state.SaleVariants)),
		"🏪 " + tgui.B("Toko:") + " " + tgui.Esc(first.StoreName),
		"",
		"💰 " + tgui.B("Harga Sebelum Sale:") + " " + tgui.Esc(FormatRupiah(base)),
		"🔥 " + tgui.B("Harga Setelah Sale:") + " " + tgui.Esc(FormatRupiah(promo)),
		"💸 " + tgui.B("Diskon:") + tgui.Esc(" "+FormatRupiah(discount)+" ("+strconv.Itoa(percent)+"%)"),
		"",
		"⏰ " + tgui.Esc(now.Format("02/01/2006 15:04")),
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}

// sizeList returns the distinct size names on sale, smallest first.
func sizeList(variants []catalog.Variant) string {
	seen := map[string]bool{}
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		n := v.SizeName
		if n == "" {
			n = v.SizeCode
		}
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := catalog.SizeSortKey(names[i]), catalog.SizeSortKey(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// FormatRupiah renders an IDR amount with dot thousand separators.
func FormatRupiah(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			b = append(b, '.')
		}
		b = append(b, c)
	}
	out := "Rp " + string(b)
	if neg {
		out = "Rp -" + string(b)
	}
	return out
}
