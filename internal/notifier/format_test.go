package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/catalog"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/engine"
	"github.com/ryanwhyr/uniqlo-sale-notifier/internal/storage"
)

func TestFormatRupiah(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "Rp 0"},
		{in: 500, want: "Rp 500"},
		{in: 1000, want: "Rp 1.000"},
		{in: 299000, want: "Rp 299.000"},
		{in: 1299000, want: "Rp 1.299.000"},
		{in: -50000, want: "Rp -50.000"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := FormatRupiah(tt.in); got != tt.want {
				t.Fatalf("FormatRupiah(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatSaleAlert(t *testing.T) {
	t.Parallel()

	p := storage.Product{
		ChatID:    42,
		URL:       "https://www.uniqlo.com/id/id/products/E479678-000/00",
		CatalogID: "E479678-000",
		Name:      "Kaos Oblong <Airism>",
	}
	state := engine.SaleState{
		HasSale:   true,
		IsNewSale: true,
		SaleVariants: []catalog.Variant{
			{ID: "L1", SizeName: "L", BasePrice: 300000, PromoPrice: 200000, OnSale: true, StoreName: "UNIQLO Grand Indonesia"},
			{ID: "L2", SizeName: "M", BasePrice: 300000, PromoPrice: 200000, OnSale: true, StoreName: "UNIQLO Grand Indonesia"},
			{ID: "L3", SizeName: "M", BasePrice: 300000, PromoPrice: 200000, OnSale: true, StoreName: "UNIQLO Grand Indonesia"},
		},
		LowestPromo: 200000,
	}
	now := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	got := FormatSaleAlert(p, state, now)

	wants := []string{
		"PRODUK SEDANG SALE!",
		`<a href="https://www.uniqlo.com/id/id/products/E479678-000/00">Kaos Oblong &lt;Airism&gt;</a>`,
		"Size Tersedia:</b> M, L",
		"Toko:</b> UNIQLO Grand Indonesia",
		"Harga Sebelum Sale:</b> Rp 300.000",
		"Harga Setelah Sale:</b> Rp 200.000",
		"Rp 100.000 (33%)",
		"29/08/2026 14:30",
	}
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Fatalf("alert missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(got, "<Airism>") {
		t.Fatalf("product name not escaped:\n%s", got)
	}
}

func TestFormatSaleAlertNoURLFallsBackToName(t *testing.T) {
	t.Parallel()

	p := storage.Product{ChatID: 42, CatalogID: "E459565-000"}
	state := engine.SaleState{
		HasSale: true,
		SaleVariants: []catalog.Variant{
			{ID: "L1", SizeName: "S", BasePrice: 199000, PromoPrice: 99000, OnSale: true, StoreName: "Uniqlo"},
		},
	}

	got := FormatSaleAlert(p, state, time.Now())
	if !strings.Contains(got, "<b>E459565-000</b>") {
		t.Fatalf("want bold catalog id fallback, got:\n%s", got)
	}
	if strings.Contains(got, "<a href") {
		t.Fatalf("no link expected without URL:\n%s", got)
	}
}
