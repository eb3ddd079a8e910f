package catalog

import "testing"

func TestVariantAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status string
		qty    int
		want   bool
	}{
		{name: "in stock", status: StockInStock, qty: 5, want: true},
		{name: "low stock", status: StockLowStock, qty: 1, want: true},
		{name: "in stock but zero qty", status: StockInStock, qty: 0},
		{name: "out of stock", status: StockOutOfStock, qty: 3},
		{name: "unknown status", status: StockUnknown, qty: 3},
		{name: "empty status", status: "", qty: 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := Variant{StockStatus: tt.status, StockQty: tt.qty}
			if got := v.Available(); got != tt.want {
				t.Fatalf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}
