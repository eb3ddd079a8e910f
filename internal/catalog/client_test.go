package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RatePerSec: 100}, logx.Nop())
}

func TestProductVariants(t *testing.T) {
	t.Parallel()

	var gotStoreID string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/E479678-000/price-groups/00/l2s" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotStoreID = r.URL.Query().Get("storeId")
		w.Write([]byte(`{
			"status": "ok",
			"result": {
				"l2s": [
					{"l2Id": "L1", "sales": true,
					 "color": {"displayCode": "09"},
					 "size": {"displayCode": "003", "name": "S"}},
					{"l2Id": "L2", "sales": false,
					 "color": {"displayCode": "09"},
					 "size": {"sizeCode": "INS027"}},
					{"l2Id": ""}
				],
				"prices": {
					"L1": {"base": {"value": 299000}, "promo": {"value": 199000}},
					"L2": {"base": {"value": 299000}, "promo": {"value": 199000}}
				},
				"stocks": {
					"L1": {"statusCode": "IN_STOCK", "quantity": 12}
				}
			}
		}`))
	}))

	variants, err := c.ProductVariants(context.Background(), "E479678-000", "113757")
	if err != nil {
		t.Fatalf("ProductVariants: %v", err)
	}
	if gotStoreID != "113757" {
		t.Fatalf("storeId param = %q, want %q", gotStoreID, "113757")
	}
	if len(variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(variants))
	}

	v1 := variants[0]
	if !v1.OnSale || v1.BasePrice != 299000 || v1.PromoPrice != 199000 {
		t.Fatalf("sale variant priced wrong: %+v", v1)
	}
	if v1.SizeCode != "003" || v1.SizeName != "S" {
		t.Fatalf("sale variant size wrong: %+v", v1)
	}
	if v1.StockStatus != StockInStock || v1.StockQty != 12 {
		t.Fatalf("sale variant stock wrong: %+v", v1)
	}
	if !v1.Available() {
		t.Fatal("in-stock variant should be available")
	}

	// Off-sale variants carry the base price as their promo price.
	v2 := variants[1]
	if v2.OnSale || v2.PromoPrice != 299000 {
		t.Fatalf("off-sale variant priced wrong: %+v", v2)
	}
	if v2.SizeCode != "027" || v2.SizeName != `27"` {
		t.Fatalf("fallback size code wrong: %+v", v2)
	}
	if v2.StockStatus != StockUnknown {
		t.Fatalf("missing stock entry should be UNKNOWN, got %q", v2.StockStatus)
	}
	if v2.Available() {
		t.Fatal("unknown-stock variant must not be available")
	}
}

func TestProductVariantsNoData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "non-ok envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "nok", "result": {}}`))
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "ok"}`))
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := testClient(t, tt.handler)
			_, err := c.ProductVariants(context.Background(), "E000000-000", "")
			if !errors.Is(err, ErrNoData) {
				t.Fatalf("err = %v, want ErrNoData", err)
			}
		})
	}
}

func TestStoreStock(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/l2s/L1/stores" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"status": "ok",
			"result": {
				"stores": [
					{"storeId": "113757", "storeName": "UNIQLO Grand Indonesia", "stockStatus": "LOW_STOCK"},
					{"g1ImsStoreId6": "102893", "storeName": "UNIQLO Kota Kasablanka", "stockStatus": ""}
				]
			}
		}`))
	}))

	status, found, err := c.StoreStock(context.Background(), "L1", "113757")
	if err != nil {
		t.Fatalf("StoreStock: %v", err)
	}
	if !found || status != StockLowStock {
		t.Fatalf("got (%q, %v), want (%q, true)", status, found, StockLowStock)
	}

	// Stores listed without a status count as out of stock, not unknown.
	status, found, err = c.StoreStock(context.Background(), "L1", "102893")
	if err != nil {
		t.Fatalf("StoreStock: %v", err)
	}
	if !found || status != StockOutOfStock {
		t.Fatalf("got (%q, %v), want (%q, true)", status, found, StockOutOfStock)
	}

	// A store missing from the answer is inconclusive.
	_, found, err = c.StoreStock(context.Background(), "L1", "999999")
	if err != nil {
		t.Fatalf("StoreStock: %v", err)
	}
	if found {
		t.Fatal("absent store should report found=false")
	}
}

func TestStoreNameCachesLookups(t *testing.T) {
	t.Parallel()

	calls := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status": "ok", "result": {"name": "UNIQLO Grand Indonesia"}}`))
	}))

	ctx := context.Background()
	if got := c.StoreName(ctx, "113757"); got != "UNIQLO Grand Indonesia" {
		t.Fatalf("StoreName = %q", got)
	}
	if got := c.StoreName(ctx, "113757"); got != "UNIQLO Grand Indonesia" {
		t.Fatalf("StoreName (cached) = %q", got)
	}
	if calls != 1 {
		t.Fatalf("lookup hit the API %d times, want 1", calls)
	}

	if got := c.StoreName(ctx, ""); got != "Uniqlo" {
		t.Fatalf("empty store id = %q, want fallback", got)
	}
}

func TestStoreNameFallsBackOnError(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if got := c.StoreName(context.Background(), "113757"); got != "Uniqlo" {
		t.Fatalf("StoreName on error = %q, want %q", got, "Uniqlo")
	}
}
