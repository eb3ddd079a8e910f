package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"

// Client talks to the retailer's commerce API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	nameMu     sync.Mutex
	storeNames map[string]string
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL:    base,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		log:        log,
		storeNames: map[string]string{},
	}
}

// envelope is the API's uniform response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

type l2Entry struct {
	L2ID  string `json:"l2Id"`
	Sales bool   `json:"sales"`
	Color struct {
		DisplayCode string `json:"displayCode"`
	} `json:"color"`
	Size struct {
		DisplayCode string `json:"displayCode"`
		SizeCode    string `json:"sizeCode"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"size"`
}

type priceEntry struct {
	Base struct {
		Value int64 `json:"value"`
	} `json:"base"`
	Promo struct {
		Value int64 `json:"value"`
	} `json:"promo"`
}

type stockEntry struct {
	StatusCode string `json:"statusCode"`
	Quantity   int    `json:"quantity"`
}

type l2sResult struct {
	L2s    []l2Entry             `json:"l2s"`
	Prices map[string]priceEntry `json:"prices"`
	Stocks map[string]stockEntry `json:"stocks"`
}

func (c *Client) getResult(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Fr-Clientid", "uq.id.web-spa")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("catalog: %s: http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("catalog: %s: decode: %w", path, err)
	}
	if env.Status != "ok" || len(env.Result) == 0 {
		return ErrNoData
	}
	return json.Unmarshal(env.Result, out)
}

// ProductVariants fetches all variants of a product with prices and
// stocks for one store. An empty storeID queries the online channel.
func (c *Client) ProductVariants(ctx context.Context, productID, storeID string) ([]Variant, error) {
	params := url.Values{
		"withPrices":           {"true"},
		"withStocks":           {"true"},
		"includePreviousPrice": {"false"},
		"httpFailure":          {"true"},
	}
	if storeID != "" {
		params.Set("storeId", storeID)
	}

	var res l2sResult
	if err := c.getResult(ctx, "/products/"+productID+"/price-groups/00/l2s", params, &res); err != nil {
		return nil, err
	}

	storeName := ""
	if storeID != "" {
		storeName = c.cachedStoreName(storeID)
	}
	return parseVariants(res, storeID, storeName), nil
}

func parseVariants(res l2sResult, storeID, storeName string) []Variant {
	out := make([]Variant, 0, len(res.L2s))
	for _, l2 := range res.L2s {
		if l2.L2ID == "" {
			continue
		}
		code := normalizeSizeCode(l2.Size.DisplayCode, l2.Size.SizeCode)
		name := l2.Size.Name
		if name == "" {
			name = l2.Size.DisplayName
		}
		if name == "" {
			name = SizeName(code)
		}

		v := Variant{
			ID:        l2.L2ID,
			SizeCode:  code,
			SizeName:  name,
			ColorCode: l2.Color.DisplayCode,
			OnSale:    l2.Sales,
			StoreID:   storeID,
			StoreName: storeName,
		}

		if p, ok := res.Prices[l2.L2ID]; ok {
			v.BasePrice = p.Base.Value
			if l2.Sales {
				v.PromoPrice = p.Promo.Value
			} else {
				v.PromoPrice = p.Base.Value
			}
		}

		if st, ok := res.Stocks[l2.L2ID]; ok {
			v.StockStatus = st.StatusCode
			v.StockQty = st.Quantity
		}
		if v.StockStatus == "" {
			v.StockStatus = StockUnknown
		}

		out = append(out, v)
	}
	return out
}

// StoreStock asks the store-selection endpoint for one variant's stock
// at one physical store. found is false when the store is absent from
// the answer (inconclusive; callers should trust the generic result).
func (c *Client) StoreStock(ctx context.Context, variantID, storeID string) (status string, found bool, err error) {
	params := url.Values{
		"unit":        {"km"},
		"priceGroup":  {"00"},
		"limit":       {"50"},
		"httpFailure": {"true"},
	}

	var res struct {
		Stores []struct {
			StoreID       string `json:"storeId"`
			G1ImsStoreID6 string `json:"g1ImsStoreId6"`
			StoreName     string `json:"storeName"`
			StockStatus   string `json:"stockStatus"`
		} `json:"stores"`
	}
	if err := c.getResult(ctx, "/l2s/"+variantID+"/stores", params, &res); err != nil {
		return "", false, err
	}

	for _, s := range res.Stores {
		id := s.StoreID
		if id == "" {
			id = s.G1ImsStoreID6
		}
		if id != storeID {
			continue
		}
		st := s.StockStatus
		if st == "" {
			st = StockOutOfStock
		}
		return st, true, nil
	}
	return "", false, nil
}

// StoreName resolves a store id to its display name, with an in-memory
// cache and a "Uniqlo" fallback when the lookup fails.
func (c *Client) StoreName(ctx context.Context, storeID string) string {
	if storeID == "" {
		return "Uniqlo"
	}
	c.nameMu.Lock()
	if name, ok := c.storeNames[storeID]; ok {
		c.nameMu.Unlock()
		return name
	}
	c.nameMu.Unlock()

	params := url.Values{
		"includeClosed": {"false"},
		"httpFailure":   {"true"},
	}
	var res struct {
		Name      string `json:"name"`
		StoreName string `json:"storeName"`
	}
	if err := c.getResult(ctx, "/stores/"+storeID, params, &res); err != nil {
		c.log.Debug("store name lookup failed", logx.String("store_id", storeID), logx.Err(err))
		return "Uniqlo"
	}
	name := res.Name
	if name == "" {
		name = res.StoreName
	}
	if name == "" {
		return "Uniqlo"
	}

	c.nameMu.Lock()
	c.storeNames[storeID] = name
	c.nameMu.Unlock()
	return name
}

func (c *Client) cachedStoreName(storeID string) string {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	if name, ok := c.storeNames[storeID]; ok {
		return name
	}
	return ""
}

// OnlineAvailability checks the online channel (no storeId) and lists
// available size labels.
func (c *Client) OnlineAvailability(ctx context.Context, productID string) (OnlineAvailability, error) {
	variants, err := c.ProductVariants(ctx, productID, "")
	if err != nil {
		return OnlineAvailability{}, err
	}

	var out OnlineAvailability
	for _, v := range variants {
		if !v.Available() {
			continue
		}
		out.VariantCount++
		out.Sizes = append(out.Sizes, v.SizeName)
	}
	out.Available = out.VariantCount > 0
	return out, nil
}
