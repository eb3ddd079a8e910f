package catalog

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Product URLs look like /id/id/products/E479678-000/00; the API wants
// the full code with the color suffix (E479678-000).
var productIDRe = regexp.MustCompile(`/products/([A-Z0-9]+-\d{3})`)

// ExtractProductID pulls the catalog product code out of a product page URL.
func ExtractProductID(url string) (string, bool) {
	m := productIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FetchProductName scrapes the product page <title> for a display name.
// Best-effort: returns "" without error when the page has no usable title.
func (c *Client) FetchProductName(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog: product page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", nil
	}
	// Titles carry site suffixes like "... | UNIQLO ID".
	if i := strings.Index(title, "|"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	return title, nil
}
