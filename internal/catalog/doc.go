// Package catalog implements the Uniqlo Indonesia commerce API client.
//
// The client wraps four read-only endpoints:
//   - product variants with prices and stocks (per store or online)
//   - store-specific stock for one variant
//   - store info (name lookup)
//   - product page scraping for display names
//
// All calls are context-bounded and paced by a shared rate limiter.
package catalog
