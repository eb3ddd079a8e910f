// Package bot routes Telegram updates to the product-tracking commands.
//
// Updates come in on a channel from the transport adapter. A bounded
// worker pool executes handlers behind a small middleware chain
// (panic recovery, request logging, per-command timeout). Inline
// button callbacks are routed by "scope:action:payload" data.
package bot
