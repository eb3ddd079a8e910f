// Package notifier delivers sale alerts and operator messages.
//
// Alerts flow through an async pipeline: a bounded queue feeds a small
// worker pool that rate-limits, retries with jittered backoff, and
// deduplicates sends within a configurable window. Delivery is
// delegated to a kit.Adapter so the formatting here stays independent
// of any particular messaging platform.
//
// PublishSale formats a sale state into the alert message that
// subscribers see and enqueues it for their chat.
package notifier
