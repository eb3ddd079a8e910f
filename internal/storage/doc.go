package storage

// Package storage provides the persistence layer used by the bot.
//
// It holds:
//   - Tracked products per subscriber chat
//   - Append-only observation batches (variant price/stock snapshots)
//   - The notification ledger (one row per product)
//   - Tracked stores per subscriber chat
//   - Audit log appends (subscriber actions)
//   - Optional notifier dedup state (to survive restarts)
