package adapter

import "time"

// Config carries the few knobs the Telegram adapter needs.
// It is mapped from the app-level telegram config section.
type Config struct {
	Token       string
	PollTimeout time.Duration
}
