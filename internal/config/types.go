package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	Storage StorageConfig `json:"storage"`

	// Catalog configures the retailer API client.
	Catalog CatalogConfig `json:"catalog"`

	// Monitor controls the periodic sale-check loop.
	Monitor MonitorConfig `json:"monitor"`

	// Notifier controls the async notification pipeline.
	// If the whole section is omitted, the notifier defaults to enabled=true.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Debug holds operator-only tooling. Off by default.
	Debug DebugConfig `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./uniqlo-sale-notifier.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CatalogConfig configures the Uniqlo commerce API client.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type CatalogConfig struct {
	// BaseURL of the commerce API. Defaults to the Uniqlo ID endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// RequestTimeout bounds each API call. Default "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// RatePerSec paces outbound API calls. Default 2.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// MonitorConfig controls the periodic sale-check loop.
//
// Schedule accepts a cron spec ("cron:*/30 * * * *" or "@hourly"), a
// bare interval ("30m"), or an HH:MM interval ("02:30").
type MonitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`

	// DefaultStoreIDs are checked for subscribers with no tracked stores.
	DefaultStoreIDs []string `json:"default_store_ids,omitempty"`

	// Pace is the delay between consecutive product checks. Default "2s".
	Pace string `json:"pace,omitempty"`

	// ProductTimeout bounds a single product check. Default "60s".
	ProductTimeout string `json:"product_timeout,omitempty"`

	// Retention prunes observation batches older than this. Default "720h".
	// Use "0s" to disable pruning.
	Retention string `json:"retention,omitempty"`

	// Timezone used for notification-day boundaries and cron triggers.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

type DebugConfig struct {
	Pprof PprofConfig `json:"pprof,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server. Binding to a
// non-loopback address requires a token or allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
