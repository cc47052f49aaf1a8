// Package config loads, validates, and hot-reloads the bot configuration.
// JSON and YAML are both accepted; YAML is coerced to JSON so one strict
// decoder covers both.
package config

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`

	// Engine controls the recurring notification triggers.
	Engine EngineConfig `json:"engine"`

	// Notifier controls outbound delivery (retry budget, throttle).
	Notifier NotifierConfig `json:"notifier"`

	Storage      StorageConfig      `json:"storage"`
	Availability AvailabilityConfig `json:"availability"`
	HTTP         *HTTPConfig        `json:"http,omitempty"`
	Commands     CommandsConfig     `json:"commands"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	// Token may be left empty; the TELEGRAM_BOT_TOKEN environment variable
	// takes precedence either way so the secret can stay out of the file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// EngineConfig controls the trigger engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 10
//   - queue_size: 256
//   - timezone: "Asia/Kolkata"
//   - fire_timeout: "2m"
//   - reconcile_interval: "0s" (periodic resync disabled)
type EngineConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	// FireTimeout bounds one notification pass, delivery retries included.
	FireTimeout string `json:"fire_timeout,omitempty"`
	// ReconcileInterval re-runs the full preference sync on a timer.
	// "0s" disables it; startup reconcile always runs.
	ReconcileInterval string `json:"reconcile_interval,omitempty"`
}

// NotifierConfig controls outbound message delivery.
//
// Defaults: attempts 3, retry_delay "5s", rate_per_sec 3.
type NotifierConfig struct {
	Attempts   int    `json:"attempts,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type AvailabilityConfig struct {
	// URL serves the slot snapshot as a JSON array.
	URL string `json:"url"`
	// Timeout is a Go duration string for one snapshot fetch.
	Timeout string `json:"timeout,omitempty"`
}

// HTTPConfig controls the operational HTTP listener. Nil disables it.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type CommandsConfig struct {
	// SupportedSports bounds what add/change may introduce.
	SupportedSports []string `json:"supported_sports,omitempty"`
}
