package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks everything that can be checked without touching the
// network: duration syntax, required fields, the trigger timezone.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"engine.fire_timeout", cfg.Engine.FireTimeout},
		{"engine.reconcile_interval", cfg.Engine.ReconcileInterval},
		{"notifier.retry_delay", cfg.Notifier.RetryDelay},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"availability.timeout", cfg.Availability.Timeout},
	}
	if cfg.HTTP != nil {
		durations = append(durations,
			struct{ path, raw string }{"http.read_timeout", cfg.HTTP.ReadTimeout},
			struct{ path, raw string }{"http.write_timeout", cfg.HTTP.WriteTimeout},
			struct{ path, raw string }{"http.idle_timeout", cfg.HTTP.IdleTimeout},
		)
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if strings.TrimSpace(cfg.Availability.URL) == "" {
		return fmt.Errorf("availability.url is required")
	}
	if cfg.HTTP != nil && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required when http is set")
	}
	if tz := strings.TrimSpace(cfg.Engine.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		switch strings.ToLower(lvl) {
		case "trace", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.level: unknown level %q", lvl)
		}
	}
	return nil
}
