package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks fields that can only be verified after decoding.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("settings: nil config")
	}
	tick, err := ParseDurationField("scheduler.tick", cfg.Scheduler.Tick)
	if err != nil {
		return err
	}
	if tick > 0 && tick >= time.Minute {
		return fmt.Errorf("scheduler.tick: %s would skip whole minutes, must be < 1m", tick)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("runner.timeout", cfg.Runner.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if d := cfg.Delivery; d != nil && d.Telegram.Enabled {
		if strings.TrimSpace(d.Telegram.Token) == "" {
			return fmt.Errorf("delivery.telegram.token: required when enabled")
		}
		if d.Telegram.ChatID == 0 {
			return fmt.Errorf("delivery.telegram.chat_id: required when enabled")
		}
		if _, err := ParseDurationField("delivery.telegram.timeout", d.Telegram.Timeout); err != nil {
			return err
		}
	}
	return nil
}
