package config

import (
	"fmt"
	"strings"
	"time"

	"promobot/internal/scheduler"
	logx "promobot/pkg/logx"
)

// Validate checks a defaulted config and returns the first problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvToken)
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); err != nil {
		return err
	}

	if len(cfg.Destinations) == 0 {
		return fmt.Errorf("at least one destination is required (or set %s / %s)", EnvChannel, EnvGroup)
	}
	seen := make(map[string]struct{}, len(cfg.Destinations))
	for i, d := range cfg.Destinations {
		key := strings.ToLower(d.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("destinations[%d]: duplicate name %q", i, d.Name)
		}
		seen[key] = struct{}{}
		if _, _, err := d.Chat.Resolve(); err != nil {
			return fmt.Errorf("destinations[%d] (%s): %w", i, d.Name, err)
		}
		if d.ThreadID < 0 {
			return fmt.Errorf("destinations[%d] (%s): thread_id must be >= 0", i, d.Name)
		}
	}

	if strings.TrimSpace(cfg.Message.Text) == "" {
		return fmt.Errorf("message.text is empty")
	}
	switch cfg.Message.ParseMode {
	case "Markdown", "MarkdownV2", "HTML", "none":
	default:
		return fmt.Errorf("message.parse_mode %q not supported (Markdown, MarkdownV2, HTML, none)", cfg.Message.ParseMode)
	}
	if len(cfg.Trigger.Keywords) == 0 {
		return fmt.Errorf("trigger.keywords is empty")
	}

	if _, _, err := scheduler.ParseTrigger(cfg.Scheduler.At); err != nil {
		return fmt.Errorf("scheduler.at: %w", err)
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("scheduler.check_interval", cfg.Scheduler.CheckInterval, 0); err != nil {
		return err
	}

	if cfg.Dispatch.RatePerSec < 0 || cfg.Dispatch.Burst < 0 {
		return fmt.Errorf("dispatch.rate_per_sec and dispatch.burst must be >= 0")
	}
	if _, err := ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 0); err != nil {
		return err
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level %q is invalid", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path is required when file logging is enabled")
	}
	if t := cfg.Logging.Telegram; t.Enabled {
		if t.ChatID == 0 {
			return fmt.Errorf("logging.telegram.chat_id is required when telegram logging is enabled")
		}
		if t.MinLevel != "" && !logx.ValidLevel(t.MinLevel) {
			return fmt.Errorf("logging.telegram.min_level %q is invalid", t.MinLevel)
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required for the sqlite driver")
			}
		default:
			return fmt.Errorf("storage.driver %q not supported (sqlite, memory)", s.Driver)
		}
		if _, err := ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, 0); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the scheduler timezone; empty means process local time.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone %q: %w", tz, err)
	}
	return loc, nil
}
