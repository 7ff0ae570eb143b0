package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// Destinations is the ordered broadcast set (typically a channel and a group).
	Destinations []DestinationConfig `json:"destinations"`

	Message   MessageConfig   `json:"message"`
	Trigger   TriggerConfig   `json:"trigger"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// APIURL points at a self-hosted Bot API server. Empty uses api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
}

// DestinationConfig names one broadcast target.
//
// Example:
//
//	destinations:
//	  - { name: channel, chat: "@my_channel" }
//	  - { name: group, chat: -1001234567890 }
type DestinationConfig struct {
	Name     string  `json:"name"`
	Chat     ChatRef `json:"chat"`
	ThreadID int     `json:"thread_id,omitempty"`
}

// ChatRef is a numeric chat id or a public "@username". It accepts both JSON
// numbers and strings so YAML authors can write ids unquoted.
type ChatRef string

func (c *ChatRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChatRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chat must be a number or a string: %w", err)
	}
	*c = ChatRef(n.String())
	return nil
}

// Resolve returns (chatID, "") for numeric refs and (0, "@name") for usernames.
func (c ChatRef) Resolve() (int64, string, error) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0, "", fmt.Errorf("chat is empty")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) < 2 || strings.ContainsAny(s, " \t") {
			return 0, "", fmt.Errorf("invalid chat username %q", s)
		}
		return 0, s, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("invalid chat %q (use a numeric id or @username)", s)
	}
	return id, "", nil
}

// MessageConfig is the static payload sent by the daily broadcast and the keyword reply.
type MessageConfig struct {
	Text string `json:"text"`
	// ParseMode is "Markdown", "MarkdownV2", "HTML" or "none".
	ParseMode string `json:"parse_mode"`
}

type TriggerConfig struct {
	// Keywords are matched as case-insensitive substrings. The first match wins.
	Keywords []string `json:"keywords"`
}

// SchedulerConfig controls the daily broadcast.
//
// Defaults (when fields are omitted/zero):
//   - at: "08:00"
//   - timezone: process local time
//   - check_interval: "60s"
type SchedulerConfig struct {
	// At is "HH:MM" (24h) or "cron:<expr>".
	At            string `json:"at"`
	Timezone      string `json:"timezone,omitempty"`
	CheckInterval string `json:"check_interval,omitempty"`
}

type DispatchConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	Burst       int    `json:"burst,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
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
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the fire ledger and delivery audit.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./promobot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
