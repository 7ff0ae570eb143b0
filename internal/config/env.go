package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken    = "PROMOBOT_TOKEN"
	EnvChannel  = "PROMOBOT_CHANNEL"
	EnvGroup    = "PROMOBOT_GROUP"
	EnvTimezone = "PROMOBOT_TIMEZONE"
	EnvLogLevel = "PROMOBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are ignored and variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with PROMOBOT_* variables.
// PROMOBOT_CHANNEL and PROMOBOT_GROUP replace (or add) the destinations named
// "channel" and "group".
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChannel); ok {
		setDestination(cfg, "channel", v)
	}
	if v, ok := get(EnvGroup); ok {
		setDestination(cfg, "group", v)
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Scheduler.Timezone = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
}

func setDestination(cfg *Config, name, chat string) {
	for i := range cfg.Destinations {
		if strings.EqualFold(cfg.Destinations[i].Name, name) {
			cfg.Destinations[i].Chat = ChatRef(chat)
			return
		}
	}
	cfg.Destinations = append(cfg.Destinations, DestinationConfig{Name: name, Chat: ChatRef(chat)})
}
