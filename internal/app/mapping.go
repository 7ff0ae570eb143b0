package app

import (
	"fmt"
	"strings"
	"time"

	"promobot/internal/config"
	"promobot/internal/dispatch"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	"promobot/internal/trigger"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" || driver == "memory" {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	timeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 15*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		RatePerSec:  cfg.Dispatch.RatePerSec,
		Burst:       cfg.Dispatch.Burst,
		SendTimeout: timeout,
	}, nil
}

func mapDestinations(cfg *config.Config) ([]dispatch.Destination, error) {
	out := make([]dispatch.Destination, 0, len(cfg.Destinations))
	for _, d := range cfg.Destinations {
		id, user, err := d.Chat.Resolve()
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", d.Name, err)
		}
		out = append(out, dispatch.Destination{
			Name:   d.Name,
			Target: kit.ChatTarget{ChatID: id, Username: user, ThreadID: d.ThreadID},
		})
	}
	return out, nil
}

// buildRules turns the configured keywords into an ordered rule chain.
func buildRules(cfg *config.Config, p dispatch.Payload) trigger.Chain {
	rules := make(trigger.Chain, 0, len(cfg.Trigger.Keywords))
	for _, kw := range cfg.Trigger.Keywords {
		rules = append(rules, trigger.KeywordRule{Keyword: kw, Payload: p})
	}
	return rules
}
