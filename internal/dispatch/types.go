package dispatch

import (
	"context"
	"time"

	kit "promobot/internal/transport"
)

// Payload is the fixed text sent by both the daily broadcast and keyword replies.
type Payload struct {
	Text      string
	ParseMode string // "Markdown", "MarkdownV2", "HTML" or "" (plain)
}

func (p Payload) options() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: p.ParseMode}
}

// Destination is a named chat the payload is broadcast to.
type Destination struct {
	Name   string
	Target kit.ChatTarget
}

func (d Destination) String() string {
	if d.Name == "" {
		return d.Target.String()
	}
	return d.Name + "(" + d.Target.String() + ")"
}

// Sender performs the platform calls. The Telegram adapter implements it.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	ReplyText(ctx context.Context, to kit.MessageRef, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Config controls outbound pacing and per-call deadlines.
//
// Defaults (when fields are zero):
//   - rate_per_sec: 20
//   - burst: 1
//   - send_timeout: 15s
type Config struct {
	RatePerSec  int
	Burst       int
	SendTimeout time.Duration
}
