// Package listener consumes inbound messages and applies the trigger rules.
package listener

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"promobot/internal/dispatch"
	kit "promobot/internal/transport"
	"promobot/internal/trigger"
	logx "promobot/pkg/logx"
)

// Replier sends a payload as a reply. *dispatch.Dispatcher implements it.
type Replier interface {
	Reply(ctx context.Context, msg *kit.Message, p dispatch.Payload) error
}

// Stats are best-effort counters.
type Stats struct {
	Handled   uint64
	Replied   uint64
	Malformed uint64
	Failed    uint64
}

// Listener handles messages one at a time; a slow handler delays the next one.
type Listener struct {
	rules   trigger.Handler
	replier Replier
	log     logx.Logger

	handled   atomic.Uint64
	replied   atomic.Uint64
	malformed atomic.Uint64
	failed    atomic.Uint64
}

func New(rules trigger.Handler, replier Replier, log logx.Logger) *Listener {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Listener{rules: rules, replier: replier, log: log}
}

// Run consumes updates until ctx ends or updates is closed.
func (l *Listener) Run(ctx context.Context, updates <-chan kit.Update) error {
	l.log.Info("listening for messages")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			_ = l.Handle(ctx, up.Message)
		}
	}
}

// Handle evaluates a single message and replies when a rule asks for it.
// Failures (including panics) stay confined to this message.
func (l *Listener) Handle(ctx context.Context, msg *kit.Message) (err error) {
	l.handled.Add(1)
	if msg == nil {
		l.malformed.Add(1)
		return &trigger.MalformedMessageError{}
	}
	defer func() {
		if r := recover(); r != nil {
			l.failed.Add(1)
			l.log.Error("message handler panicked", logx.Int("message_id", msg.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic handling message %d: %v", msg.ID, r)
		}
	}()

	act, err := l.rules.OnMessage(msg)
	if err != nil {
		if errors.Is(err, trigger.ErrMalformedMessage) {
			l.malformed.Add(1)
			l.log.Debug("message skipped", logx.Int64("chat_id", msg.ChatID), logx.Int("message_id", msg.ID), logx.Err(err))
		} else {
			l.failed.Add(1)
			l.log.Warn("rule evaluation failed", logx.Int64("chat_id", msg.ChatID), logx.Int("message_id", msg.ID), logx.Err(err))
		}
		return err
	}
	if act.Kind != trigger.ActionReply {
		return nil
	}

	if err := l.replier.Reply(ctx, msg, act.Payload); err != nil {
		l.failed.Add(1)
		l.log.Warn("reply failed", logx.String("rule", act.Rule), logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return err
	}
	l.replied.Add(1)
	l.log.Info("replied", logx.String("rule", act.Rule), logx.Int64("chat_id", msg.ChatID), logx.Int64("from_id", msg.FromID))
	return nil
}

func (l *Listener) Stats() Stats {
	return Stats{
		Handled:   l.handled.Load(),
		Replied:   l.replied.Load(),
		Malformed: l.malformed.Load(),
		Failed:    l.failed.Load(),
	}
}
