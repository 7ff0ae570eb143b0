// Package trigger decides how the bot reacts to an inbound message.
//
// Rules are evaluated in an explicit order (Chain); the first rule that
// returns a non-empty Action wins.
package trigger

import (
	"errors"
	"fmt"
	"strings"

	"promobot/internal/dispatch"
	kit "promobot/internal/transport"
)

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionReply
)

func (k ActionKind) String() string {
	switch k {
	case ActionReply:
		return "reply"
	default:
		return "none"
	}
}

// Action is the outcome of evaluating a message.
type Action struct {
	Kind    ActionKind
	Rule    string
	Payload dispatch.Payload
}

var None = Action{Kind: ActionNone}

// Handler evaluates one inbound message.
type Handler interface {
	OnMessage(msg *kit.Message) (Action, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg *kit.Message) (Action, error)

func (f HandlerFunc) OnMessage(msg *kit.Message) (Action, error) { return f(msg) }

var ErrMalformedMessage = errors.New("message has no text body")

// MalformedMessageError is returned when a message cannot be matched because it
// carries no text (stickers, photos without text, service messages).
type MalformedMessageError struct {
	ChatID    int64
	MessageID int
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("message %d in chat %d: %v", e.MessageID, e.ChatID, ErrMalformedMessage)
}

func (e *MalformedMessageError) Unwrap() error { return ErrMalformedMessage }

// Matches reports whether keyword occurs in text, ignoring case.
func Matches(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// KeywordRule replies with Payload when a message contains Keyword.
type KeywordRule struct {
	Name    string
	Keyword string
	Payload dispatch.Payload
}

func (r KeywordRule) OnMessage(msg *kit.Message) (Action, error) {
	if msg == nil || msg.Text == "" {
		e := &MalformedMessageError{}
		if msg != nil {
			e.ChatID, e.MessageID = msg.ChatID, msg.ID
		}
		return None, e
	}
	if !Matches(msg.Text, r.Keyword) {
		return None, nil
	}
	name := r.Name
	if name == "" {
		name = "keyword:" + r.Keyword
	}
	return Action{Kind: ActionReply, Rule: name, Payload: r.Payload}, nil
}

// Chain evaluates handlers in order and returns the first non-empty action.
// An error stops evaluation for that message.
type Chain []Handler

func (c Chain) OnMessage(msg *kit.Message) (Action, error) {
	for _, h := range c {
		act, err := h.OnMessage(msg)
		if err != nil {
			return None, err
		}
		if act.Kind != ActionNone {
			return act, nil
		}
	}
	return None, nil
}
