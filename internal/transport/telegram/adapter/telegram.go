package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "promobot/internal/runtime/supervisor"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool
	// sup owns the poll loop and the stop watcher; created on Start, cancelled on Stop.
	sup *rtsup.Supervisor
}

// New creates the bot client. It performs a getMe call, so an invalid token or
// an unreachable API fails here.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    strings.TrimSpace(cfg.APIURL),
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		// One update at a time: the next one waits for the current handler.
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			fields := []logx.Field{logx.Err(err)}
			if c != nil && c.Message() != nil {
				fields = append(fields, logx.Int("message_id", c.Message().ID))
			}
			log.Warn("telegram error", fields...)
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	log.Info("bot authorized", logx.String("username", b.Me.Username))
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Media-only messages are forwarded too (with empty Text) so the consumer
	// decides how to treat a missing text body.
	a.bot.Handle(tele.OnText, a.onMessage)
	a.bot.Handle(tele.OnMedia, a.onMessage)
}

func (a *Adapter) onMessage(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}
	a.forward(kit.Update{Kind: kit.UpdateMessage, Message: toMessage(m)})
	return nil
}

func toMessage(m *tele.Message) *kit.Message {
	msg := &kit.Message{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.IsGroup = m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return msg
}

// forward hands the update to the consumer and blocks until it is taken,
// so a slow consumer delays the next poll instead of losing updates.
func (a *Adapter) forward(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	a.runMu.Lock()
	sup := a.sup
	a.runMu.Unlock()
	if sup == nil {
		return
	}
	select {
	case out <- up:
	case <-sup.Context().Done():
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() blocks until Stop(); restart it if it returns early.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still waiting on the long poll.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: empty destination")
	}
	return a.send(ctx, recipientFor(to), to.ThreadID, nil, text, opt)
}

// ReplyText sends text into the chat of ref, quoting the referenced message.
func (a *Adapter) ReplyText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chat := &tele.Chat{ID: ref.ChatID}
	replyTo := &tele.Message{ID: ref.MessageID, Chat: chat}
	return a.send(ctx, chat, ref.ThreadID, replyTo, text, opt)
}

func (a *Adapter) send(ctx context.Context, to tele.Recipient, threadID int, replyTo *tele.Message, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              threadID,
		}
		// Only the first chunk quotes the original message.
		if i == 0 && replyTo != nil {
			sendOpt.ReplyTo = replyTo
		}
		msg, err := a.bot.Send(to, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{MessageID: msg.ID, ThreadID: threadID}
			if msg.Chat != nil {
				first.ChatID = msg.Chat.ID
			}
		}
	}
	return first, nil
}

// usernameRecipient addresses public chats by "@username".
type usernameRecipient string

func (u usernameRecipient) Recipient() string { return string(u) }

func recipientFor(to kit.ChatTarget) tele.Recipient {
	if to.ChatID == 0 && to.Username != "" {
		name := to.Username
		if !strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		return usernameRecipient(name)
	}
	return &tele.Chat{ID: to.ChatID}
}
