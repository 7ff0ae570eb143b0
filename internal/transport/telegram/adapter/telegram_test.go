package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "promobot/internal/runtime/supervisor"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

type mockContext struct {
	tele.Context
	msg *tele.Message
}

func (m *mockContext) Message() *tele.Message { return m.msg }

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := "aaaa\nbbbb\ncccc"
	got := splitTelegramText(in, 10, "Markdown")
	want := []string{"aaaa\nbbbb", "cccc"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTelegramTextAvoidsCuttingHTMLTags(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("x", 10) + "<b>bold</b>"
	got := splitTelegramText(in, 12, "HTML")
	want := []string{"xxxxxxxxxx", "<b>bold</b>"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("é", 12)
	got := splitTelegramText(in, 5, "")
	if len(got) != 3 || got[2] != "éé" {
		t.Fatalf("got %q", got)
	}
}

func TestRecipientFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		to   kit.ChatTarget
		want string
	}{
		{name: "numeric", to: kit.ChatTarget{ChatID: -1001234567890}, want: "-1001234567890"},
		{name: "username", to: kit.ChatTarget{Username: "@promo"}, want: "@promo"},
		{name: "username without at", to: kit.ChatTarget{Username: "promo"}, want: "@promo"},
		{name: "id wins over username", to: kit.ChatTarget{ChatID: 42, Username: "@promo"}, want: "42"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := recipientFor(tt.to).Recipient(); got != tt.want {
				t.Fatalf("Recipient() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	m := toMessage(&tele.Message{
		ID:       5,
		ThreadID: 3,
		Text:     "Quelle est la procédure ?",
		Chat:     &tele.Chat{ID: -100500, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 77, Username: "alice"},
	})
	if m.ID != 5 || m.ChatID != -100500 || m.ThreadID != 3 || !m.IsGroup {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.FromID != 77 || m.FromUsername != "alice" || m.Text != "Quelle est la procédure ?" {
		t.Fatalf("unexpected sender/text: %+v", m)
	}

	media := toMessage(&tele.Message{ID: 6, Chat: &tele.Chat{ID: 1, Type: tele.ChatPrivate}})
	if media.Text != "" || media.IsGroup {
		t.Fatalf("unexpected media message: %+v", media)
	}
}

func TestOnMessageForwardsAndBlocks(t *testing.T) {
	t.Parallel()
	out := make(chan kit.Update)
	a := &Adapter{log: logx.Nop()}
	a.out.Store((chan<- kit.Update)(out))
	a.sup = rtsup.New(context.Background())
	defer a.sup.Cancel()

	done := make(chan error, 1)
	go func() {
		done <- a.onMessage(&mockContext{msg: &tele.Message{ID: 9, Text: "procédure", Chat: &tele.Chat{ID: 1}}})
	}()

	select {
	case <-done:
		t.Fatalf("handler returned before the update was taken")
	case <-time.After(50 * time.Millisecond):
	}

	up := <-out
	if up.Kind != kit.UpdateMessage || up.Message == nil || up.Message.ID != 9 {
		t.Fatalf("unexpected update: %+v", up)
	}
	if err := <-done; err != nil {
		t.Fatalf("onMessage error: %v", err)
	}
}

func TestOnMessageUnblocksOnCancel(t *testing.T) {
	t.Parallel()
	a := &Adapter{log: logx.Nop()}
	a.out.Store((chan<- kit.Update)(make(chan kit.Update)))
	a.sup = rtsup.New(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- a.onMessage(&mockContext{msg: &tele.Message{ID: 1, Text: "x", Chat: &tele.Chat{ID: 1}}})
	}()
	a.sup.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("onMessage still blocked after cancel")
	}
}
