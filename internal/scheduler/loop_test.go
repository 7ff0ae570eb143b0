package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promobot/internal/dispatch"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return fakeTicker{c: c.ticks} }

type fakeTicker struct{ c chan time.Time }

func (t fakeTicker) C() <-chan time.Time { return t.c }
func (fakeTicker) Stop()                 {}

type recorder struct {
	mu    sync.Mutex
	calls []dispatch.Destination
	texts []string
	err   error
}

func (r *recorder) Broadcast(_ context.Context, dst dispatch.Destination, p dispatch.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dst)
	r.texts = append(r.texts, p.Text)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var testDestinations = []dispatch.Destination{
	{Name: "channel", Target: kit.ChatTarget{Username: "@promo_channel"}},
	{Name: "group", Target: kit.ChatTarget{ChatID: -1001234567890}},
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2026, 10, 18, hh, mm, ss, 0, time.UTC)
}

func newTestLoop(t *testing.T, clk Clock, out Broadcaster, ledger storage.FireLedger) *Loop {
	t.Helper()
	l, err := New(Config{
		At:           "08:00",
		Location:     time.UTC,
		Destinations: testDestinations,
		Payload:      dispatch.Payload{Text: "promo", ParseMode: "Markdown"},
	}, out, ledger, clk, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return l
}

func TestNoFireOutsideTriggerMinute(t *testing.T) {
	t.Parallel()
	for _, now := range []time.Time{at(7, 59, 0), at(8, 1, 0), at(20, 0, 0)} {
		out := &recorder{}
		l := newTestLoop(t, newFakeClock(now), out, nil)
		if l.Check(context.Background()) {
			t.Fatalf("fired at %s", now.Format("15:04:05"))
		}
		if out.count() != 0 {
			t.Fatalf("broadcasts at %s = %d, want 0", now.Format("15:04:05"), out.count())
		}
	}
}

func TestFiresOnceWhenCrossingTriggerTime(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(at(7, 59, 59))
	out := &recorder{}
	l := newTestLoop(t, clk, out, nil)
	ctx := context.Background()

	if l.Check(ctx) {
		t.Fatalf("fired before trigger time")
	}
	clk.Set(at(8, 0, 1))
	if !l.Check(ctx) {
		t.Fatalf("did not fire at 08:00:01")
	}
	if out.count() != 2 {
		t.Fatalf("broadcasts = %d, want 2", out.count())
	}
	if out.calls[0].Name != "channel" || out.calls[1].Name != "group" {
		t.Fatalf("unexpected destination order: %+v", out.calls)
	}
	for i, txt := range out.texts {
		if txt != "promo" {
			t.Fatalf("broadcast %d text = %q", i, txt)
		}
	}

	for _, now := range []time.Time{at(8, 0, 30), at(8, 1, 1), at(23, 59, 59)} {
		clk.Set(now)
		if l.Check(ctx) {
			t.Fatalf("fired again at %s", now.Format("15:04:05"))
		}
	}
	if out.count() != 2 {
		t.Fatalf("broadcasts after same-day checks = %d, want 2", out.count())
	}

	clk.Set(at(8, 0, 0).AddDate(0, 0, 1))
	if !l.Check(ctx) {
		t.Fatalf("did not fire on the next day")
	}
	snap := l.Snapshot()
	if snap.Fires != 2 || out.count() != 4 {
		t.Fatalf("fires = %d broadcasts = %d, want 2 and 4", snap.Fires, out.count())
	}
	if want := at(8, 0, 0).AddDate(0, 0, 2); !snap.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", snap.Next, want)
	}
}

func TestStartInsideDueMinuteFires(t *testing.T) {
	t.Parallel()
	out := &recorder{}
	l := newTestLoop(t, newFakeClock(at(8, 0, 30)), out, nil)
	if !l.Check(context.Background()) {
		t.Fatalf("start at 08:00:30 should fire")
	}
	if out.count() != 2 {
		t.Fatalf("broadcasts = %d, want 2", out.count())
	}
}

func TestMissedTriggerIsNotCaughtUp(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(at(7, 59, 30))
	out := &recorder{}
	l := newTestLoop(t, clk, out, nil)
	ctx := context.Background()

	l.Check(ctx)
	clk.Set(at(8, 3, 0))
	if l.Check(ctx) {
		t.Fatalf("fired late")
	}
	snap := l.Snapshot()
	if snap.Missed != 1 || out.count() != 0 {
		t.Fatalf("missed = %d broadcasts = %d, want 1 and 0", snap.Missed, out.count())
	}
	if want := at(8, 0, 0).AddDate(0, 0, 1); !snap.Next.Equal(want) {
		t.Fatalf("next = %v, want %v", snap.Next, want)
	}
}

func TestRestartInsideDueMinuteSkipsFiredSlot(t *testing.T) {
	t.Parallel()
	ledger := storage.NewMemory()
	ctx := context.Background()

	first := &recorder{}
	l := newTestLoop(t, newFakeClock(at(8, 0, 5)), first, ledger)
	if !l.Check(ctx) {
		t.Fatalf("first run did not fire")
	}

	second := &recorder{}
	l2 := newTestLoop(t, newFakeClock(at(8, 0, 40)), second, ledger)
	if l2.Check(ctx) {
		t.Fatalf("restarted loop fired twice for the same slot")
	}
	if second.count() != 0 {
		t.Fatalf("broadcasts after restart = %d, want 0", second.count())
	}
}

func TestTimezoneAppliesToTriggerTime(t *testing.T) {
	t.Parallel()
	paris := time.FixedZone("CEST", 2*60*60)
	out := &recorder{}
	l, err := New(Config{
		At:           "08:00",
		Location:     paris,
		Destinations: testDestinations,
	}, out, nil, newFakeClock(at(6, 0, 10)), logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if !l.Check(context.Background()) {
		t.Fatalf("06:00 UTC is 08:00 in %s and should fire", paris)
	}
}

func TestBroadcastFailureDoesNotStopLoop(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(at(8, 0, 1))
	out := &recorder{err: errors.New("network down")}
	l := newTestLoop(t, clk, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, func() bool { return l.Snapshot().Checks >= 1 })
	clk.Set(at(8, 1, 1))
	clk.ticks <- clk.Now()
	waitFor(t, func() bool { return l.Snapshot().Checks >= 2 })

	snap := l.Snapshot()
	if snap.Fires != 1 || snap.Failures != 2 {
		t.Fatalf("fires = %d failures = %d, want 1 and 2", snap.Fires, snap.Failures)
	}
	if out.count() != 2 {
		t.Fatalf("broadcast attempts = %d, want 2", out.count())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after cancel")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	out := &recorder{}
	l := newTestLoop(t, newFakeClock(at(12, 0, 0)), out, nil)
	l.Start(context.Background())
	l.Start(context.Background())
	waitFor(t, func() bool { return l.Snapshot().Checks >= 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Stop(ctx)
	if ctx.Err() != nil {
		t.Fatalf("Stop did not return before deadline")
	}
	l.Stop(ctx)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{At: "08:00"}, &recorder{}, nil, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error without destinations")
	}
	if _, err := New(Config{At: "8h", Destinations: testDestinations}, &recorder{}, nil, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error for invalid trigger")
	}
	if _, err := New(Config{At: "08:00", Destinations: testDestinations}, nil, nil, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error without broadcaster")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
