// Package scheduler runs the daily broadcast.
//
// The loop polls the clock every CheckInterval and fires when the current time
// falls inside the due minute computed by the cron schedule. A due minute that
// is not observed (process down or suspended) is skipped; there is no catch-up.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"promobot/internal/dispatch"
	"promobot/internal/storage"
	logx "promobot/pkg/logx"
)

const (
	defaultCheckInterval = time.Minute
	// fireWindow is how late a check may observe a due time and still fire.
	fireWindow = time.Minute
	slotLayout = "2006-01-02 15:04"
)

// Broadcaster delivers the payload to one destination. *dispatch.Dispatcher implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, dst dispatch.Destination, p dispatch.Payload) error
}

type Config struct {
	// Name keys the fire ledger. Defaults to "daily".
	Name string
	// At is "HH:MM" (24h) or "cron:<expr>".
	At            string
	Location      *time.Location
	CheckInterval time.Duration
	Destinations  []dispatch.Destination
	Payload       dispatch.Payload
}

// Snapshot is a point-in-time view of the loop.
type Snapshot struct {
	Name     string
	Spec     string
	Next     time.Time
	LastFire time.Time
	Checks   uint64
	Fires    uint64
	Missed   uint64
	Failures uint64
}

type Loop struct {
	cfg    Config
	spec   string
	sched  cron.Schedule
	clock  Clock
	out    Broadcaster
	ledger storage.FireLedger
	log    logx.Logger

	mu       sync.Mutex
	next     time.Time
	lastFire time.Time
	checks   uint64
	fires    uint64
	missed   uint64
	failures uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and builds a loop. ledger may be nil.
func New(cfg Config, out Broadcaster, ledger storage.FireLedger, clock Clock, log logx.Logger) (*Loop, error) {
	if out == nil {
		return nil, errors.New("scheduler: broadcaster required")
	}
	if len(cfg.Destinations) == 0 {
		return nil, errors.New("scheduler: at least one destination required")
	}
	sched, spec, err := ParseTrigger(cfg.At)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "daily"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		cfg:    cfg,
		spec:   spec,
		sched:  sched,
		clock:  clock,
		out:    out,
		ledger: ledger,
		log:    log,
	}, nil
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (l *Loop) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.cancel != nil {
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	go func() {
		defer close(done)
		_ = l.Run(rctx)
	}()
}

// Stop cancels the loop and waits for it to exit (bounded by ctx).
func (l *Loop) Stop(ctx context.Context) {
	l.runMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		l.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
}

// Run blocks, checking the clock every CheckInterval. It returns ctx.Err() on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	t := l.clock.NewTicker(l.cfg.CheckInterval)
	defer t.Stop()

	l.Check(ctx)
	snap := l.Snapshot()
	l.log.Info("scheduler started",
		logx.String("name", l.cfg.Name),
		logx.String("spec", l.spec),
		logx.String("tz", l.cfg.Location.String()),
		logx.Time("next", snap.Next),
		logx.Duration("check_interval", l.cfg.CheckInterval),
		logx.Int("destinations", len(l.cfg.Destinations)),
	)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("scheduler stopped", logx.String("name", l.cfg.Name))
			return ctx.Err()
		case <-t.C():
			l.Check(ctx)
		}
	}
}

// Check performs one iteration and reports whether the broadcast fired.
func (l *Loop) Check(ctx context.Context) bool {
	now := l.clock.Now().In(l.cfg.Location)

	l.mu.Lock()
	l.checks++
	if l.next.IsZero() {
		// A start inside the due minute still counts as running at the trigger time.
		l.next = l.sched.Next(now.Truncate(time.Minute).Add(-time.Nanosecond))
	}
	due := l.next
	if now.Before(due) {
		l.mu.Unlock()
		return false
	}
	l.next = l.sched.Next(now)
	next := l.next
	if now.Sub(due) >= fireWindow {
		l.missed++
		l.mu.Unlock()
		l.log.Warn("trigger time missed; skipping",
			logx.String("name", l.cfg.Name),
			logx.Time("due", due),
			logx.Duration("late", now.Sub(due)),
			logx.Time("next", next),
		)
		return false
	}
	l.mu.Unlock()

	slot := due.Format(slotLayout)
	if l.alreadyFired(ctx, slot) {
		l.log.Info("already fired for this slot; skipping", logx.String("name", l.cfg.Name), logx.String("slot", slot))
		return false
	}

	failed := l.fire(ctx)

	l.mu.Lock()
	l.fires++
	l.failures += uint64(failed)
	l.lastFire = now
	l.mu.Unlock()

	if l.ledger != nil {
		if err := l.ledger.MarkFired(ctx, l.cfg.Name, slot, now); err != nil {
			l.log.Warn("fire ledger update failed", logx.String("slot", slot), logx.Err(err))
		}
	}
	l.log.Info("daily broadcast done",
		logx.String("name", l.cfg.Name),
		logx.String("slot", slot),
		logx.Int("ok", len(l.cfg.Destinations)-failed),
		logx.Int("failed", failed),
		logx.Time("next", next),
	)
	return true
}

func (l *Loop) alreadyFired(ctx context.Context, slot string) bool {
	if l.ledger == nil {
		return false
	}
	last, ok, err := l.ledger.LastFired(ctx, l.cfg.Name)
	if err != nil {
		// fail open: an unreadable ledger must not suppress the broadcast
		l.log.Warn("fire ledger read failed; firing anyway", logx.Err(err))
		return false
	}
	return ok && last == slot
}

// fire broadcasts to every destination in order. A failure does not stop the rest.
func (l *Loop) fire(ctx context.Context) int {
	failed := 0
	for _, dst := range l.cfg.Destinations {
		if err := l.out.Broadcast(ctx, dst, l.cfg.Payload); err != nil {
			failed++
			l.log.Error("broadcast failed", logx.String("dest", dst.String()), logx.Err(err))
		}
	}
	return failed
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Name:     l.cfg.Name,
		Spec:     l.spec,
		Next:     l.next,
		LastFire: l.lastFire,
		Checks:   l.checks,
		Fires:    l.fires,
		Missed:   l.missed,
		Failures: l.failures,
	}
}
