package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"promobot/internal/config"
	"promobot/internal/dispatch"
	"promobot/internal/listener"
	rtsup "promobot/internal/runtime/supervisor"
	"promobot/internal/scheduler"
	"promobot/internal/service/sdnotify"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	telegram "promobot/internal/transport/telegram/adapter"
	logx "promobot/pkg/logx"
)

type App struct {
	cfg *config.Config
	sup *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter

	dispatch *dispatch.Dispatcher
	listen   *listener.Listener
	sched    *scheduler.Loop
	notify   *sdnotify.Notifier

	updates chan kit.Update
}

// NewApp loads the config at cfgPath (empty: environment only), connects to
// Telegram and wires every component. It does not start anything.
func NewApp(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		APIURL:      cfg.Telegram.APIURL,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newApp(cfg, ad, nil)
}

// newApp wires the components around an already connected adapter.
// clock may be nil (system time).
func newApp(cfg *config.Config, ad kit.Adapter, clock scheduler.Clock) (*App, error) {
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}, ad)
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if sc.Driver != "" {
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return fail(err)
	}
	disp := dispatch.New(dcfg, ad, log.With(logx.String("comp", "dispatch")), dispatch.WithAudit(store))

	payload := dispatch.Payload{Text: cfg.Message.Text, ParseMode: cfg.Message.Mode()}
	listen := listener.New(buildRules(cfg, payload), disp, log.With(logx.String("comp", "listener")))

	dests, err := mapDestinations(cfg)
	if err != nil {
		return fail(err)
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return fail(err)
	}
	interval, err := config.ParseDurationOrDefault("scheduler.check_interval", cfg.Scheduler.CheckInterval, time.Minute)
	if err != nil {
		return fail(err)
	}
	sched, err := scheduler.New(scheduler.Config{
		At:            cfg.Scheduler.At,
		Location:      loc,
		CheckInterval: interval,
		Destinations:  dests,
		Payload:       payload,
	}, disp, store, clock, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return fail(err)
	}

	return &App{
		cfg:      cfg,
		log:      appLog,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		dispatch: disp,
		listen:   listen,
		sched:    sched,
		notify:   sdnotify.New(log.With(logx.String("comp", "systemd"))),
		// unbuffered: the adapter waits for the listener before taking the next update
		updates: make(chan kit.Update),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Listener exposes handling counters.
func (a *App) Listener() *listener.Listener { return a.listen }

// Scheduler exposes the daily loop state.
func (a *App) Scheduler() *scheduler.Loop { return a.sched }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("listener", func(c context.Context) error {
		return a.listen.Run(c, a.updates)
	})

	a.sched.Start(a.sup.Context())

	a.sup.Go("systemd.watchdog", a.notify.Watchdog)
	a.notify.Ready()
	snap := a.sched.Snapshot()
	if !snap.Next.IsZero() {
		a.notify.Status("next broadcast " + snap.Next.Format(time.RFC3339))
	}

	a.log.Info("app started",
		logx.Int("destinations", len(a.cfg.Destinations)),
		logx.String("keywords", strings.Join(a.cfg.Trigger.Keywords, ",")),
		logx.String("at", a.cfg.Scheduler.At),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.notify.Stopping()

	// cancel first so every loop starts unwinding immediately
	a.sup.Cancel()

	// step bounds a shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	st := a.listen.Stats()
	a.log.Info("stopped",
		logx.Uint64("handled", st.Handled),
		logx.Uint64("replied", st.Replied),
		logx.Uint64("malformed", st.Malformed),
		logx.Uint64("failed", st.Failed),
	)
	return a.logs.Close()
}
