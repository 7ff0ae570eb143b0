package dispatch

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

// Dispatcher delivers the payload to destinations or as a reply.
//
// It holds no per-call state and is shared by the scheduler and the listener.
// The limiter only paces outbound calls; it never drops or merges them, so two
// identical Broadcast calls are two delivery attempts.
type Dispatcher struct {
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter
	timeout time.Duration
	audit   storage.DeliveryLog
}

type Option func(*Dispatcher)

// WithAudit records every attempt (successful or not) to log.
func WithAudit(log storage.DeliveryLog) Option {
	return func(d *Dispatcher) { d.audit = log }
}

func New(cfg Config, sender Sender, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Broadcast sends p to dst.
func (d *Dispatcher) Broadcast(ctx context.Context, dst Destination, p Payload) error {
	return d.deliver(ctx, OpBroadcast, dst.String(), func(c context.Context) error {
		_, err := d.sender.SendText(c, dst.Target, p.Text, p.options())
		return err
	})
}

// Reply sends p as a reply to msg.
func (d *Dispatcher) Reply(ctx context.Context, msg *kit.Message, p Payload) error {
	target := strconv.FormatInt(msg.ChatID, 10) + "#" + strconv.Itoa(msg.ID)
	return d.deliver(ctx, OpReply, target, func(c context.Context) error {
		_, err := d.sender.ReplyText(c, msg.Ref(), p.Text, p.options())
		return err
	})
}

func (d *Dispatcher) deliver(ctx context.Context, op Op, target string, call func(context.Context) error) error {
	start := time.Now()
	err := d.limiter.Wait(ctx)
	if err == nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		err = call(cctx)
		cancel()
	}
	took := time.Since(start)
	d.record(ctx, op, target, start, took, err)

	if err != nil {
		return &DeliveryError{Op: op, Target: target, Err: err}
	}
	d.log.Debug("delivered", logx.String("op", string(op)), logx.String("target", target), logx.Duration("took", took))
	return nil
}

func (d *Dispatcher) record(ctx context.Context, op Op, target string, at time.Time, took time.Duration, err error) {
	if d.audit == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:     at,
		Op:     string(op),
		Target: target,
		OK:     err == nil,
		TookMS: took.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// Audit must not depend on the caller's deadline having time left.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if aerr := d.audit.AppendDelivery(actx, rec); aerr != nil {
		d.log.Debug("delivery audit failed", logx.Err(aerr))
	}
}
