// Package storage provides the small persistence layer used by the bot.
//
// It records:
//   - the slot each daily schedule last fired for (restart safety)
//   - an audit trail of delivery attempts
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory", "none" or empty: process-local state only
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one send or reply attempt.
type DeliveryRecord struct {
	At     time.Time
	Op     string
	Target string
	OK     bool
	Error  string
	TookMS int64
}

type DeliveryLog interface {
	AppendDelivery(ctx context.Context, r DeliveryRecord) error
}

// FireLedger remembers the last slot a schedule fired for, keyed by schedule name.
// A slot is the due time formatted as "2006-01-02 15:04" in the schedule's timezone.
type FireLedger interface {
	LastFired(ctx context.Context, schedule string) (slot string, ok bool, err error)
	MarkFired(ctx context.Context, schedule, slot string, at time.Time) error
}

type Store interface {
	DeliveryLog
	FireLedger
	Close() error
}
