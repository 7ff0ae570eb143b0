package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "promobot/pkg/logx"
)

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "memory"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if _, ok := st.(*Memory); !ok {
			t.Fatalf("Open(%q) = %T, want *Memory", driver, st)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.LastFired(ctx, "daily"); err != nil || ok {
		t.Fatalf("LastFired on empty ledger = ok:%v err:%v", ok, err)
	}
	if err := m.MarkFired(ctx, "daily", "2026-10-18 08:00", time.Now()); err != nil {
		t.Fatalf("MarkFired: %v", err)
	}
	day, ok, err := m.LastFired(ctx, "daily")
	if err != nil || !ok || day != "2026-10-18 08:00" {
		t.Fatalf("LastFired = %q ok:%v err:%v", day, ok, err)
	}

	_ = m.Close()
	if err := m.MarkFired(ctx, "daily", "2026-10-19 08:00", time.Now()); !errors.Is(err, ErrClosed) {
		t.Fatalf("MarkFired after close = %v, want ErrClosed", err)
	}
}

func TestMemoryDeliveriesBounded(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	for i := 0; i < memoryDeliveryCap+10; i++ {
		_ = m.AppendDelivery(context.Background(), DeliveryRecord{Op: "broadcast", TookMS: int64(i)})
	}
	got := m.Deliveries()
	if len(got) != memoryDeliveryCap {
		t.Fatalf("len = %d, want %d", len(got), memoryDeliveryCap)
	}
	if got[0].TookMS != 10 {
		t.Fatalf("oldest retained = %d, want 10", got[0].TookMS)
	}
}

func TestSQLiteLedgerSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "promobot.db")
	cfg := Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.MarkFired(ctx, "daily", "2026-10-18 08:00", time.Now()); err != nil {
		t.Fatalf("MarkFired: %v", err)
	}
	if err := st.MarkFired(ctx, "daily", "2026-10-19 08:00", time.Now()); err != nil {
		t.Fatalf("MarkFired upsert: %v", err)
	}
	if err := st.AppendDelivery(ctx, DeliveryRecord{Op: "broadcast", Target: "channel", OK: false, Error: "chat not found"}); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	day, ok, err := st.LastFired(ctx, "daily")
	if err != nil || !ok || day != "2026-10-19 08:00" {
		t.Fatalf("LastFired = %q ok:%v err:%v", day, ok, err)
	}

	recent, err := st.(*sqliteStore).RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(recent) != 1 || recent[0].OK || recent[0].Error != "chat not found" {
		t.Fatalf("unexpected deliveries: %+v", recent)
	}
}

func TestApplyPragmasLogsFailures(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	_ = db.Close()

	var buf bytes.Buffer
	applyPragmas(db, time.Second, logx.NewWriter(&buf, "debug"))

	out := buf.String()
	for _, want := range []string{"busy_timeout", "journal_mode = WAL", "synchronous = NORMAL"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing warning for %q in %s", want, out)
		}
	}
	if got := strings.Count(out, "sqlite pragma failed"); got != 3 {
		t.Fatalf("warnings = %d, want 3", got)
	}
}
