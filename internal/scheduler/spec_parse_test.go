package scheduler

import (
	"testing"
	"time"
)

func TestParseTriggerVariants(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC) // Sunday
	tests := []struct {
		name string
		raw  string
		expr string
		next time.Time
	}{
		{name: "hhmm", raw: "08:00", expr: "0 8 * * *", next: time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)},
		{name: "single digit hour", raw: " 7:30 ", expr: "30 7 * * *", next: time.Date(2026, 10, 18, 7, 30, 0, 0, time.UTC)},
		{name: "cron weekdays", raw: "cron:0 8 * * 1-5", expr: "0 8 * * 1-5", next: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		{name: "cron descriptor", raw: "CRON:@daily", expr: "@daily", next: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sched, expr, err := ParseTrigger(tt.raw)
			if err != nil {
				t.Fatalf("ParseTrigger(%q) error: %v", tt.raw, err)
			}
			if expr != tt.expr {
				t.Fatalf("expr = %q, want %q", expr, tt.expr)
			}
			if got := sched.Next(base); !got.Equal(tt.next) {
				t.Fatalf("Next = %v, want %v", got, tt.next)
			}
		})
	}
}

func TestParseTriggerInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "8h", "24:00", "08:60", "cron:", "cron:not a cron"} {
		if _, _, err := ParseTrigger(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := parseHHMM("23:15")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
}
