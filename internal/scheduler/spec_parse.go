package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTrigger turns a trigger string into a cron schedule.
//
// Supported forms:
//   - Daily time of day, 24h: "08:00", "7:30"
//   - Cron with explicit prefix: "cron:0 8 * * 1-5", "cron:@daily"
func ParseTrigger(raw string) (cron.Schedule, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, "", fmt.Errorf("trigger time required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return nil, "", fmt.Errorf("cron expression required after 'cron:'")
		}
		sched, err := specParser.Parse(expr)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cron %q: %w", expr, err)
		}
		return sched, expr, nil
	}

	h, m, err := parseHHMM(s)
	if err != nil {
		return nil, "", err
	}
	expr := fmt.Sprintf("%d %d * * *", m, h)
	sched, err := specParser.Parse(expr)
	if err != nil {
		return nil, "", err
	}
	return sched, expr, nil
}

// parseHHMM parses a 24h "HH:MM" time of day.
func parseHHMM(v string) (int, int, error) {
	m := reClock.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid time %q (use HH:MM, 24h)", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	if mm > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return hh, mm, nil
}
