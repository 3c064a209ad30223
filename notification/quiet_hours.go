package notification

import (
	"fmt"
	"time"

	"campus-chat/domain/chat"
)

// clock is minutes since midnight parsed from "HH:MM".
func clock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid quiet hours bound %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// QuietUntil reports whether now falls in the quiet window and when it ends.
// Windows may wrap past midnight; an unknown timezone falls back to UTC.
func QuietUntil(q chat.QuietHours, now time.Time) (bool, time.Time) {
	if !q.Enabled {
		return false, time.Time{}
	}
	start, err := clock(q.Start)
	if err != nil {
		return false, time.Time{}
	}
	end, err := clock(q.End)
	if err != nil || start == end {
		return false, time.Time{}
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil || q.Timezone == "" {
		loc = time.UTC
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var quiet bool
	if start < end {
		quiet = minute >= start && minute < end
	} else {
		quiet = minute >= start || minute < end
	}
	if !quiet {
		return false, time.Time{}
	}
	endAt := midnight.Add(time.Duration(end) * time.Minute)
	if !endAt.After(local) {
		endAt = endAt.AddDate(0, 0, 1)
	}
	return true, endAt.UTC()
}
