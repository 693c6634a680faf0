package availability

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted as the end of day.
func ParseClock(raw string) (int, error) {
	if len(raw) != 5 || raw[2] != ':' || !digits(raw[:2]) || !digits(raw[3:]) {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	h := int(raw[0]-'0')*10 + int(raw[1]-'0')
	m := int(raw[3]-'0')*10 + int(raw[4]-'0')
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ValidRange reports whether [start,end) is a non-empty range inside one day.
func ValidRange(start, end int) bool {
	return start >= 0 && end <= minutesPerDay && start < end
}

// At anchors a minutes-since-midnight clock value to the calendar date of day, in day's location.
func At(day time.Time, minute int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(minute) * time.Minute)
}

// DayBounds returns [00:00, next 00:00) of the calendar date of t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
