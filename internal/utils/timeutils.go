package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// FormatDisplayTime turns backend timestamps into clock labels.
// YYYYMMDDHHMMSS becomes HH:MM:SS, YYYYMMDDHHMM becomes HH:MM; anything else is parsed with a few
// common layouts and returned unchanged when none match.
func FormatDisplayTime(ts string) string {
	switch len(ts) {
	case 14:
		return ts[8:10] + ":" + ts[10:12] + ":" + ts[12:14]
	case 12:
		return ts[8:10] + ":" + ts[10:12]
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("15:04:05")
		}
	}
	return ts
}

// BackendTimestamp formats a date (YYYY-MM-DD) and clock (HH:MM) the way the detection backend expects.
// 00:00 maps to YYYYMMDD00000 and 23:59 to YYYYMMDD235959; every other clock becomes YYYYMMDDHHMM00.
func BackendTimestamp(date, clock string) (string, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	c, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return "", fmt.Errorf("parse clock %q: %w", clock, err)
	}
	day := d.Format("20060102")
	switch {
	case c.Hour() == 0 && c.Minute() == 0:
		return day + "00000", nil
	case c.Hour() == 23 && c.Minute() == 59:
		return day + "235959", nil
	}
	return day + c.Format("1504") + "00", nil
}

// ClockSeconds converts an HH:MM[:SS] label into seconds since midnight.
func ClockSeconds(label string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(label), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	limits := []int{24, 60, 60}
	total := 0
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n >= limits[i] {
			return 0, false
		}
		total = total*60 + n
	}
	if len(parts) == 2 {
		total *= 60
	}
	return total, true
}
