package app

import (
	"fmt"
	"time"
)

// perPercent drives the remaining-time estimate shown while processing.
const perPercent = 100 * time.Millisecond

// FormatLogLine renders a processing log entry as "> [HH:MM:SS] msg".
func FormatLogLine(t time.Time, msg string) string {
	return fmt.Sprintf("> [%s] %s", t.Format("15:04:05"), msg)
}

// EstimatedRemaining is the rough time left at percent, zero once complete.
func EstimatedRemaining(percent int) time.Duration {
	if percent >= 100 {
		return 0
	}
	if percent < 0 {
		percent = 0
	}
	return time.Duration(100-percent) * perPercent
}

// FormatRemaining renders an estimate as "Est. time remaining: 8.0s".
func FormatRemaining(d time.Duration) string {
	return fmt.Sprintf("Est. time remaining: %.1fs", d.Seconds())
}
