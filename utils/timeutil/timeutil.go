package timeutil

import "time"

// MostRecent returns the latest of ts, or the zero time if ts is empty.
func MostRecent(ts ...time.Time) time.Time {
	var latest time.Time
	for _, t := range ts {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}
