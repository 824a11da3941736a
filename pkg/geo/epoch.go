package geo

import "time"

// EpochTime resolves a seconds-of-day value (possibly >= 86400 for a
// past-midnight trip) to the calendar day closest to near: wall-clock day
// is never assumed to equal service day. It chooses, out of
// yesterday/today/tomorrow at that seconds-of-day offset, whichever lands
// closest in absolute terms to near.
func EpochTime(secondsOfDay int, near time.Time) time.Time {
	loc := near.Location()
	dayStart := time.Date(near.Year(), near.Month(), near.Day(), 0, 0, 0, 0, loc)

	candidates := []time.Time{
		dayStart.AddDate(0, 0, -1).Add(time.Duration(secondsOfDay) * time.Second),
		dayStart.Add(time.Duration(secondsOfDay) * time.Second),
		dayStart.AddDate(0, 0, 1).Add(time.Duration(secondsOfDay) * time.Second),
	}

	best := candidates[0]
	bestDiff := absDuration(near.Sub(best))
	for _, c := range candidates[1:] {
		d := absDuration(near.Sub(c))
		if d < bestDiff {
			best = c
			bestDiff = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SecondsOfDayOf extracts the seconds-since-local-midnight of t, the
// inverse of EpochTime's offset-to-instant resolution.
func SecondsOfDayOf(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
