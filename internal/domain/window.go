package domain

import "time"

// DefaultWindowDuration is the span of an ingestion window when the caller
// does not supply one: the seven days leading up to the call.
const DefaultWindowDuration = 7 * 24 * time.Hour

// timestampLayout matches the ISO-8601 UTC form the NWS API expects in query
// parameters, e.g. "2025-01-01T00:00:00Z".
const timestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders a time as an ISO-8601 UTC string for API queries
// and store window bounds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// DefaultWindow fills in missing ingestion window bounds: a zero end becomes
// the current UTC time, a zero start becomes end minus seven days.
func DefaultWindow(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = clock.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-DefaultWindowDuration)
	}
	return start, end
}

// LastWeekRange returns the previous calendar week in UTC: Monday 00:00
// inclusive through the following Monday 00:00 exclusive.
func LastWeekRange() (time.Time, time.Time) {
	now := clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Days since Monday, with Sunday counting as 6.
	sinceMonday := (int(today.Weekday()) + 6) % 7
	lastMonday := today.AddDate(0, 0, -(sinceMonday + 7))

	return lastMonday, lastMonday.AddDate(0, 0, 7)
}

// TrailingWindow returns the window ending at the current UTC time and
// spanning the given duration, used by the wind-delta aggregate.
func TrailingWindow(d time.Duration) (time.Time, time.Time) {
	end := clock.Now().UTC()
	return end.Add(-d), end
}
