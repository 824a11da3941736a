package geo

import (
	"testing"
	"time"
)

func TestEpochTimeSameDay(t *testing.T) {
	near := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	got := EpochTime(8*3600, near)
	want := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEpochTimeDayWrapPastMidnight(t *testing.T) {
	// secondsOfDay >= 86400 describes a trip running into the next
	// calendar day; near is just after midnight on that next day.
	near := time.Date(2026, 3, 6, 0, 10, 0, 0, time.UTC)
	secondsOfDay := 24*3600 + 5*60 // 00:05 "tomorrow" relative to service day start

	got := EpochTime(secondsOfDay, near)
	want := time.Date(2026, 3, 6, 0, 5, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEpochTimeNearYesterday(t *testing.T) {
	near := time.Date(2026, 3, 6, 0, 2, 0, 0, time.UTC)
	got := EpochTime(23*3600+58*60, near) // 23:58 the day before
	want := time.Date(2026, 3, 5, 23, 58, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEpochTimeRoundTrip(t *testing.T) {
	near := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	secondsOfDay := 14*3600 + 30*60

	resolved := EpochTime(secondsOfDay, near)
	if got := SecondsOfDayOf(resolved); got != secondsOfDay {
		t.Fatalf("round trip mismatch: got %d, want %d", got, secondsOfDay)
	}
}
