package config

import (
	"testing"
	"time"
)

func TestLoadReturnsDefaultsWithoutOverrides(t *testing.T) {
	c := Load()
	if c.MaxBadMatchesInARow != defaultSnapshot.MaxBadMatchesInARow {
		t.Fatalf("expected default MaxBadMatchesInARow %d, got %d", defaultSnapshot.MaxBadMatchesInARow, c.MaxBadMatchesInARow)
	}
	if c.MaxStale != defaultSnapshot.MaxStale {
		t.Fatalf("expected default MaxStale %v, got %v", defaultSnapshot.MaxStale, c.MaxStale)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("AVLCORE_MAX_BAD_MATCHES_IN_A_ROW", "7")
	t.Setenv("AVLCORE_MAX_STALE", "10m")
	t.Setenv("AVLCORE_SPATIAL_MATCH_RADIUS_METERS", "120.5")
	t.Setenv("AVLCORE_ONLY_NEED_ARRIVAL_DEPARTURES", "true")
	t.Setenv("AVLCORE_STOP_PROXIMITY_METERS", "45")

	c := Load()
	if c.StopProximityMeters != 45 {
		t.Fatalf("expected StopProximityMeters 45, got %v", c.StopProximityMeters)
	}
	if c.MaxBadMatchesInARow != 7 {
		t.Fatalf("expected MaxBadMatchesInARow 7, got %d", c.MaxBadMatchesInARow)
	}
	if c.MaxStale != 10*time.Minute {
		t.Fatalf("expected MaxStale 10m, got %v", c.MaxStale)
	}
	if c.SpatialMatchRadiusMeters != 120.5 {
		t.Fatalf("expected SpatialMatchRadiusMeters 120.5, got %v", c.SpatialMatchRadiusMeters)
	}
	if !c.OnlyNeedArrivalDepartures {
		t.Fatal("expected OnlyNeedArrivalDepartures to be true")
	}
}

func TestLoadIgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("AVLCORE_MAX_BAD_MATCHES_IN_A_ROW", "not-a-number")

	c := Load()
	if c.MaxBadMatchesInARow != defaultSnapshot.MaxBadMatchesInARow {
		t.Fatalf("expected malformed override to fall back to default %d, got %d", defaultSnapshot.MaxBadMatchesInARow, c.MaxBadMatchesInARow)
	}
}
