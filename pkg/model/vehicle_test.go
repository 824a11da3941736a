package model

import "testing"

func TestSetMatchNilForcesUnpredictable(t *testing.T) {
	vs := &VehicleState{Predictable: true, Match: &TemporalMatch{}}
	vs.SetMatch(nil)

	if vs.Predictable {
		t.Fatal("expected predictable=false after SetMatch(nil)")
	}
	if vs.Match != nil {
		t.Fatal("expected match=nil")
	}
}

func TestUnsetBlockClearsAssignmentAndMatch(t *testing.T) {
	vs := &VehicleState{
		Predictable:      true,
		Match:            &TemporalMatch{},
		Block:            &Block{ID: "B1"},
		AssignmentID:     "B1",
		AssignmentMethod: AssignmentMethodBlock,
	}

	vs.UnsetBlock(UnassignReasonCouldNotMatch)

	if vs.Block != nil || vs.AssignmentID != "" || vs.AssignmentMethod != AssignmentMethodNone {
		t.Fatalf("expected block/assignment cleared, got %+v", vs)
	}
	if vs.Predictable || vs.Match != nil {
		t.Fatal("expected predictable=false and match=nil after UnsetBlock")
	}
	if vs.LastUnassignReason != UnassignReasonCouldNotMatch {
		t.Fatalf("expected LastUnassignReason recorded, got %q", vs.LastUnassignReason)
	}
}

func TestIsWithinBoundsEarlyAndLate(t *testing.T) {
	bounds := AdherenceBounds{MaxEarlyMs: 5000, MaxLateMs: 10000}

	earlyWithin := TemporalDifference{Millis: 4000}
	if !earlyWithin.IsWithinBounds(bounds) {
		t.Fatal("expected 4s early to be within bounds")
	}

	earlyBeyond := TemporalDifference{Millis: 6000}
	if earlyBeyond.IsWithinBounds(bounds) {
		t.Fatal("expected 6s early to exceed max_early bound")
	}

	lateWithin := TemporalDifference{Millis: -9000}
	if !lateWithin.IsWithinBounds(bounds) {
		t.Fatal("expected 9s late to be within bounds")
	}

	lateBeyond := TemporalDifference{Millis: -11000}
	if lateBeyond.IsWithinBounds(bounds) {
		t.Fatal("expected 11s late to exceed max_late bound")
	}
}

func TestTemporalDifferenceAbs(t *testing.T) {
	if got := (TemporalDifference{Millis: -500}).Abs(); got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}
	if got := (TemporalDifference{Millis: 500}).Abs(); got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}
}
