package adherence

import (
	"testing"
	"time"

	"github.com/transitcore/avlcore/pkg/model"
)

func intPtr(v int) *int { return &v }

// TestGenerateWaitStopEarly is seed scenario 1: an AVL report at a wait stop
// before its scheduled departure always yields adherence 0.
func TestGenerateWaitStopEarly(t *testing.T) {
	departure := 8 * 3600 // 08:00:00
	avlTime := time.Date(2026, 3, 5, 7, 58, 0, 0, time.UTC)

	vs := &model.VehicleState{
		Predictable: true,
		LastAvl:     model.AvlReport{EpochMs: avlTime.UnixMilli()},
		Match: &model.TemporalMatch{
			AtStop: &model.VehicleAtStopInfo{
				IsWaitStop: true,
				Scheduled:  model.ScheduledTime{DepartureSec: intPtr(departure)},
			},
		},
	}

	diff := Generate(vs)
	if diff == nil {
		t.Fatal("expected non-nil adherence")
	}
	if diff.Millis != 0 {
		t.Fatalf("expected 0ms adherence at wait stop before departure, got %dms", diff.Millis)
	}
}

// TestGenerateWaitStopLate is seed scenario 2: AVL report 3 minutes past
// scheduled departure at the same wait stop yields -180000ms.
func TestGenerateWaitStopLate(t *testing.T) {
	departure := 8 * 3600
	avlTime := time.Date(2026, 3, 5, 8, 3, 0, 0, time.UTC)

	vs := &model.VehicleState{
		Predictable: true,
		LastAvl:     model.AvlReport{EpochMs: avlTime.UnixMilli()},
		Match: &model.TemporalMatch{
			AtStop: &model.VehicleAtStopInfo{
				IsWaitStop: true,
				Scheduled:  model.ScheduledTime{DepartureSec: intPtr(departure)},
			},
		},
	}

	diff := Generate(vs)
	if diff == nil {
		t.Fatal("expected non-nil adherence")
	}
	if diff.Millis != -180000 {
		t.Fatalf("expected -180000ms, got %dms", diff.Millis)
	}
}

func TestGenerateNotPredictableReturnsNil(t *testing.T) {
	vs := &model.VehicleState{Predictable: false, Match: &model.TemporalMatch{}}
	if Generate(vs) != nil {
		t.Fatal("expected nil adherence for a non-predictable vehicle")
	}
}

// TestEffectiveDifferenceInterpolation is seed scenario 3: vehicle 400m into
// a 1000m stop path between stops scheduled 08:00 and 08:10, AVL at 08:05,
// expects an effective schedule time of 08:04 and adherence +60000ms.
func TestEffectiveDifferenceInterpolation(t *testing.T) {
	firstStop := &model.StopPath{
		Index:     0,
		Scheduled: model.ScheduledTime{DepartureSec: intPtr(8 * 3600)},
	}
	secondStop := &model.StopPath{
		Index:     1,
		Scheduled: model.ScheduledTime{ArrivalSec: intPtr(8*3600 + 600)},
		Segments: []model.Segment{
			{LengthMeters: 1000},
		},
	}
	trip := &model.Trip{StopPaths: []*model.StopPath{firstStop, secondStop}}
	block := &model.Block{Trips: []*model.Trip{trip}}

	tm := &model.TemporalMatch{
		SpatialMatch: model.SpatialMatch{
			Block:                block,
			TripIndex:            0,
			StopPathIndex:        1,
			SegmentIndex:         0,
			DistanceAlongSegment: 400,
		},
	}

	avlTime := time.Date(2026, 3, 5, 8, 5, 0, 0, time.UTC)
	diff := EffectiveDifference(tm, avlTime)

	if diff.Millis != 60000 {
		t.Fatalf("expected +60000ms, got %dms", diff.Millis)
	}
}

func TestEffectiveDifferenceAtTripStart(t *testing.T) {
	firstStop := &model.StopPath{
		Index:     0,
		Scheduled: model.ScheduledTime{DepartureSec: intPtr(8 * 3600)},
	}
	trip := &model.Trip{StopPaths: []*model.StopPath{firstStop}}
	block := &model.Block{Trips: []*model.Trip{trip}}

	tm := &model.TemporalMatch{
		SpatialMatch: model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, SegmentIndex: 0, DistanceAlongSegment: 0},
	}

	avlTime := time.Date(2026, 3, 5, 7, 55, 0, 0, time.UTC)
	diff := EffectiveDifference(tm, avlTime)

	// 5 minutes before scheduled departure: avl - scheduled = -5min.
	if diff.Millis != -5*60*1000 {
		t.Fatalf("expected -300000ms, got %dms", diff.Millis)
	}
}
