package temporalmatch

import (
	"testing"
	"time"

	"github.com/transitcore/avlcore/pkg/config"
	"github.com/transitcore/avlcore/pkg/model"
)

func twoStopBlock() *model.Block {
	sp0 := &model.StopPath{
		Index:    0,
		StopID:   "S1",
		Segments: []model.Segment{{LengthMeters: 1000}},
		TravelTimes: model.TravelTimesForStopPath{
			SegmentTravelTimes: []time.Duration{5 * time.Minute},
		},
	}
	sp1 := &model.StopPath{
		Index:    1,
		StopID:   "S2",
		Segments: []model.Segment{{LengthMeters: 1000}},
		TravelTimes: model.TravelTimesForStopPath{
			SegmentTravelTimes: []time.Duration{5 * time.Minute},
		},
	}
	trip := &model.Trip{ID: "T1", StopPaths: []*model.StopPath{sp0, sp1}}
	return &model.Block{ID: "B1", Trips: []*model.Trip{trip}}
}

func TestBestTemporalMatchPrefersExpectedTravelTime(t *testing.T) {
	block := twoStopBlock()
	prevTime := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	newTime := prevTime.Add(5 * time.Minute)

	prevMatch := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, SegmentIndex: 0, DistanceAlongSegment: 0}
	vs := &model.VehicleState{
		LastAvl: model.AvlReport{VehicleID: "V1", EpochMs: prevTime.UnixMilli()},
		Match:   &model.TemporalMatch{SpatialMatch: prevMatch},
	}

	// Candidate A matches the expected 5 minutes of travel (end of first
	// stop path); candidate B would require having travelled much further.
	candidateA := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, SegmentIndex: 0, DistanceAlongSegment: 1000, DistanceToSegment: 5}
	candidateB := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 1, SegmentIndex: 0, DistanceAlongSegment: 1000, DistanceToSegment: 5}

	newReport := model.AvlReport{VehicleID: "V1", EpochMs: newTime.UnixMilli()}
	best := BestTemporalMatch(vs, newReport, []model.SpatialMatch{candidateB, candidateA}, config.Load())

	if best == nil {
		t.Fatal("expected a best match")
	}
	if best.StopPathIndex != 0 || best.DistanceAlongSegment != 1000 {
		t.Fatalf("expected candidate A (matches expected 5 min travel), got stopPathIndex=%d along=%f", best.StopPathIndex, best.DistanceAlongSegment)
	}
}

func TestBestTemporalMatchRejectsHeadingProblems(t *testing.T) {
	block := twoStopBlock()
	prevTime := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	vs := &model.VehicleState{
		LastAvl: model.AvlReport{VehicleID: "V1", EpochMs: prevTime.UnixMilli()},
		Match:   &model.TemporalMatch{SpatialMatch: model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0}},
	}

	flagged := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, DistanceAlongSegment: 500, ProblemMatchDueToLackOfHeadingInfo: true}

	newReport := model.AvlReport{VehicleID: "V1", EpochMs: prevTime.Add(time.Minute).UnixMilli()}
	best := BestTemporalMatch(vs, newReport, []model.SpatialMatch{flagged}, config.Load())
	if best != nil {
		t.Fatal("expected no match when every candidate has a heading problem")
	}
}

func TestBestTemporalMatchNilWithoutPreviousMatch(t *testing.T) {
	vs := &model.VehicleState{}
	best := BestTemporalMatch(vs, model.AvlReport{}, []model.SpatialMatch{{}}, config.Load())
	if best != nil {
		t.Fatal("expected nil when the vehicle has no previous match to score against")
	}
}

func TestBestTemporalMatchComparedToScheduleTieBreaksOnDistance(t *testing.T) {
	block := twoStopBlock()
	block.Trips[0].StopPaths[0].Scheduled = model.ScheduledTime{DepartureSec: intPtr(8 * 3600)}
	block.Trips[0].StopPaths[1].Scheduled = model.ScheduledTime{ArrivalSec: intPtr(8*3600 + 600)}

	cfg := config.Load()
	reportTime := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	report := model.AvlReport{VehicleID: "V1", EpochMs: reportTime.UnixMilli()}

	near := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, SegmentIndex: 0, DistanceAlongSegment: 0, DistanceToSegment: 2}
	far := model.SpatialMatch{Block: block, TripIndex: 0, StopPathIndex: 0, SegmentIndex: 0, DistanceAlongSegment: 0, DistanceToSegment: 40}

	best := BestTemporalMatchComparedToSchedule(report, []model.SpatialMatch{far, near}, cfg)
	if best == nil {
		t.Fatal("expected a best match")
	}
	if best.DistanceToSegment != 2 {
		t.Fatalf("expected the spatially closer candidate to win a tie, got distance %f", best.DistanceToSegment)
	}
}

func TestMatchToLayoverStopEvenIfOffRoutePicksNearestTerminal(t *testing.T) {
	near := &model.Trip{ID: "near", StopPaths: []*model.StopPath{{
		Segments: []model.Segment{{A: model.Location{Lat: 0, Lon: 0}}},
	}}}
	far := &model.Trip{ID: "far", StopPaths: []*model.StopPath{{
		Segments: []model.Segment{{A: model.Location{Lat: 1, Lon: 1}}},
	}}}

	cfg := config.Load()
	report := model.AvlReport{Lat: 0.0001, Lon: 0.0001}

	best := MatchToLayoverStopEvenIfOffRoute(report, []*model.Trip{far, near}, cfg)
	if best == nil || best.ID != "near" {
		t.Fatalf("expected the nearer terminal trip, got %v", best)
	}
}

func TestMatchToLayoverStopEvenIfOffRouteNilWhenOutOfRadius(t *testing.T) {
	far := &model.Trip{ID: "far", StopPaths: []*model.StopPath{{
		Segments: []model.Segment{{A: model.Location{Lat: 10, Lon: 10}}},
	}}}
	cfg := config.Load()
	report := model.AvlReport{Lat: 0, Lon: 0}

	if best := MatchToLayoverStopEvenIfOffRoute(report, []*model.Trip{far}, cfg); best != nil {
		t.Fatalf("expected nil outside the terminal radius, got %v", best)
	}
}

func intPtr(v int) *int { return &v }
