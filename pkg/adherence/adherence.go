// Package adherence computes schedule adherence: the signed millisecond
// offset between a vehicle's actual and scheduled position, including
// wait-stop semantics and in-motion interpolation of an "effective" schedule
// time. The sanity-bound check that triggers re-matching is
// model.TemporalDifference.IsWithinBounds, called by the orchestrator. The
// interpolation generalises linear progress-along-shape
// projection (pkg/geo) to scheduled time rather than distance.
package adherence

import (
	"time"

	"github.com/transitcore/avlcore/pkg/geo"
	"github.com/transitcore/avlcore/pkg/model"
)

// Generate implements generate(vehicleState): the adherence value used for
// reporting and for NOT_LEAVING_TERMINAL detection. Returns nil if the
// vehicle isn't predictable or no upcoming stop carries a scheduled time.
func Generate(vs *model.VehicleState) *model.TemporalDifference {
	if !vs.Predictable || vs.Match == nil {
		return nil
	}

	avlTime := vs.LastAvl.Time()

	if vs.Match.AtStop != nil && vs.Match.AtStop.Scheduled.HasDeparture() {
		return atStopDifference(*vs.Match.AtStop, avlTime)
	}

	sp, trip, ok := nextScheduledStopPath(vs.Match.SpatialMatch)
	if !ok {
		return nil
	}

	expected := expectedTravelToStopPath(vs.Match.SpatialMatch, trip, sp)
	targetSec, isDeparture := sp.Scheduled.DepartureSec, true
	if targetSec == nil {
		targetSec, isDeparture = sp.Scheduled.ArrivalSec, false
	}
	if targetSec == nil {
		return nil
	}

	dwell := time.Duration(0)
	if isDeparture {
		dwell = time.Duration(sp.TravelTimes.StopTimeMs) * time.Millisecond
	}

	scheduledEpoch := geo.EpochTime(*targetSec, avlTime)
	projected := avlTime.Add(expected).Add(dwell)
	diff := scheduledEpoch.Sub(projected)

	return &model.TemporalDifference{Millis: diff.Milliseconds()}
}

func atStopDifference(at model.VehicleAtStopInfo, avlTime time.Time) *model.TemporalDifference {
	departureSec := at.Scheduled.DepartureSec
	scheduledEpoch := geo.EpochTime(*departureSec, avlTime)

	if at.IsWaitStop {
		if avlTime.Before(scheduledEpoch) {
			return &model.TemporalDifference{Millis: 0}
		}
	}

	diff := scheduledEpoch.Sub(avlTime)
	return &model.TemporalDifference{Millis: diff.Milliseconds()}
}

// nextScheduledStopPath finds the next StopPath at or after the current
// match's position carrying a scheduled time.
func nextScheduledStopPath(sm model.SpatialMatch) (*model.StopPath, *model.Trip, bool) {
	block := sm.Block
	if block == nil {
		return nil, nil, false
	}

	for ti := sm.TripIndex; ti < len(block.Trips); ti++ {
		trip := block.Trips[ti]
		from := 0
		if ti == sm.TripIndex {
			from = sm.StopPathIndex
		}
		if sp, ok := trip.NextScheduledStopPath(from); ok {
			return sp, trip, true
		}
	}
	return nil, nil, false
}

// expectedTravelToStopPath sums the travel time from the current spatial
// position to the start of target within the same block.
func expectedTravelToStopPath(from model.SpatialMatch, trip *model.Trip, target *model.StopPath) time.Duration {
	if from.TripIndex >= len(from.Block.Trips) {
		return 0
	}

	var total time.Duration
	curTrip := from.Block.Trips[from.TripIndex]
	curSp := curTrip.StopPaths[from.StopPathIndex]

	remainingInSegment := remainingSegmentTravel(curSp, from.SegmentIndex, from.DistanceAlongSegment)
	total += remainingInSegment

	for spi := from.StopPathIndex + 1; spi < len(curTrip.StopPaths) && curTrip.StopPaths[spi] != target; spi++ {
		sp := curTrip.StopPaths[spi]
		total += sp.TravelTimes.Total() + time.Duration(sp.TravelTimes.StopTimeMs)*time.Millisecond
	}

	for ti := from.TripIndex + 1; ti < len(from.Block.Trips) && from.Block.Trips[ti] != trip; ti++ {
		for _, sp := range from.Block.Trips[ti].StopPaths {
			total += sp.TravelTimes.Total() + time.Duration(sp.TravelTimes.StopTimeMs)*time.Millisecond
		}
	}

	return total
}

func remainingSegmentTravel(sp *model.StopPath, segIdx int, alongM float64) time.Duration {
	if segIdx < 0 || segIdx >= len(sp.Segments) || segIdx >= len(sp.TravelTimes.SegmentTravelTimes) {
		return 0
	}

	seg := sp.Segments[segIdx]
	segDuration := sp.TravelTimes.SegmentTravelTimes[segIdx]
	var fraction float64
	if seg.LengthMeters > 0 {
		fraction = 1 - (alongM / seg.LengthMeters)
	}
	var total time.Duration
	total += time.Duration(float64(segDuration) * fraction)

	for i := segIdx + 1; i < len(sp.TravelTimes.SegmentTravelTimes); i++ {
		total += sp.TravelTimes.SegmentTravelTimes[i]
	}
	return total
}

// EffectiveDifference is always defined for a matched position, covering
// three cases: before trip start, at a stop boundary, or interpolated
// between stops.
func EffectiveDifference(tm *model.TemporalMatch, avlTime time.Time) model.TemporalDifference {
	trip := tm.Trip()
	sp := tm.StopPath()
	if trip == nil || sp == nil {
		return model.TemporalDifference{}
	}

	// Case 1: before trip start or at the first stop path (layover).
	if tm.StopPathIndex == 0 && tm.SegmentIndex == 0 && tm.DistanceAlongSegment == 0 {
		if sec, ok := scheduledSecondOf(trip.StopPaths[0]); ok {
			return diffAgainstSeconds(sec, avlTime)
		}
	}

	// Case 2: at a stop, i.e. at the end of the current stop path.
	lastSeg := len(sp.Segments) - 1
	if lastSeg >= 0 && tm.SegmentIndex == lastSeg && tm.DistanceAlongSegment >= sp.Segments[lastSeg].LengthMeters {
		if sec, ok := scheduledSecondOf(sp); ok {
			return diffAgainstSeconds(sec, avlTime)
		}
	}

	// Case 3: interpolate between the nearest scheduled stop behind the
	// current position and the nearest scheduled stop ahead of it.
	prevIdx, prevOk := nearestScheduledAtOrBefore(trip, tm.StopPathIndex-1)
	nextIdx, nextOk := nearestScheduledAtOrAfter(trip, tm.StopPathIndex)
	if !prevOk || !nextOk {
		if nextOk {
			sec, _ := scheduledSecondOf(trip.StopPaths[nextIdx])
			return diffAgainstSeconds(sec, avlTime)
		}
		return model.TemporalDifference{}
	}

	prevSec, _ := scheduledSecondOf(trip.StopPaths[prevIdx])
	nextSec, _ := scheduledSecondOf(trip.StopPaths[nextIdx])

	prevDist := distanceToEndOfStopPath(trip, prevIdx)
	nextDist := distanceToEndOfStopPath(trip, nextIdx)
	curDist := distanceToEndOfStopPath(trip, tm.StopPathIndex-1) + partialDistance(sp, tm.SegmentIndex, tm.DistanceAlongSegment)

	if nextDist <= prevDist {
		return diffAgainstSeconds(nextSec, avlTime)
	}

	ratio := (curDist - prevDist) / (nextDist - prevDist)
	effectiveSec := int(float64(prevSec) + float64(nextSec-prevSec)*ratio)

	return diffAgainstSeconds(effectiveSec, avlTime)
}

func diffAgainstSeconds(sec int, avlTime time.Time) model.TemporalDifference {
	scheduledEpoch := geo.EpochTime(sec, avlTime)
	return model.TemporalDifference{Millis: avlTime.Sub(scheduledEpoch).Milliseconds()}
}

// scheduledSecondOf prefers a departure time, falling back to arrival, per
// the same rule Generate applies.
func scheduledSecondOf(sp *model.StopPath) (int, bool) {
	if sp.Scheduled.HasDeparture() {
		return *sp.Scheduled.DepartureSec, true
	}
	if sp.Scheduled.HasArrival() {
		return *sp.Scheduled.ArrivalSec, true
	}
	return 0, false
}

func nearestScheduledAtOrBefore(trip *model.Trip, fromIndex int) (int, bool) {
	for i := fromIndex; i >= 0; i-- {
		if !trip.StopPaths[i].Scheduled.IsZero() {
			return i, true
		}
	}
	return 0, false
}

func nearestScheduledAtOrAfter(trip *model.Trip, fromIndex int) (int, bool) {
	for i := fromIndex; i < len(trip.StopPaths); i++ {
		if !trip.StopPaths[i].Scheduled.IsZero() {
			return i, true
		}
	}
	return 0, false
}

// distanceToEndOfStopPath sums the lengths of StopPaths[0..idx], i.e. the
// arc-length distance from trip start to the stop reached by path idx.
// Passing idx = -1 yields 0 (trip start).
func distanceToEndOfStopPath(trip *model.Trip, idx int) float64 {
	var total float64
	for i := 0; i <= idx && i < len(trip.StopPaths); i++ {
		total += trip.StopPaths[i].LengthMeters()
	}
	return total
}

func partialDistance(sp *model.StopPath, segIdx int, alongM float64) float64 {
	var total float64
	for i := 0; i < segIdx && i < len(sp.Segments); i++ {
		total += sp.Segments[i].LengthMeters
	}
	if segIdx >= 0 && segIdx < len(sp.Segments) {
		total += alongM
	}
	return total
}
