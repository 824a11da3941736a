// Package temporalmatch disambiguates among several SpatialMatch candidates
// using schedule/progress consistency: a nearest-by-time-then-distance
// scoring pass over candidate positions.
package temporalmatch

import (
	"time"

	"github.com/transitcore/avlcore/pkg/adherence"
	"github.com/transitcore/avlcore/pkg/config"
	"github.com/transitcore/avlcore/pkg/geo"
	"github.com/transitcore/avlcore/pkg/model"
)

// BestTemporalMatch scores, for an already-predictable vehicle, each
// candidate by how closely the elapsed real time since the previous match
// matches the expected travel time between the two positions, tie-breaking
// on spatial quality.
//
// newReport is the report under processing; vs.LastAvl is still the
// *previous* report at this point, since the orchestrator updates it only
// after matching completes.
func BestTemporalMatch(vs *model.VehicleState, newReport model.AvlReport, candidates []model.SpatialMatch, cfg config.Snapshot) *model.TemporalMatch {
	if vs.Match == nil || len(candidates) == 0 {
		return nil
	}

	prev := vs.Match.SpatialMatch
	elapsed := newReport.Time().Sub(vs.LastAvl.Time())

	var best *model.SpatialMatch
	var bestScore time.Duration

	for i := range candidates {
		c := &candidates[i]
		if c.ProblemMatchDueToLackOfHeadingInfo {
			continue
		}

		expected := expectedTravelTime(prev, *c)
		score := absDuration(elapsed - expected)

		if best == nil || score < bestScore || (score == bestScore && c.DistanceToSegment < best.DistanceToSegment) {
			best = c
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}
	return buildTemporalMatch(newReport, *best, cfg)
}

// expectedTravelTime sums the full travel time plus dwell of every stop path
// from the one holding from through the one holding to, within the same
// block. Positions within a stop path are not taken into account.
func expectedTravelTime(from, to model.SpatialMatch) time.Duration {
	if from.Block == nil || to.Block == nil || from.Block != to.Block {
		return 0
	}

	var total time.Duration
	block := from.Block

	for ti := from.TripIndex; ti <= to.TripIndex && ti < len(block.Trips); ti++ {
		trip := block.Trips[ti]
		startSp := 0
		if ti == from.TripIndex {
			startSp = from.StopPathIndex
		}
		endSp := len(trip.StopPaths) - 1
		if ti == to.TripIndex {
			endSp = to.StopPathIndex
		}

		for spi := startSp; spi <= endSp && spi < len(trip.StopPaths); spi++ {
			sp := trip.StopPaths[spi]
			total += sp.TravelTimes.Total() + time.Duration(sp.TravelTimes.StopTimeMs)*time.Millisecond
		}
	}
	return total
}

// BestTemporalMatchComparedToSchedule implements
// best_temporal_match_compared_to_schedule: for unassigned matching, score
// each candidate by absolute schedule adherence, tie-breaking in-trip over
// pre-trip and then by spatial distance.
func BestTemporalMatchComparedToSchedule(report model.AvlReport, candidates []model.SpatialMatch, cfg config.Snapshot) *model.TemporalMatch {
	var best *model.SpatialMatch
	var bestMatch model.TemporalMatch
	var bestScore int64 = -1
	var bestInTrip bool

	for i := range candidates {
		c := &candidates[i]
		if c.ProblemMatchDueToLackOfHeadingInfo {
			continue
		}

		tm := buildTemporalMatch(report, *c, cfg)
		diff := adherence.EffectiveDifference(tm, report.Time())
		score := diff.Abs()
		inTrip := c.StopPathIndex > 0 || c.DistanceAlongSegment > 0

		better := best == nil ||
			score < bestScore ||
			(score == bestScore && inTrip && !bestInTrip) ||
			(score == bestScore && inTrip == bestInTrip && c.DistanceToSegment < best.DistanceToSegment)

		if better {
			best = c
			bestScore = score
			bestInTrip = inTrip
			bestMatch = *tm
			bestMatch.Difference = diff
		}
	}

	if best == nil {
		return nil
	}
	return &bestMatch
}

// MatchToLayoverStopEvenIfOffRoute implements match_to_layover_stop_even_if_off_route:
// a last resort that picks the trip whose first stop (layover terminal) is
// closest to the AVL point, within the wide terminal radius.
func MatchToLayoverStopEvenIfOffRoute(report model.AvlReport, trips []*model.Trip, cfg config.Snapshot) *model.Trip {
	var best *model.Trip
	bestDist := cfg.TerminalMatchRadiusMeters

	for _, trip := range trips {
		first := trip.FirstStopPath()
		if first == nil || len(first.Segments) == 0 {
			continue
		}
		terminal := first.Segments[0].A
		d := geo.Distance(report.Location(), terminal)
		if d <= bestDist {
			best = trip
			bestDist = d
		}
	}
	return best
}

// buildTemporalMatch wraps a SpatialMatch into a TemporalMatch, populating
// AtStop when the candidate lies on the stop path's last segment within
// cfg.StopProximityMeters of that segment's end, i.e. of the stop the path
// leads to.
func buildTemporalMatch(report model.AvlReport, sm model.SpatialMatch, cfg config.Snapshot) *model.TemporalMatch {
	tm := &model.TemporalMatch{SpatialMatch: sm}

	sp := sm.StopPath()
	trip := sm.Trip()
	if sp == nil || trip == nil {
		return tm
	}

	atEnd := len(sp.Segments) > 0 && sm.SegmentIndex == len(sp.Segments)-1
	if atEnd && sp.Segments[sm.SegmentIndex].LengthMeters-sm.DistanceAlongSegment <= cfg.StopProximityMeters {
		atEndOfBlock := sm.Block != nil && sm.TripIndex == len(sm.Block.Trips)-1 && sm.StopPathIndex == len(trip.StopPaths)-1
		tm.AtStop = &model.VehicleAtStopInfo{
			StopID:       sp.StopID,
			Scheduled:    sp.Scheduled,
			IsWaitStop:   sp.IsWaitStop,
			AtEndOfBlock: atEndOfBlock,
		}
	}

	return tm
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
