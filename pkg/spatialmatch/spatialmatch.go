// Package spatialmatch enumerates plausible SpatialMatch positions for a
// vehicle's AVL fix against a set of candidate trips, by a narrowing walk
// over each trip's geometry using pkg/geo's segment projection.
package spatialmatch

import (
	"github.com/transitcore/avlcore/pkg/config"
	"github.com/transitcore/avlcore/pkg/geo"
	"github.com/transitcore/avlcore/pkg/model"
)

// Candidates returns every plausible SpatialMatch for vs.LastAvl.
//
// If vs already carries a Match, the walk starts from the previous
// SpatialMatch and proceeds forward only within that same block, up to
// cfg.SpatialLookaheadMeters of arc length, with
// cfg.SpatialBacktrackToleranceMeters of backward slack to absorb GPS
// jitter; blocks is ignored in this case. Otherwise the walk is
// unconstrained over every active trip of every supplied block.
func Candidates(vs *model.VehicleState, blocks []*model.Block, cfg config.Snapshot) []model.SpatialMatch {
	if vs.Match != nil {
		return rewalk(vs, cfg)
	}
	return unconstrainedWalk(vs.LastAvl, blocks, cfg)
}

func unconstrainedWalk(report model.AvlReport, blocks []*model.Block, cfg config.Snapshot) []model.SpatialMatch {
	var out []model.SpatialMatch
	for _, block := range blocks {
		for ti, trip := range block.TripsCurrentlyActive(report) {
			for spi, sp := range trip.StopPaths {
				isTerminal := spi == 0 || spi == len(trip.StopPaths)-1
				out = append(out, matchesWithinStopPath(report, block, ti, sp, spi, isTerminal, cfg)...)
			}
		}
	}
	return out
}

// rewalk continues the previous SpatialMatch forward along its own block.
func rewalk(vs *model.VehicleState, cfg config.Snapshot) []model.SpatialMatch {
	prev := vs.Match.SpatialMatch
	block := prev.Block
	report := vs.LastAvl

	if block == nil || prev.TripIndex < 0 || prev.TripIndex >= len(block.Trips) {
		return nil
	}

	var out []model.SpatialMatch
	arcWalked := 0.0

	for ti := prev.TripIndex; ti < len(block.Trips) && arcWalked <= cfg.SpatialLookaheadMeters; ti++ {
		trip := block.Trips[ti]
		startStopPathIdx := 0
		if ti == prev.TripIndex {
			startStopPathIdx = prev.StopPathIndex
		}

		for spi := startStopPathIdx; spi < len(trip.StopPaths); spi++ {
			sp := trip.StopPaths[spi]
			isTerminal := spi == 0 || spi == len(trip.StopPaths)-1

			out = append(out, matchesWithinStopPath(report, block, ti, sp, spi, isTerminal, cfg)...)
			arcWalked += sp.LengthMeters()

			if arcWalked > cfg.SpatialLookaheadMeters {
				break
			}
		}
	}

	return filterBacktrack(out, prev, cfg.SpatialBacktrackToleranceMeters)
}

// filterBacktrack drops candidates that fall strictly before the previous
// match's position by more than the configured backtrack tolerance, within
// the same trip/stop path/segment.
func filterBacktrack(candidates []model.SpatialMatch, prev model.SpatialMatch, tolerance float64) []model.SpatialMatch {
	var out []model.SpatialMatch
	for _, c := range candidates {
		if c.TripIndex == prev.TripIndex && c.StopPathIndex == prev.StopPathIndex && c.SegmentIndex == prev.SegmentIndex {
			if c.DistanceAlongSegment < prev.DistanceAlongSegment-tolerance {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// matchesWithinStopPath emits one SpatialMatch per segment of sp whose
// perpendicular distance is within the applicable radius. Layovers and wait
// stops widen the radius.
func matchesWithinStopPath(report model.AvlReport, block *model.Block, tripIndex int, sp *model.StopPath, stopPathIndex int, isTerminal bool, cfg config.Snapshot) []model.SpatialMatch {
	radius := cfg.SpatialMatchRadiusMeters
	switch {
	case isTerminal:
		radius = cfg.TerminalMatchRadiusMeters
	case sp.IsLayover || sp.IsWaitStop:
		radius = cfg.LayoverMatchRadiusMeters
	}

	var out []model.SpatialMatch
	p := report.Location()

	for segIdx, seg := range sp.Segments {
		perp, along, segLen := geo.ProjectToSegment(p, seg.A, seg.B)
		if perp > radius {
			continue
		}

		match := model.SpatialMatch{
			VehicleID:            report.VehicleID,
			Block:                block,
			TripIndex:            tripIndex,
			StopPathIndex:        stopPathIndex,
			SegmentIndex:         segIdx,
			DistanceToSegment:    perp,
			DistanceAlongSegment: clamp(along, 0, segLen),
		}

		if report.Heading != nil && !sp.IsLayover {
			bearing := geo.Bearing(seg.A, seg.B)
			if geo.HeadingDifference(*report.Heading, bearing) > cfg.HeadingToleranceDegrees {
				match.ProblemMatchDueToLackOfHeadingInfo = true
			}
		}

		out = append(out, match)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
