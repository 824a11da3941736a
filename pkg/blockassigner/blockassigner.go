// Package blockassigner resolves an AvlReport's assignment hint to a
// concrete Block (or set of candidate Blocks for a route assignment), by
// narrowing on assignment type (BLOCK/ROUTE/TRIP) against the Schedule.
package blockassigner

import (
	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/schedule"
)

// Resolution is what the Block Assigner hands back to the orchestrator:
// either a single resolved block (BLOCK/TRIP assignment) or a set of
// candidate blocks to union across (ROUTE assignment).
type Resolution struct {
	Blocks []*model.Block
	// IsRouteAssignment marks a ROUTE resolution, which the orchestrator
	// must additionally filter by terminalDistanceForRouteMatching before
	// running compare-to-schedule.
	IsRouteAssignment bool
}

// Resolve returns a zero-value Resolution (nil Blocks) when the report
// carries no usable assignment.
func Resolve(sched schedule.Schedule, report model.AvlReport) Resolution {
	if !report.HasValidAssignment() {
		return Resolution{}
	}

	serviceIDs := sched.ServiceIDsFor(report.Time())

	switch report.AssignmentType {
	case model.AssignmentTypeBlock:
		if block, ok := sched.BlockByID(report.AssignmentID, serviceIDs); ok {
			return Resolution{Blocks: []*model.Block{block}}
		}
		return Resolution{}

	case model.AssignmentTypeTrip:
		_, block, ok := sched.TripByID(report.AssignmentID)
		if !ok {
			return Resolution{}
		}
		return Resolution{Blocks: []*model.Block{block}}

	case model.AssignmentTypeRoute:
		var blocks []*model.Block
		for _, serviceID := range serviceIDs {
			blocks = append(blocks, sched.GetBlocksForRoute(serviceID, report.AssignmentID)...)
		}
		return Resolution{Blocks: blocks, IsRouteAssignment: true}

	default:
		return Resolution{}
	}
}
