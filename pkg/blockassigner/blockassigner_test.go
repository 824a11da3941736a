package blockassigner

import (
	"testing"
	"time"

	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/schedule"
)

func arenaWithBlock(date time.Time) (*schedule.Arena, *model.Block) {
	a := schedule.NewArena()
	trip := &model.Trip{ID: "TRIP1", RouteID: "ROUTE1", StopPaths: []*model.StopPath{{Index: 0}}}
	block := &model.Block{ID: "BLOCK1", ServiceID: "WEEKDAY", Trips: []*model.Trip{trip}}

	a.LoadBlocks("ROUTE1", []*model.Block{block})
	a.LoadServiceDay(date.Format("2006-01-02"), []string{"WEEKDAY"})
	return a, block
}

func TestResolveBlockAssignment(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	a, block := arenaWithBlock(now)

	report := model.AvlReport{EpochMs: now.UnixMilli(), AssignmentType: model.AssignmentTypeBlock, AssignmentID: "BLOCK1"}
	res := Resolve(a, report)

	if res.IsRouteAssignment {
		t.Fatal("did not expect a route assignment")
	}
	if len(res.Blocks) != 1 || res.Blocks[0] != block {
		t.Fatalf("expected the resolved block, got %v", res.Blocks)
	}
}

func TestResolveTripAssignment(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	a, block := arenaWithBlock(now)

	report := model.AvlReport{EpochMs: now.UnixMilli(), AssignmentType: model.AssignmentTypeTrip, AssignmentID: "TRIP1"}
	res := Resolve(a, report)

	if len(res.Blocks) != 1 || res.Blocks[0] != block {
		t.Fatalf("expected block owning TRIP1, got %v", res.Blocks)
	}
}

func TestResolveRouteAssignmentUnionsAcrossServiceIDs(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	a, block := arenaWithBlock(now)

	report := model.AvlReport{EpochMs: now.UnixMilli(), AssignmentType: model.AssignmentTypeRoute, AssignmentID: "ROUTE1"}
	res := Resolve(a, report)

	if !res.IsRouteAssignment {
		t.Fatal("expected a route assignment")
	}
	if len(res.Blocks) != 1 || res.Blocks[0] != block {
		t.Fatalf("expected block for ROUTE1, got %v", res.Blocks)
	}
}

func TestResolveNoAssignmentReturnsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	a, _ := arenaWithBlock(now)

	report := model.AvlReport{EpochMs: now.UnixMilli(), AssignmentType: model.AssignmentTypeNone}
	res := Resolve(a, report)

	if res.Blocks != nil {
		t.Fatalf("expected no blocks for an unassigned report, got %v", res.Blocks)
	}
}

func TestResolveUnknownBlockIDReturnsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	a, _ := arenaWithBlock(now)

	report := model.AvlReport{EpochMs: now.UnixMilli(), AssignmentType: model.AssignmentTypeBlock, AssignmentID: "NOPE"}
	res := Resolve(a, report)

	if res.Blocks != nil {
		t.Fatalf("expected no blocks for an unknown block id, got %v", res.Blocks)
	}
}
