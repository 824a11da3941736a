// Package orchestrator implements the AVL processor: the per-report
// state-machine executive tying together the spatial matcher, temporal
// matcher, block assigner, vehicle state store, and schedule adherence
// generator. The processing loop is lock the key, do the work, publish,
// move on.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transitcore/avlcore/pkg/adherence"
	"github.com/transitcore/avlcore/pkg/blockassigner"
	"github.com/transitcore/avlcore/pkg/config"
	"github.com/transitcore/avlcore/pkg/eventsink"
	"github.com/transitcore/avlcore/pkg/geo"
	"github.com/transitcore/avlcore/pkg/matchprocessor"
	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/schedule"
	"github.com/transitcore/avlcore/pkg/spatialmatch"
	"github.com/transitcore/avlcore/pkg/temporalmatch"
	"github.com/transitcore/avlcore/pkg/vehiclecache"
	"github.com/transitcore/avlcore/pkg/vehiclestate"
)

// Processor is a registry struct: every collaborator the core depends on,
// wired once at construction, never reached through an ambient global.
type Processor struct {
	Schedule       schedule.Schedule
	Store          *vehiclestate.Store
	Sink           eventsink.EventSink
	Cache          vehiclecache.VehicleDataCache
	MatchProcessor matchprocessor.MatchProcessor
	ConfigSnapshot func() config.Snapshot
}

func NewProcessor(sched schedule.Schedule, store *vehiclestate.Store, sink eventsink.EventSink, cache vehiclecache.VehicleDataCache, mp matchprocessor.MatchProcessor, cfgFn func() config.Snapshot) *Processor {
	return &Processor{
		Schedule:       sched,
		Store:          store,
		Sink:           sink,
		Cache:          cache,
		MatchProcessor: mp,
		ConfigSnapshot: cfgFn,
	}
}

// ProcessReport is the public entry point: one AVL report, fully pipelined,
// followed by draining any exclusivity displacements the report's matching
// deferred to avoid out-of-order lock acquisition.
func (p *Processor) ProcessReport(ctx context.Context, report model.AvlReport) {
	p.lowLevelProcessAvlReport(ctx, report, 0)
	p.applyDeferredDisplacements(ctx)
}

// lowLevelProcessAvlReport is recursion-guarded: end-of-block handling may
// re-enter exactly once with the same report (a new assignment is expected
// to already be present on it by then).
func (p *Processor) lowLevelProcessAvlReport(ctx context.Context, report model.AvlReport, recursionDepth int) {
	if recursionDepth > 1 {
		log.Error().Str("vehicle_id", report.VehicleID).Msg("orchestrator: low_level_process_avl_report recursion exceeded guard")
		return
	}

	h := p.Store.HandleFor(report.VehicleID)
	h.Mu.Lock()
	defer h.Mu.Unlock()

	p.processLocked(ctx, h, report, recursionDepth)
}

func (p *Processor) processLocked(ctx context.Context, h *vehiclestate.Handle, report model.AvlReport, recursionDepth int) {
	vs := &h.State
	cfg := p.ConfigSnapshot()

	newAssignment := isNewAssignment(vs, report)
	problematic := vs.LastProblematicAssignmentID != "" && vs.LastProblematicAssignmentID == report.AssignmentID
	if problematic {
		vs.LastProblematicAssignmentID = ""
	}

	matchAlreadyPredictable := vs.Predictable && !newAssignment
	matchToNewAssignment := report.HasValidAssignment() && (!vs.Predictable || newAssignment) && !problematic

	previousBlockID := blockIDOf(vs.Block)

	switch {
	case matchAlreadyPredictable:
		p.rematchPredictable(vs, report, cfg)
	case matchToNewAssignment:
		p.matchToNewAssignment(ctx, h, vs, report, cfg)
	default:
		vs.SetMatch(nil)
	}

	vs.LastAvl = report
	p.Store.SetBlockOwnership(report.VehicleID, previousBlockID, blockIDOf(vs.Block))

	if vs.Predictable && vs.Match != nil {
		p.postMatchPipeline(ctx, h, vs, report, cfg, recursionDepth)
	}

	p.publishSnapshot(vs)
}

// isNewAssignment reports whether report carries an assignment different
// from the vehicle's current one.
func isNewAssignment(vs *model.VehicleState, report model.AvlReport) bool {
	if !report.HasValidAssignment() {
		return false
	}
	return report.AssignmentID != vs.AssignmentID
}

func blockIDOf(b *model.Block) string {
	if b == nil {
		return ""
	}
	return b.ID
}

// --- branch (a): re-match an already-predictable vehicle ---

func (p *Processor) rematchPredictable(vs *model.VehicleState, report model.AvlReport, cfg config.Snapshot) {
	if !vs.Predictable {
		panic("invariant violated: rematchPredictable called on non-predictable vehicle")
	}

	// Spatial matching needs the new report's position, while
	// BestTemporalMatch still reads the previous report from vs.LastAvl.
	probe := *vs
	probe.LastAvl = report
	candidates := spatialmatch.Candidates(&probe, nil, cfg)
	tm := temporalmatch.BestTemporalMatch(vs, report, filterHeadingProblems(candidates), cfg)

	if tm == nil {
		vs.BadMatchCount++
		if vs.BadMatchCount > cfg.MaxBadMatchesInARow {
			p.emitUnassign(vs, report, model.EventKindNoMatch, "no spatial/temporal match within bad-match tolerance", model.UnassignReasonCouldNotMatch)
			vs.UnsetBlock(model.UnassignReasonCouldNotMatch)
		}
		// else retain the previous match; absorb the transient drop-out.
		return
	}

	vs.BadMatchCount = 0
	vs.SetMatch(tm)
}

func filterHeadingProblems(candidates []model.SpatialMatch) []model.SpatialMatch {
	out := make([]model.SpatialMatch, 0, len(candidates))
	for _, c := range candidates {
		if !c.ProblemMatchDueToLackOfHeadingInfo {
			out = append(out, c)
		}
	}
	return out
}

// --- branch (b): match to a new assignment ---

func (p *Processor) matchToNewAssignment(ctx context.Context, h *vehiclestate.Handle, vs *model.VehicleState, report model.AvlReport, cfg config.Snapshot) {
	if vs.Predictable {
		p.emitUnassign(vs, report, model.EventKindNoMatch, "assignment terminated by new assignment", model.UnassignReasonAssignmentTerminated)
		vs.UnsetBlock(model.UnassignReasonAssignmentTerminated)
	}

	resolution := blockassigner.Resolve(p.Schedule, report)
	if len(resolution.Blocks) == 0 {
		return
	}

	var tm *model.TemporalMatch

	// Match the new report's position, not the previous one in vs.LastAvl.
	probe := *vs
	probe.LastAvl = report

	if resolution.IsRouteAssignment {
		candidates := spatialmatch.Candidates(&probe, resolution.Blocks, cfg)
		candidates = filterHeadingProblems(candidates)
		candidates = filterTerminalProximity(candidates, cfg.TerminalDistanceForRouteMatchingMeters)
		tm = temporalmatch.BestTemporalMatchComparedToSchedule(report, candidates, cfg)
	} else {
		block := resolution.Blocks[0]
		candidates := spatialmatch.Candidates(&probe, []*model.Block{block}, cfg)
		candidates = filterHeadingProblems(candidates)
		tm = temporalmatch.BestTemporalMatchComparedToSchedule(report, candidates, cfg)

		if tm == nil {
			trips := block.TripsCurrentlyActive(report)
			if layoverTrip := temporalmatch.MatchToLayoverStopEvenIfOffRoute(report, trips, cfg); layoverTrip != nil {
				tm = syntheticStartOfTripMatch(block, layoverTrip)
			}
		}
	}

	if tm == nil {
		vs.LastProblematicAssignmentID = report.AssignmentID
		return
	}

	vs.LastProblematicAssignmentID = ""
	chosenBlock := tm.Block
	vs.Block = chosenBlock
	vs.AssignmentID = report.AssignmentID
	vs.AssignmentMethod = assignmentMethodFor(report.AssignmentType)
	vs.BadMatchCount = 0
	vs.SetMatch(tm)
	vs.Predictable = true

	p.emit(vs, report, model.EventKindPredictable, "matched to new assignment", false)

	p.exclusivitySweep(report, chosenBlock)
}

// syntheticStartOfTripMatch synthesizes a SpatialMatch at trip start with a
// zero TemporalDifference, the last resort when nothing else matches.
func syntheticStartOfTripMatch(block *model.Block, trip *model.Trip) *model.TemporalMatch {
	sm := model.SpatialMatch{
		Block:         block,
		TripIndex:     trip.Index,
		StopPathIndex: 0,
		SegmentIndex:  0,
	}
	tm := &model.TemporalMatch{SpatialMatch: sm, Difference: model.TemporalDifference{Millis: 0}}
	if first := trip.FirstStopPath(); first != nil {
		tm.AtStop = &model.VehicleAtStopInfo{
			StopID:     first.StopID,
			Scheduled:  first.Scheduled,
			IsWaitStop: first.IsWaitStop,
		}
	}
	return tm
}

func assignmentMethodFor(t model.AssignmentType) model.AssignmentMethod {
	switch t {
	case model.AssignmentTypeBlock:
		return model.AssignmentMethodBlock
	case model.AssignmentTypeRoute:
		return model.AssignmentMethodRoute
	case model.AssignmentTypeTrip:
		return model.AssignmentMethodTrip
	default:
		return model.AssignmentMethodNone
	}
}

// filterTerminalProximity drops candidates within terminalDistance, measured
// along the route, of a trip terminal (the start of the first stop path or
// the end of the last one): route matching requires a
// vehicle clearly in progress on a trip, not idling at one end of it.
func filterTerminalProximity(candidates []model.SpatialMatch, terminalDistanceM float64) []model.SpatialMatch {
	out := make([]model.SpatialMatch, 0, len(candidates))
	for _, c := range candidates {
		trip := c.Trip()
		if trip == nil {
			continue
		}
		sp := trip.StopPaths[c.StopPathIndex]
		along := c.DistanceAlongSegment
		for i := 0; i < c.SegmentIndex && i < len(sp.Segments); i++ {
			along += sp.Segments[i].LengthMeters
		}
		nearStart := c.StopPathIndex == 0 && along <= terminalDistanceM
		nearEnd := c.StopPathIndex == len(trip.StopPaths)-1 && sp.LengthMeters()-along <= terminalDistanceM
		if nearStart || nearEnd {
			continue
		}
		out = append(out, c)
	}
	return out
}

// --- exclusivity sweep ---

// exclusivitySweep displaces every other vehicle currently holding
// chosenBlock, if the block is exclusive or the holder is a schedule-based
// placeholder. Foreign locks are acquired strictly in ascending vehicle_id
// order; a holder whose id sorts before the reporting vehicle's is
// deferred to the displacement queue instead of acquired out of order.
func (p *Processor) exclusivitySweep(report model.AvlReport, chosenBlock *model.Block) {
	for _, holderID := range p.Store.HoldersOf(chosenBlock.ID) {
		if holderID == report.VehicleID {
			continue
		}

		if holderID < report.VehicleID {
			p.Store.EnqueueDisplacement(holderID, chosenBlock.ID)
			continue
		}

		hh := p.Store.HandleFor(holderID)
		hh.Mu.Lock()
		p.maybeDisplace(hh, holderID, chosenBlock)
		hh.Mu.Unlock()
	}
}

// applyDeferredDisplacements drains and applies every displacement the most
// recent report's exclusivity sweep could not apply in-line. Called from
// ProcessReport after the reporting vehicle's own lock has been released, so
// each displacement acquires exactly one lock at a time.
func (p *Processor) applyDeferredDisplacements(ctx context.Context) {
	for _, d := range p.Store.DrainDisplacements() {
		hh := p.Store.HandleFor(d.VehicleID)
		hh.Mu.Lock()
		if hh.State.Block != nil && hh.State.Block.ID == d.BlockID {
			p.maybeDisplace(hh, d.VehicleID, hh.State.Block)
		}
		hh.Mu.Unlock()
	}
}

func (p *Processor) maybeDisplace(hh *vehiclestate.Handle, holderID string, block *model.Block) {
	if !hh.State.Predictable || hh.State.Block == nil || hh.State.Block.ID != block.ID {
		return
	}
	if !block.ShouldBeExclusive() && !hh.State.IsSchedBasedPreds {
		return
	}

	previousBlockID := blockIDOf(hh.State.Block)
	event := model.VehicleEvent{
		Report:              hh.State.LastAvl,
		Match:               hh.State.Match,
		Kind:                model.EventKindNoMatch,
		Description:         "displaced: assignment grabbed by another vehicle",
		UnassignReason:      model.UnassignReasonAssignmentGrabbed,
		Predictable:         false,
		BecameUnpredictable: true,
		CreatedAt:           time.Now(),
	}

	hh.State.UnsetBlock(model.UnassignReasonAssignmentGrabbed)
	p.Store.SetBlockOwnership(holderID, previousBlockID, "")
	p.publishSnapshot(&hh.State)
	p.Sink.Publish(context.Background(), event)
}

// --- branch (c): post-match pipeline ---

func (p *Processor) postMatchPipeline(ctx context.Context, h *vehiclestate.Handle, vs *model.VehicleState, report model.AvlReport, cfg config.Snapshot, recursionDepth int) {
	diff := adherence.Generate(vs)
	vs.SchedAdh = diff

	if vs.Match.AtStop != nil && vs.Match.AtStop.IsWaitStop && vs.Match.AtStop.Scheduled.HasDeparture() {
		scheduledDeparture := geo.EpochTime(*vs.Match.AtStop.Scheduled.DepartureSec, report.Time())
		if report.Time().Sub(scheduledDeparture) > cfg.AllowableLateAtTerminalForLoggingEvent {
			p.emit(vs, report, model.EventKindNotLeavingTerminal, "vehicle has not left terminal past scheduled departure", true)
		}
	}

	if diff != nil {
		bounds := adherenceBounds(vs, cfg)
		if !diff.IsWithinBounds(bounds) {
			p.emit(vs, report, model.EventKindNoMatch, "schedule adherence outside sanity bounds, forcing rematch", true)
			vs.SetMatch(nil)
			p.matchToNewAssignment(ctx, h, vs, report, cfg)
			if vs.Match != nil {
				vs.SchedAdh = adherence.Generate(vs)
			}
		}
	}

	p.MatchProcessor.GenerateResultsOfMatch(ctx, *vs)

	if vs.Match != nil && vs.Match.AtStop != nil && vs.Match.AtStop.AtEndOfBlock {
		p.emitUnassign(vs, report, model.EventKindEndOfBlock, "vehicle reached end of block", model.UnassignReasonAssignmentTerminated)
		vs.UnsetBlock(model.UnassignReasonAssignmentTerminated)

		if recursionDepth < 1 {
			p.processLocked(ctx, h, report, recursionDepth+1)
		} else {
			log.Error().Str("vehicle_id", report.VehicleID).Msg("orchestrator: end-of-block recursion guard triggered twice")
		}
	}
}

// adherenceBounds holds a schedule-based prediction placeholder to a
// doubled bound rather than the real vehicle's, since it is a coarse
// stand-in that should not flap between predictable and unpredictable on
// every report.
func adherenceBounds(vs *model.VehicleState, cfg config.Snapshot) model.AdherenceBounds {
	if vs.IsSchedBasedPreds {
		return model.AdherenceBounds{
			MaxEarlyMs: 2 * cfg.MaxScheduleAdherenceEarly.Milliseconds(),
			MaxLateMs:  2 * cfg.MaxScheduleAdherenceLate.Milliseconds(),
		}
	}
	return model.AdherenceBounds{
		MaxEarlyMs: cfg.MaxScheduleAdherenceEarly.Milliseconds(),
		MaxLateMs:  cfg.MaxScheduleAdherenceLate.Milliseconds(),
	}
}

// --- event + snapshot plumbing ---

func (p *Processor) emit(vs *model.VehicleState, report model.AvlReport, kind model.EventKind, description string, becameUnpredictable bool) {
	p.Sink.Publish(context.Background(), model.VehicleEvent{
		Report:              report,
		Match:               vs.Match,
		Kind:                kind,
		Description:         description,
		Predictable:         vs.Predictable,
		BecameUnpredictable: becameUnpredictable,
		NextStopID:          nextStopID(vs),
		CreatedAt:           time.Now(),
	})
}

// emitUnassign is emit plus the typed UnassignReason that the following
// UnsetBlock call will apply, so EventSink sees the reason as a value
// rather than only as free text in Description.
func (p *Processor) emitUnassign(vs *model.VehicleState, report model.AvlReport, kind model.EventKind, description string, reason model.UnassignReason) {
	p.Sink.Publish(context.Background(), model.VehicleEvent{
		Report:              report,
		Match:               vs.Match,
		Kind:                kind,
		Description:         description,
		UnassignReason:      reason,
		Predictable:         vs.Predictable,
		BecameUnpredictable: true,
		NextStopID:          nextStopID(vs),
		CreatedAt:           time.Now(),
	})
}

func nextStopID(vs *model.VehicleState) string {
	if vs.Match == nil {
		return ""
	}
	if sp := vs.Match.StopPath(); sp != nil {
		return sp.StopID
	}
	return ""
}

func (p *Processor) publishSnapshot(vs *model.VehicleState) {
	p.Cache.UpdateVehicle(toSnapshot(vs))
}

func toSnapshot(vs *model.VehicleState) model.VehicleSnapshot {
	snapshot := model.VehicleSnapshot{
		VehicleID:        vs.VehicleID,
		Lat:              vs.LastAvl.Lat,
		Lon:              vs.LastAvl.Lon,
		Heading:          vs.LastAvl.Heading,
		AssignmentMethod: vs.AssignmentMethod,
		Predictable:      vs.Predictable,
		LastUpdate:       vs.LastAvl.Time(),
	}
	if vs.Block != nil {
		snapshot.BlockID = vs.Block.ID
	}
	if vs.SchedAdh != nil {
		ms := vs.SchedAdh.Millis
		snapshot.ScheduleAdherenceMs = &ms
	}
	return snapshot
}
