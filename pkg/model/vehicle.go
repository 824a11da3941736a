package model

import "time"

// AssignmentMethod records how a vehicle came to be assigned its current
// block, recovered from transitime-style assignment bookkeeping — the
// exclusivity sweep and VehicleState's invariants both branch on whether
// the current holder is a schedule-based placeholder.
type AssignmentMethod string

const (
	AssignmentMethodNone                   AssignmentMethod = "NONE"
	AssignmentMethodBlock                  AssignmentMethod = "BLOCK"
	AssignmentMethodRoute                  AssignmentMethod = "ROUTE"
	AssignmentMethodTrip                   AssignmentMethod = "TRIP"
	AssignmentMethodScheduleBasedPrediction AssignmentMethod = "SCHEDULE_BASED_PREDICTION"
)

// UnassignReason records why a block was cleared from a VehicleState,
// consumed by VehicleEvent for observability.
type UnassignReason string

const (
	UnassignReasonCouldNotMatch        UnassignReason = "COULD_NOT_MATCH"
	UnassignReasonAssignmentTerminated UnassignReason = "ASSIGNMENT_TERMINATED"
	UnassignReasonAssignmentGrabbed    UnassignReason = "ASSIGNMENT_GRABBED"
)

// VehicleState is the owned mutable record for one vehicle. This is the
// pure-data shape; the mutual-exclusion wrapper lives in pkg/vehiclestate
// so that this type stays a plain, copier-friendly value.
type VehicleState struct {
	VehicleID string

	LastAvl AvlReport

	Match *TemporalMatch
	Block *Block

	AssignmentID     string
	AssignmentMethod AssignmentMethod

	Predictable bool

	BadMatchCount int

	SchedAdh *TemporalDifference

	// IsSchedBasedPreds marks this as a schedule-based prediction
	// placeholder rather than a real vehicle: these are displaced by any
	// real vehicle during the exclusivity sweep.
	IsSchedBasedPreds bool

	// LastProblematicAssignmentID holds the assignment_id that most recently
	// failed to produce a match: that assignment is skipped on the very
	// next report carrying the same id, rather than retried every report.
	// It clears the moment the report carries a different assignment.
	LastProblematicAssignmentID string

	// LastUnassignReason is the reason passed to the most recent UnsetBlock
	// call, carried forward so callers building a VehicleEvent around the
	// unassignment don't have to hand-write an equivalent free-text reason.
	LastUnassignReason UnassignReason
}

// SetMatch enforces the invariant that setting match = nil forces
// predictable = false.
func (v *VehicleState) SetMatch(m *TemporalMatch) {
	v.Match = m
	if m == nil {
		v.Predictable = false
	}
}

func (v *VehicleState) UnsetBlock(reason UnassignReason) {
	v.Block = nil
	v.AssignmentID = ""
	v.AssignmentMethod = AssignmentMethodNone
	v.LastUnassignReason = reason
	v.SetMatch(nil)
}

// EventKind enumerates the kinds of VehicleEvent the core emits.
type EventKind string

const (
	EventKindPredictable        EventKind = "PREDICTABLE"
	EventKindNoMatch            EventKind = "NO_MATCH"
	EventKindEndOfBlock         EventKind = "END_OF_BLOCK"
	EventKindNotLeavingTerminal EventKind = "NOT_LEAVING_TERMINAL"
)

// VehicleEvent is the persisted tuple handed to EventSink.
type VehicleEvent struct {
	Report      AvlReport      `json:"report"`
	Match       *TemporalMatch `json:"match,omitempty"`
	Kind        EventKind      `json:"kind"`
	Description string         `json:"description"`

	// UnassignReason is set to the reason passed to the UnsetBlock call this
	// event accompanies whenever a block is being cleared, so the reason reaches
	// EventSink as a typed value rather than only as free text in
	// Description.
	UnassignReason UnassignReason `json:"unassign_reason,omitempty"`

	Predictable         bool `json:"predictable"`
	BecameUnpredictable bool `json:"became_unpredictable"`

	// Supervisor/NextStopID are carried through for downstream consumers
	// (EventSink) but never interpreted by the core, mirroring transitime's
	// VehicleEvent supervisor/operator annotation fields.
	Supervisor *string `json:"supervisor,omitempty"`
	NextStopID string  `json:"next_stop_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// VehicleSnapshot is the immutable value copy of a VehicleState published to
// VehicleDataCache: published snapshots must be value copies, never aliases
// of the live VehicleState.
type VehicleSnapshot struct {
	VehicleID string `json:"vehicle_id" groups:"basic"`

	Lat     float64  `json:"lat" groups:"basic"`
	Lon     float64  `json:"lon" groups:"basic"`
	Heading *float64 `json:"heading,omitempty" groups:"basic"`

	BlockID          string           `json:"block_id,omitempty" groups:"basic"`
	AssignmentMethod AssignmentMethod `json:"assignment_method,omitempty" groups:"detailed"`

	Predictable bool `json:"predictable" groups:"basic"`

	ScheduleAdherenceMs *int64 `json:"schedule_adherence_ms,omitempty" groups:"basic"`

	LastUpdate time.Time `json:"last_update" groups:"detailed"`
}
