package model

import "time"

// AssignmentType mirrors the AVL feed's assignment_type field.
type AssignmentType string

const (
	AssignmentTypeBlock AssignmentType = "BLOCK"
	AssignmentTypeRoute AssignmentType = "ROUTE"
	AssignmentTypeTrip  AssignmentType = "TRIP"
	AssignmentTypeNone  AssignmentType = "NONE"
)

// AvlReport is an immutable position fix from a vehicle. Once accepted into
// the pipeline a report is never mutated, it is only ever passed by value or
// by pointer-to-immutable-struct down the pipeline.
type AvlReport struct {
	VehicleID string `json:"vehicle_id"`
	EpochMs   int64  `json:"epoch_ms"`

	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Heading is in degrees [0,360). Nil disables the heading gate.
	Heading *float64 `json:"heading,omitempty"`
	SpeedMs *float64 `json:"speed_ms,omitempty"`

	AssignmentID   string         `json:"assignment_id,omitempty"`
	AssignmentType AssignmentType `json:"assignment_type,omitempty"`
}

func (r AvlReport) Location() Location {
	return Location{Lat: r.Lat, Lon: r.Lon}
}

func (r AvlReport) Time() time.Time {
	return time.UnixMilli(r.EpochMs)
}

func (r AvlReport) HasValidAssignment() bool {
	return r.AssignmentType != AssignmentTypeNone && r.AssignmentType != "" && r.AssignmentID != ""
}
