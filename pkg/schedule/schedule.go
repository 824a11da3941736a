// Package schedule defines the Schedule boundary interface and ships two
// implementations: an in-memory Arena (a registry struct rather than an
// ambient global, used by tests and cmd/avlcore replay) and a
// MongoDB-backed adapter.
//
// The schedule provider itself — GTFS/static-timetable ingestion — is out
// of scope; this package only defines how the core *reads* already-loaded
// schedule data.
package schedule

import (
	"time"

	"github.com/transitcore/avlcore/pkg/model"
)

// Schedule is the read-only query surface the core depends on. Results are
// stable for the service day.
type Schedule interface {
	GetBlocksForRoute(serviceID, routeID string) []*model.Block
	GetStop(stopID string) (*model.Stop, bool)
	ServiceIDsFor(date time.Time) []string
	TripByID(tripID string) (*model.Trip, *model.Block, bool)
	BlockByID(blockID string, serviceIDs []string) (*model.Block, bool)
}
