// Package matchprocessor defines the MatchProcessor boundary: downstream
// side effects (prediction generation, arrival/departure inference)
// triggered once a vehicle's match is finalized for a report.
package matchprocessor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/transitcore/avlcore/pkg/model"
)

// MatchProcessor consumes a finalized match. Implementations are expected
// to be fire-and-forget from the orchestrator's point of view.
type MatchProcessor interface {
	GenerateResultsOfMatch(ctx context.Context, vs model.VehicleState)
}

// Logging is the default MatchProcessor: it does nothing but emit a debug
// log line, standing in for the out-of-scope prediction/AD-time generators
// this core hands off to.
type Logging struct{}

func (Logging) GenerateResultsOfMatch(_ context.Context, vs model.VehicleState) {
	log.Debug().
		Str("vehicle_id", vs.VehicleID).
		Bool("predictable", vs.Predictable).
		Msg("matchprocessor: match finalized")
}
