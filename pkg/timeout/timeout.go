// Package timeout implements the TimeoutHandler boundary: a periodic
// ticker-loop sweep that marks vehicles unpredictable once their last AVL
// report exceeds max_stale.
package timeout

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/vehiclestate"
)

// TimeoutHandler offers CheckOnReport as a per-report hook and runs its own
// periodic sweep for vehicles that stop reporting entirely. Sweeper's
// CheckOnReport is a no-op, and the orchestrator does not call it.
type TimeoutHandler interface {
	CheckOnReport(vehicleID string, now time.Time)
	Run(ctx context.Context)
}

// Sweeper is the default TimeoutHandler: a ticker loop over the vehicle
// store, unsetting the block (reason COULD_NOT_MATCH is the closest named
// reason; there is no distinct UnassignReason for a plain timeout) of any
// vehicle whose LastAvl is older than MaxStale.
type Sweeper struct {
	store    *vehiclestate.Store
	maxStale time.Duration
	interval time.Duration

	knownVehicleIDs func() []string
}

func NewSweeper(store *vehiclestate.Store, maxStale, interval time.Duration, knownVehicleIDs func() []string) *Sweeper {
	return &Sweeper{store: store, maxStale: maxStale, interval: interval, knownVehicleIDs: knownVehicleIDs}
}

// CheckOnReport is a no-op fast path: the orchestrator already holds the
// vehicle's lock for the report it is processing, so timing it out here
// would race the very update in progress. Staleness is only evaluated for
// vehicles NOT currently being reported on, by Run.
func (s *Sweeper) CheckOnReport(string, time.Time) {}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	now := time.Now()
	for _, id := range s.knownVehicleIDs() {
		h := s.store.HandleFor(id)

		h.Mu.Lock()
		stale := h.State.Predictable && now.Sub(h.State.LastAvl.Time()) > s.maxStale
		if stale {
			previousBlockID := blockIDOf(h.State.Block)
			h.State.UnsetBlock(model.UnassignReasonCouldNotMatch)
			s.store.SetBlockOwnership(id, previousBlockID, "")
			log.Info().Str("vehicle_id", id).Msg("timeout: marked unpredictable, no AVL within max_stale")
		}
		h.Mu.Unlock()
	}
}

func blockIDOf(b *model.Block) string {
	if b == nil {
		return ""
	}
	return b.ID
}
