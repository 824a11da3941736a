// Package vehiclestate implements the vehicle state store: a registry of
// per-vehicle locked state, one mutex-guarded record per vehicle. It owns
// no matching logic itself — the orchestrator (pkg/orchestrator) drives
// transitions under the lock this package provides.
package vehiclestate

import (
	"sort"
	"sync"

	"github.com/transitcore/avlcore/pkg/model"
)

// Handle is a per-vehicle lock plus the state it guards. All mutation of
// State must happen while Mu is held — the per-vehicle lock is the sole
// mutation authority.
type Handle struct {
	Mu    sync.Mutex
	State model.VehicleState
}

// Store is the registry of all known vehicles. Vehicles are created on
// first sighting and retained for the process lifetime — idle vehicles may
// be marked unpredictable by the timeout sweep but their Handle is never
// removed here.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]*Handle

	// byBlock indexes which vehicle IDs currently hold each block, used by
	// the orchestrator's exclusivity sweep to enumerate every other vehicle
	// currently holding a given block without scanning the whole store.
	byBlock map[string]map[string]struct{}

	dispMu   sync.Mutex
	deferred []Displacement
}

// Displacement is a posted-but-not-yet-applied exclusivity grab: if a
// needed foreign lock cannot be acquired under vehicle_id order, the sweep
// defers the displacement by posting it to this queue rather than
// reordering acquisition.
type Displacement struct {
	VehicleID string
	BlockID   string
}

func NewStore() *Store {
	return &Store{
		vehicles: map[string]*Handle{},
		byBlock:  map[string]map[string]struct{}{},
	}
}

// EnqueueDisplacement posts a displacement that the exclusivity sweep could
// not apply in-line because acquiring it would have violated the ascending
// vehicle_id lock order.
func (s *Store) EnqueueDisplacement(vehicleID, blockID string) {
	s.dispMu.Lock()
	defer s.dispMu.Unlock()
	s.deferred = append(s.deferred, Displacement{VehicleID: vehicleID, BlockID: blockID})
}

// DrainDisplacements removes and returns every queued displacement. Callers
// must hold no vehicle lock when calling this and must apply each
// displacement by acquiring that vehicle's lock fresh, never while holding
// another.
func (s *Store) DrainDisplacements() []Displacement {
	s.dispMu.Lock()
	defer s.dispMu.Unlock()
	out := s.deferred
	s.deferred = nil
	return out
}

// HandleFor returns the Handle for vehicleID, creating it on first
// sighting. The caller is responsible for locking it before touching State.
func (s *Store) HandleFor(vehicleID string) *Handle {
	s.mu.RLock()
	h, ok := s.vehicles[vehicleID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.vehicles[vehicleID]; ok {
		return h
	}
	h = &Handle{State: model.VehicleState{VehicleID: vehicleID}}
	s.vehicles[vehicleID] = h
	return h
}

// SetBlockOwnership records that vehicleID now holds blockID, removing any
// previous block ownership for that vehicle from the index. Must be called
// by the orchestrator immediately after committing a new Block to a
// VehicleState, still under that vehicle's lock.
func (s *Store) SetBlockOwnership(vehicleID string, previousBlockID, newBlockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previousBlockID != "" {
		if set, ok := s.byBlock[previousBlockID]; ok {
			delete(set, vehicleID)
			if len(set) == 0 {
				delete(s.byBlock, previousBlockID)
			}
		}
	}
	if newBlockID != "" {
		set, ok := s.byBlock[newBlockID]
		if !ok {
			set = map[string]struct{}{}
			s.byBlock[newBlockID] = set
		}
		set[vehicleID] = struct{}{}
	}
}

// HoldersOf returns the vehicle IDs currently recorded as holding blockID,
// sorted for deterministic iteration order (needed by the orchestrator's
// vehicle_id lock-ordering rule).
func (s *Store) HoldersOf(blockID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.byBlock[blockID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// VehiclesByBlockID returns the vehicles currently holding blockID, filtered
// to those still Predictable on it — a displaced holder is removed from
// byBlock by SetBlockOwnership, but a defensive Predictable check guards
// against a caller reading between UnsetBlock and the index update.
func (s *Store) VehiclesByBlockID(blockID string) []string {
	holders := s.HoldersOf(blockID)
	out := make([]string, 0, len(holders))
	for _, id := range holders {
		h := s.HandleFor(id)
		h.Mu.Lock()
		predictable := h.State.Predictable && h.State.Block != nil && h.State.Block.ID == blockID
		h.Mu.Unlock()
		if predictable {
			out = append(out, id)
		}
	}
	return out
}
