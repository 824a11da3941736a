package schedule

import (
	"sync"
	"time"

	"github.com/transitcore/avlcore/pkg/model"
)

// Arena is an in-memory, load-once Schedule implementation: an arena
// shared by all vehicle states for Block/Trip static data. Everything here
// is immutable after Load, so readers need no synchronization beyond the
// mutex guarding the index maps themselves during a (rare) reload.
type Arena struct {
	mu sync.RWMutex

	blocksByID    map[string]*model.Block
	blocksByRoute map[string][]*model.Block
	stopsByID     map[string]*model.Stop
	tripIndex     map[string]tripRef
	serviceDays   map[string][]string // date (YYYY-MM-DD) -> service IDs
}

type tripRef struct {
	trip  *model.Trip
	block *model.Block
}

func NewArena() *Arena {
	return &Arena{
		blocksByID:    map[string]*model.Block{},
		blocksByRoute: map[string][]*model.Block{},
		stopsByID:     map[string]*model.Stop{},
		tripIndex:     map[string]tripRef{},
		serviceDays:   map[string][]string{},
	}
}

// LoadBlocks indexes a set of blocks for a given route grouping. Called once
// at startup (or on a service-day rollover) by the embedding application;
// never called concurrently with reads in practice, but guarded anyway.
func (a *Arena) LoadBlocks(routeID string, blocks []*model.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.blocksByRoute[routeID] = append(a.blocksByRoute[routeID], blocks...)
	for _, b := range blocks {
		a.blocksByID[b.ID] = b
		for _, t := range b.Trips {
			a.tripIndex[t.ID] = tripRef{trip: t, block: b}
		}
	}
}

func (a *Arena) LoadStops(stops []*model.Stop) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range stops {
		a.stopsByID[s.ID] = s
	}
}

func (a *Arena) LoadServiceDay(date string, serviceIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.serviceDays[date] = serviceIDs
}

func (a *Arena) GetBlocksForRoute(serviceID, routeID string) []*model.Block {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*model.Block
	for _, b := range a.blocksByRoute[routeID] {
		if b.ServiceID == serviceID {
			out = append(out, b)
		}
	}
	return out
}

func (a *Arena) GetStop(stopID string) (*model.Stop, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.stopsByID[stopID]
	return s, ok
}

func (a *Arena) ServiceIDsFor(date time.Time) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.serviceDays[date.Format("2006-01-02")]
}

func (a *Arena) TripByID(tripID string) (*model.Trip, *model.Block, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ref, ok := a.tripIndex[tripID]
	if !ok {
		return nil, nil, false
	}
	return ref.trip, ref.block, true
}

func (a *Arena) BlockByID(blockID string, serviceIDs []string) (*model.Block, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.blocksByID[blockID]
	if !ok {
		return nil, false
	}
	for _, sid := range serviceIDs {
		if b.ServiceID == sid {
			return b, true
		}
	}
	return nil, false
}
