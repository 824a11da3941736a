// Package vehiclecache defines the outward-facing VehicleDataCache boundary
// and ships a Memory adapter (sync.Map, used by tests and cmd/avlcore
// replay) and a Redis adapter (eko/gocache + go-redis/v9, jinzhu/copier deep
// copy, liip/sheriff grouped marshaling).
package vehiclecache

import (
	"sync"

	"github.com/transitcore/avlcore/pkg/model"
)

// VehicleDataCache is the read/write outward surface used by the
// orchestrator to publish and query vehicle snapshots.
type VehicleDataCache interface {
	UpdateVehicle(snapshot model.VehicleSnapshot)
	GetVehicle(vehicleID string) (model.VehicleSnapshot, bool)
	GetVehiclesByBlockID(blockID string) []string
	RemoveVehicle(vehicleID string)
}

// Memory is an in-process VehicleDataCache, value-copy safe by construction
// since model.VehicleSnapshot is a plain value type: published snapshots
// are never aliases of the live VehicleState.
type Memory struct {
	vehicles sync.Map // vehicleID -> model.VehicleSnapshot
	byBlock  sync.Map // blockID -> map[string]struct{} (vehicleIDs), guarded by blockMu
	blockMu  sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) UpdateVehicle(snapshot model.VehicleSnapshot) {
	if prev, ok := m.vehicles.Load(snapshot.VehicleID); ok {
		if old := prev.(model.VehicleSnapshot); old.BlockID != snapshot.BlockID {
			m.unindexBlock(old.BlockID, snapshot.VehicleID)
		}
	}
	m.vehicles.Store(snapshot.VehicleID, snapshot)
	if snapshot.BlockID != "" {
		m.indexBlock(snapshot.BlockID, snapshot.VehicleID)
	}
}

func (m *Memory) GetVehicle(vehicleID string) (model.VehicleSnapshot, bool) {
	v, ok := m.vehicles.Load(vehicleID)
	if !ok {
		return model.VehicleSnapshot{}, false
	}
	return v.(model.VehicleSnapshot), true
}

func (m *Memory) GetVehiclesByBlockID(blockID string) []string {
	v, ok := m.byBlock.Load(blockID)
	if !ok {
		return nil
	}
	set := v.(map[string]struct{})
	m.blockMu.Lock()
	defer m.blockMu.Unlock()
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (m *Memory) RemoveVehicle(vehicleID string) {
	if prev, ok := m.vehicles.LoadAndDelete(vehicleID); ok {
		m.unindexBlock(prev.(model.VehicleSnapshot).BlockID, vehicleID)
	}
}

func (m *Memory) indexBlock(blockID, vehicleID string) {
	m.blockMu.Lock()
	defer m.blockMu.Unlock()
	v, ok := m.byBlock.Load(blockID)
	var set map[string]struct{}
	if ok {
		set = v.(map[string]struct{})
	} else {
		set = map[string]struct{}{}
	}
	set[vehicleID] = struct{}{}
	m.byBlock.Store(blockID, set)
}

func (m *Memory) unindexBlock(blockID, vehicleID string) {
	if blockID == "" {
		return
	}
	m.blockMu.Lock()
	defer m.blockMu.Unlock()
	v, ok := m.byBlock.Load(blockID)
	if !ok {
		return
	}
	set := v.(map[string]struct{})
	delete(set, vehicleID)
	if len(set) == 0 {
		m.byBlock.Delete(blockID)
	} else {
		m.byBlock.Store(blockID, set)
	}
}
