package vehiclecache

import (
	"testing"

	"github.com/transitcore/avlcore/pkg/model"
)

func TestMemoryUpdateAndGetVehicle(t *testing.T) {
	m := NewMemory()
	snap := model.VehicleSnapshot{VehicleID: "V1", Lat: 1, Lon: 2, BlockID: "B1"}
	m.UpdateVehicle(snap)

	got, ok := m.GetVehicle("V1")
	if !ok {
		t.Fatal("expected to find V1")
	}
	if got.BlockID != "B1" {
		t.Fatalf("expected BlockID B1, got %q", got.BlockID)
	}
}

func TestMemoryGetVehiclesByBlockIDMovesOnReassignment(t *testing.T) {
	m := NewMemory()
	m.UpdateVehicle(model.VehicleSnapshot{VehicleID: "V1", BlockID: "B1"})
	m.UpdateVehicle(model.VehicleSnapshot{VehicleID: "V2", BlockID: "B1"})

	ids := m.GetVehiclesByBlockID("B1")
	if len(ids) != 2 {
		t.Fatalf("expected 2 vehicles on B1, got %d", len(ids))
	}

	// Reassign V1 to B2; it should no longer show up under B1.
	m.UpdateVehicle(model.VehicleSnapshot{VehicleID: "V1", BlockID: "B2"})

	idsAfter := m.GetVehiclesByBlockID("B1")
	if len(idsAfter) != 1 || idsAfter[0] != "V2" {
		t.Fatalf("expected only V2 on B1 after the move, got %v", idsAfter)
	}
	idsB2 := m.GetVehiclesByBlockID("B2")
	if len(idsB2) != 1 || idsB2[0] != "V1" {
		t.Fatalf("expected V1 on B2, got %v", idsB2)
	}
}

func TestMemoryRemoveVehicleClearsBlockIndex(t *testing.T) {
	m := NewMemory()
	m.UpdateVehicle(model.VehicleSnapshot{VehicleID: "V1", BlockID: "B1"})
	m.RemoveVehicle("V1")

	if _, ok := m.GetVehicle("V1"); ok {
		t.Fatal("expected V1 to be gone after removal")
	}
	if ids := m.GetVehiclesByBlockID("B1"); len(ids) != 0 {
		t.Fatalf("expected no vehicles on B1 after removal, got %v", ids)
	}
}
