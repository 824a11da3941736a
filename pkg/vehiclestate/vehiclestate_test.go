package vehiclestate

import (
	"testing"

	"github.com/transitcore/avlcore/pkg/model"
)

func TestHandleForCreatesOnFirstSighting(t *testing.T) {
	s := NewStore()
	h1 := s.HandleFor("V1")
	h2 := s.HandleFor("V1")

	if h1 != h2 {
		t.Fatal("expected the same Handle on repeated lookups of the same vehicle")
	}
	if h1.State.VehicleID != "V1" {
		t.Fatalf("expected VehicleID to be set, got %q", h1.State.VehicleID)
	}
}

func TestSetBlockOwnershipAndHoldersOf(t *testing.T) {
	s := NewStore()
	s.SetBlockOwnership("V1", "", "B1")
	s.SetBlockOwnership("V2", "", "B1")

	holders := s.HoldersOf("B1")
	if len(holders) != 2 || holders[0] != "V1" || holders[1] != "V2" {
		t.Fatalf("expected sorted [V1 V2], got %v", holders)
	}
}

func TestSetBlockOwnershipMovesVehicleBetweenBlocks(t *testing.T) {
	s := NewStore()
	s.SetBlockOwnership("V1", "", "B1")
	s.SetBlockOwnership("V1", "B1", "B2")

	if holders := s.HoldersOf("B1"); len(holders) != 0 {
		t.Fatalf("expected B1 to have no holders after the move, got %v", holders)
	}
	if holders := s.HoldersOf("B2"); len(holders) != 1 || holders[0] != "V1" {
		t.Fatalf("expected V1 to hold B2, got %v", holders)
	}
}

func TestVehiclesByBlockIDFiltersUnpredictableHolders(t *testing.T) {
	s := NewStore()
	s.SetBlockOwnership("V1", "", "B1")
	s.SetBlockOwnership("V2", "", "B1")

	h1 := s.HandleFor("V1")
	h1.Mu.Lock()
	h1.State.Predictable = true
	h1.State.Block = &model.Block{ID: "B1"}
	h1.Mu.Unlock()

	h2 := s.HandleFor("V2")
	h2.Mu.Lock()
	h2.State.Predictable = false
	h2.Mu.Unlock()

	out := s.VehiclesByBlockID("B1")
	if len(out) != 1 || out[0] != "V1" {
		t.Fatalf("expected only V1, got %v", out)
	}
}

func TestDisplacementQueueDrainsOnce(t *testing.T) {
	s := NewStore()
	s.EnqueueDisplacement("V1", "B1")
	s.EnqueueDisplacement("V2", "B1")

	out := s.DrainDisplacements()
	if len(out) != 2 {
		t.Fatalf("expected 2 queued displacements, got %d", len(out))
	}

	if out := s.DrainDisplacements(); len(out) != 0 {
		t.Fatalf("expected the queue to be empty after draining, got %v", out)
	}
}
