package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/parking-simulator/model"
)

func TestSnapshotStats(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := NewSnapshot([]*model.Space{
		{ID: "S1-A1"},
		{ID: "S2-A1", Occupied: true, VehicleID: "V1"},
		{ID: "S3-B2", Occupied: true, VehicleID: model.UnverifiedOccupant},
		{ID: "G1-A1", IsGroup: true, MemberSpaces: []int{0, 1}},
	}, map[string]string{"V1": "S2-A1"}, at)

	st := snap.Stats()
	if st.Total != 4 || st.Free != 2 || st.Occupied != 2 || st.ActiveAllocations != 1 {
		t.Fatalf("Stats = %+v, want total 4 free 2 occupied 2 allocations 1", st)
	}
	if math.Abs(st.OccupancyRate-50) > 1e-9 {
		t.Fatalf("OccupancyRate = %v, want 50", st.OccupancyRate)
	}
	if !st.Timestamp.Equal(at) {
		t.Fatalf("Timestamp = %v, want %v", st.Timestamp, at)
	}
}

func TestEmptySnapshotStats(t *testing.T) {
	var snap *Snapshot
	if !snap.Empty() {
		t.Fatalf("nil snapshot should be empty")
	}
	if st := NewSnapshot(nil, nil, time.Time{}).Stats(); st.OccupancyRate != 0 || st.Total != 0 {
		t.Fatalf("empty Stats = %+v", st)
	}
}

func TestSnapshotFilters(t *testing.T) {
	snap := NewSnapshot([]*model.Space{
		{ID: "S1-A1"},
		{ID: "G1-A1", IsGroup: true},
		{ID: "S2-A1", Occupied: true, VehicleID: "V1"},
		{ID: "G2-B1", IsGroup: true, Occupied: true, VehicleID: "V2"},
	}, map[string]string{"V2": "G2-B1", "V1": "S2-A1"}, time.Time{})

	if got := ids(snap.FreeSpaces()); got != "S1-A1,G1-A1" {
		t.Fatalf("FreeSpaces = %s", got)
	}
	if got := ids(snap.FreeIndividuals()); got != "S1-A1" {
		t.Fatalf("FreeIndividuals = %s", got)
	}
	if got := ids(snap.FreeGroups()); got != "G1-A1" {
		t.Fatalf("FreeGroups = %s", got)
	}
	if got := ids(snap.Groups()); got != "G1-A1,G2-B1" {
		t.Fatalf("Groups = %s", got)
	}
	if got := snap.VehicleIDs(); len(got) != 2 || got[0] != "V1" || got[1] != "V2" {
		t.Fatalf("VehicleIDs = %v, want [V1 V2]", got)
	}
	if snap.Get("missing") != nil {
		t.Fatalf("Get(missing) should be nil")
	}
}

func ids(spaces []*model.Space) string {
	out := ""
	for i, s := range spaces {
		if i > 0 {
			out += ","
		}
		out += s.ID
	}
	return out
}
