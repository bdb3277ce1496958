package ledger

import (
	"sort"
	"time"

	"github.com/signalsfoundry/parking-simulator/model"
)

// Snapshot is an immutable copy of the ledger taken at one instant.
//
// Callers may read Spaces and Allocations freely but must not modify them;
// the allocator contract relies on snapshots being safe to share.
type Snapshot struct {
	// Spaces is in ledger insertion order.
	Spaces []*model.Space
	// Allocations maps vehicle ID to space ID.
	Allocations map[string]string
	TakenAt     time.Time

	index map[string]int
}

// Stats is the statistics summary of a snapshot.
type Stats struct {
	Total             int
	Free              int
	Occupied          int
	OccupancyRate     float64 // percent, 0 when the ledger is empty
	ActiveAllocations int
	Timestamp         time.Time
}

func newSnapshot(spaces []*model.Space, allocations map[string]string, at time.Time) *Snapshot {
	index := make(map[string]int, len(spaces))
	for i, s := range spaces {
		index[s.ID] = i
	}
	return &Snapshot{
		Spaces:      spaces,
		Allocations: allocations,
		TakenAt:     at,
		index:       index,
	}
}

// NewSnapshot builds a detached snapshot from space records, mostly for
// allocator tests. The records are cloned.
func NewSnapshot(spaces []*model.Space, allocations map[string]string, at time.Time) *Snapshot {
	cloned := make([]*model.Space, 0, len(spaces))
	for _, s := range spaces {
		cloned = append(cloned, s.Clone())
	}
	allocs := make(map[string]string, len(allocations))
	for v, s := range allocations {
		allocs[v] = s
	}
	return newSnapshot(cloned, allocs, at)
}

// Empty reports whether the snapshot holds no space at all.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Spaces) == 0
}

// Get returns the space with the given ID, or nil.
func (s *Snapshot) Get(id string) *model.Space {
	if s == nil {
		return nil
	}
	if i, ok := s.index[id]; ok {
		return s.Spaces[i]
	}
	return nil
}

// FreeSpaces returns every free record, individual and group, in ledger order.
func (s *Snapshot) FreeSpaces() []*model.Space {
	return s.filter(func(sp *model.Space) bool { return !sp.Occupied })
}

// FreeIndividuals returns free individual stalls in ledger order.
func (s *Snapshot) FreeIndividuals() []*model.Space {
	return s.filter(func(sp *model.Space) bool { return !sp.IsGroup && !sp.Occupied })
}

// FreeGroups returns free groups in ledger order.
func (s *Snapshot) FreeGroups() []*model.Space {
	return s.filter(func(sp *model.Space) bool { return sp.IsGroup && !sp.Occupied })
}

// Groups returns every group record in ledger order.
func (s *Snapshot) Groups() []*model.Space {
	return s.filter(func(sp *model.Space) bool { return sp.IsGroup })
}

func (s *Snapshot) filter(keep func(*model.Space) bool) []*model.Space {
	if s == nil {
		return nil
	}
	var out []*model.Space
	for _, sp := range s.Spaces {
		if keep(sp) {
			out = append(out, sp)
		}
	}
	return out
}

// VehicleIDs returns the allocated vehicle IDs in sorted order.
func (s *Snapshot) VehicleIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Allocations))
	for id := range s.Allocations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats summarises the snapshot.
func (s *Snapshot) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	st := Stats{
		Total:             len(s.Spaces),
		ActiveAllocations: len(s.Allocations),
		Timestamp:         s.TakenAt,
	}
	for _, sp := range s.Spaces {
		if !sp.Occupied {
			st.Free++
		}
	}
	st.Occupied = st.Total - st.Free
	if st.Total > 0 {
		st.OccupancyRate = float64(st.Occupied) / float64(st.Total) * 100
	}
	return st
}
