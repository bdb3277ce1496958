package allocation

import (
	"sync"

	"github.com/samber/lo"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/model"
)

//go:generate mockgen -destination=mock_allocator_test.go -package=allocation . SpaceAllocator

// SpaceAllocator is the single-space allocation routine. Implementations must
// only read the snapshot they are given. An empty space ID means no suitable
// space was found.
type SpaceAllocator interface {
	SetLoadBalancingWeight(weight float64)
	Allocate(snap *ledger.Snapshot, vehicleSize int, preferred model.Section) (spaceID string, score float64, err error)
}

// Baseline is a simple SpaceAllocator: it prefers free spaces close to the
// entrance, blends in how empty the candidate's section is according to the
// load-balancing weight, and halves the score of spaces outside the preferred
// section.
type Baseline struct {
	mu     sync.Mutex
	weight float64
}

// NewBaseline returns a Baseline with the given load-balancing weight.
func NewBaseline(weight float64) *Baseline {
	b := &Baseline{}
	b.SetLoadBalancingWeight(weight)
	return b
}

// SetLoadBalancingWeight clamps weight to [0, 1].
func (b *Baseline) SetLoadBalancingWeight(weight float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weight = clamp01(weight)
}

// LoadBalancingWeight returns the current weight.
func (b *Baseline) LoadBalancingWeight() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.weight
}

// Allocate returns the best free space able to hold vehicleSize stalls. An
// individual stall holds one; a group holds as many as it has members.
func (b *Baseline) Allocate(snap *ledger.Snapshot, vehicleSize int, preferred model.Section) (string, float64, error) {
	if snap.Empty() {
		return "", 0, nil
	}
	weight := b.LoadBalancingWeight()

	candidates := lo.Filter(snap.FreeSpaces(), func(s *model.Space, _ int) bool {
		return capacity(s) >= vehicleSize
	})
	if len(candidates) == 0 {
		return "", 0, nil
	}

	freeBySection := lo.CountValuesBy(snap.FreeSpaces(), func(s *model.Space) model.Section { return s.Section })
	totalBySection := lo.CountValuesBy(snap.Spaces, func(s *model.Space) model.Section { return s.Section })

	bestID, bestScore := "", 0.0
	for _, s := range candidates {
		balance := 0.0
		if total := totalBySection[s.Section]; total > 0 {
			balance = float64(freeBySection[s.Section]) / float64(total)
		}
		score := (1-weight)*Proximity(s.DistanceToEntrance) + weight*balance
		if preferred != "" && s.Section != preferred {
			score *= 0.5
		}
		if score > bestScore {
			bestID, bestScore = s.ID, score
		}
	}
	return bestID, bestScore, nil
}

func capacity(s *model.Space) int {
	if s.IsGroup {
		return len(s.MemberSpaces)
	}
	return 1
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
