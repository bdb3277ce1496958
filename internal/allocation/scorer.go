package allocation

import (
	"math"

	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/model"
)

// Weights of the group score components.
const (
	sizeMatchWeight  = 0.7
	proximityWeight  = 0.3
	distanceHalfSize = 1000.0
)

// SizeMatch is 1 when a group has exactly as many stalls as the vehicle needs
// and falls towards 0 as the counts drift apart.
func SizeMatch(memberCount, vehicleSize int) float64 {
	denom := max(memberCount, vehicleSize)
	if denom <= 0 {
		return 0
	}
	diff := math.Abs(float64(memberCount - vehicleSize))
	return 1 - diff/float64(denom)
}

// Proximity maps a distance to the entrance into (0, 1], 1 at the entrance.
// Negative and NaN distances count as the entrance itself.
func Proximity(distance float64) float64 {
	if !(distance > 0) {
		return 1
	}
	return 1 / (1 + distance/distanceHalfSize)
}

// ScoreGroup rates a group for a vehicle of the given size, in [0, 1].
func ScoreGroup(group *model.Space, vehicleSize int) float64 {
	if group == nil {
		return 0
	}
	return sizeMatchWeight*SizeMatch(len(group.MemberSpaces), vehicleSize) +
		proximityWeight*Proximity(group.DistanceToEntrance)
}

// SelectGroup walks candidates in order and keeps the first one with the
// highest score; a later candidate only wins with a strictly greater score.
// Occupied records and non-groups are skipped. With no usable candidate it
// returns ("", 0).
func SelectGroup(candidates []*model.Space, vehicleSize int) (string, float64) {
	bestID, bestScore := "", 0.0
	for _, g := range candidates {
		if g == nil || !g.IsGroup || g.Occupied {
			continue
		}
		if score := ScoreGroup(g, vehicleSize); score > bestScore {
			bestID, bestScore = g.ID, score
		}
	}
	return bestID, bestScore
}

// AllocateGroup picks the best free group in snap for vehicleSize. It does not
// change anything; issuing the occupying command is up to the caller.
func AllocateGroup(snap *ledger.Snapshot, vehicleSize int) (string, float64) {
	if snap.Empty() {
		return "", 0
	}
	return SelectGroup(snap.FreeGroups(), vehicleSize)
}
