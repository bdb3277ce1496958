package allocation

import (
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/model"
)

// IsVertical reports whether the bounding box of the group's members is
// taller than it is wide. ok is false when no member resolves in l.
func IsVertical(l *layout.Layout, group *model.Space) (vertical, ok bool) {
	if l == nil || group == nil || len(group.MemberSpaces) == 0 {
		return false, false
	}
	box, resolved := layout.BoundingBox(l, group.MemberSpaces)
	if len(resolved) == 0 {
		return false, false
	}
	return box.H > box.W, true
}

// AreOpposite reports whether one group runs vertically and the other
// horizontally. Anything it cannot resolve yields false.
func AreOpposite(l *layout.Layout, g1, g2 *model.Space) bool {
	v1, ok1 := IsVertical(l, g1)
	v2, ok2 := IsVertical(l, g2)
	if !ok1 || !ok2 {
		return false
	}
	return v1 != v2
}

// OppositePairs lists every pair of groups, in input order, whose
// orientations differ.
func OppositePairs(l *layout.Layout, groups []*model.Space) [][2]string {
	var pairs [][2]string
	for i := range groups {
		for j := i + 1; j < len(groups); j++ {
			if AreOpposite(l, groups[i], groups[j]) {
				pairs = append(pairs, [2]string{groups[i].ID, groups[j].ID})
			}
		}
	}
	return pairs
}
