package layout

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/parking-simulator/model"
)

// SectionFor returns the quadrant code of a rectangle's top-left corner: the
// horizontal half (A left of centre, B otherwise) followed by the vertical
// half (1 above centre, 2 otherwise).
func SectionFor(r model.Rect, width, height float64) model.Section {
	col := "B"
	if r.X < width/2 {
		col = "A"
	}
	row := "2"
	if r.Y < height/2 {
		row = "1"
	}
	return model.Section(col + row)
}

// SpaceID is the stable identifier of the individual stall at index.
func SpaceID(r model.Rect, width, height float64, index int) string {
	return fmt.Sprintf("S%d-%s", index+1, SectionFor(r, width, height))
}

// GroupID is the stable identifier of the group at groupIndex whose member
// bounding box is box.
func GroupID(box model.Rect, width, height float64, groupIndex int) string {
	return fmt.Sprintf("G%d-%s", groupIndex+1, SectionFor(box, width, height))
}

// DeriveSpace builds the record for the individual stall at index. New
// records start occupied so that a stall nobody has confirmed as free is
// never offered to a vehicle.
func DeriveSpace(r model.Rect, width, height float64, index int, now time.Time) *model.Space {
	pos := r
	return &model.Space{
		ID:                 SpaceID(r, width, height, index),
		Position:           &pos,
		Occupied:           true,
		Section:            SectionFor(r, width, height),
		DistanceToEntrance: r.X + r.Y,
		LastStateChange:    now,
	}
}

// DeriveGroup builds the record for the group at groupIndex. Members that do
// not resolve to a layout rectangle are dropped; a group with no resolvable
// member is rejected.
func DeriveGroup(l *Layout, members []int, groupIndex int, now time.Time) (*model.Space, error) {
	box, resolved := BoundingBox(l, members)
	if len(resolved) == 0 {
		return nil, fmt.Errorf("group %d: %w", groupIndex+1, ErrEmptyGroup)
	}
	return &model.Space{
		ID:                 GroupID(box, l.Width, l.Height, groupIndex),
		IsGroup:            true,
		MemberSpaces:       resolved,
		Occupied:           true,
		Section:            SectionFor(box, l.Width, l.Height),
		DistanceToEntrance: box.X + box.Y,
		LastStateChange:    now,
	}, nil
}

// BoundingBox returns the axis-aligned box enclosing the member rectangles
// together with the member indices that resolved. Out-of-range or malformed
// members are ignored.
func BoundingBox(l *Layout, members []int) (model.Rect, []int) {
	if l == nil {
		return model.Rect{}, nil
	}
	var box orb.Bound
	resolved := make([]int, 0, len(members))
	for _, idx := range members {
		r, ok := l.Rect(idx)
		if !ok {
			continue
		}
		if len(resolved) == 0 {
			box = bound(r)
		} else {
			box = box.Union(bound(r))
		}
		resolved = append(resolved, idx)
	}
	if len(resolved) == 0 {
		return model.Rect{}, nil
	}
	return model.Rect{
		X: box.Min.X(),
		Y: box.Min.Y(),
		W: box.Max.X() - box.Min.X(),
		H: box.Max.Y() - box.Min.Y(),
	}, resolved
}

func bound(r model.Rect) orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.X, r.Y},
		Max: orb.Point{r.X + r.W, r.Y + r.H},
	}
}
