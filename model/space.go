package model

import "time"

// Rect is an axis-aligned layout rectangle in image pixels.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Section is the quadrant code of a space relative to the layout bounds.
type Section string

const (
	SectionA1 Section = "A1"
	SectionA2 Section = "A2"
	SectionB1 Section = "B1"
	SectionB2 Section = "B2"
)

// Sections lists every quadrant code in a stable order.
var Sections = []Section{SectionA1, SectionA2, SectionB1, SectionB2}

// Valid reports whether s is one of the four quadrant codes.
func (s Section) Valid() bool {
	switch s {
	case SectionA1, SectionA2, SectionB1, SectionB2:
		return true
	}
	return false
}

// UnverifiedOccupant is the VehicleID carried by a space that is occupied by
// something other than a tracked vehicle: a freshly derived stall nobody has
// confirmed as free, or a stall a detector reports as taken. It never appears
// in the allocation table.
const UnverifiedOccupant = "unverified"

// Space is an individual parking stall or a group of adjacent stalls.
//
// Occupied and VehicleID move together: a space is occupied exactly when it
// carries a vehicle ID. A group's flag is tracked on the group record alone
// and is not reconciled with the occupancy of its members.
type Space struct {
	ID string

	// Position is set for individual stalls only.
	Position *Rect

	IsGroup bool
	// MemberSpaces holds indices into the layout rectangle list, not space IDs.
	MemberSpaces []int

	Occupied  bool
	VehicleID string

	Section            Section
	DistanceToEntrance float64
	LastStateChange    time.Time
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Space) Clone() *Space {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Position != nil {
		pos := *s.Position
		cp.Position = &pos
	}
	if s.MemberSpaces != nil {
		cp.MemberSpaces = append([]int(nil), s.MemberSpaces...)
	}
	return &cp
}

// Tracked reports whether the space holds a vehicle the ledger allocated.
func (s *Space) Tracked() bool {
	return s != nil && s.VehicleID != "" && s.VehicleID != UnverifiedOccupant
}

// Free reports whether the space can take a vehicle.
func (s *Space) Free() bool {
	return s != nil && !s.Occupied
}
