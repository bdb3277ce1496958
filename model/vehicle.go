package model

// Vehicle sizes are expressed in stalls.
const (
	MinVehicleSize = 1
	MaxVehicleSize = 3
)

// Vehicle only exists while it is allocated to a space.
type Vehicle struct {
	ID   string
	Size int
	// PreferredSection is empty when the vehicle has no preference.
	PreferredSection Section
}
