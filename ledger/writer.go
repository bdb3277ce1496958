package ledger

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/model"
)

// Writer is the sole mutator of a Ledger. Each method is one atomic unit:
// occupancy flags and the allocation table change together under the ledger
// lock, so a concurrent Snapshot sees either all of it or none of it.
type Writer struct {
	l *Ledger
}

// EnsureSpaces inserts the records whose IDs are not yet present, keeping the
// given order. Existing records are left untouched. It returns how many
// records were added.
func (w *Writer) EnsureSpaces(ctx context.Context, spaces []*model.Space) int {
	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, s := range spaces {
		if s == nil || s.ID == "" {
			continue
		}
		if _, exists := l.spaces[s.ID]; exists {
			continue
		}
		rec := s.Clone()
		if rec.Occupied && rec.VehicleID == "" {
			rec.VehicleID = model.UnverifiedOccupant
		}
		if !rec.Occupied {
			rec.VehicleID = ""
		}
		l.spaces[rec.ID] = rec
		l.order = append(l.order, rec.ID)
		added++
	}
	if added > 0 {
		l.log.Debug(ctx, "ledger initialised spaces", logging.Int("added", added), logging.Int("total", len(l.order)))
	}
	l.updateMetricsLocked()
	return added
}

// Occupy assigns vehicleID to spaceID. The free flag is checked here, under
// the write lock, so a space chosen from an older snapshot that has since
// been taken fails with ErrSpaceUnavailable and nothing changes.
func (w *Writer) Occupy(ctx context.Context, spaceID, vehicleID string) error {
	if vehicleID == "" || vehicleID == model.UnverifiedOccupant {
		return fmt.Errorf("%w: %q", ErrInvalidVehicle, vehicleID)
	}

	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.spaces[spaceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSpace, spaceID)
	}
	if s.Occupied {
		return fmt.Errorf("%w: %q is held by %q", ErrSpaceUnavailable, spaceID, s.VehicleID)
	}
	if held, ok := l.allocations[vehicleID]; ok {
		return fmt.Errorf("%w: %q is in %q", ErrVehicleAllocated, vehicleID, held)
	}

	s.Occupied = true
	s.VehicleID = vehicleID
	s.LastStateChange = l.clock.Now()
	l.allocations[vehicleID] = spaceID

	l.updateMetricsLocked()
	return nil
}

// Release frees the space held by vehicleID and drops the allocation. An
// unknown vehicle is not an error: it reports ok=false and changes nothing.
func (w *Writer) Release(ctx context.Context, vehicleID string) (spaceID string, ok bool) {
	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	spaceID, ok = l.allocations[vehicleID]
	if !ok {
		return "", false
	}
	delete(l.allocations, vehicleID)

	if s, exists := l.spaces[spaceID]; exists && s.VehicleID == vehicleID {
		s.Occupied = false
		s.VehicleID = ""
		s.LastStateChange = l.clock.Now()
	} else {
		l.log.Warn(ctx, "allocation pointed at a space not holding the vehicle",
			logging.String("vehicle_id", vehicleID),
			logging.String("space_id", spaceID),
		)
	}

	l.updateMetricsLocked()
	return spaceID, true
}

// Observe applies an occupancy reading that does not come from an allocation,
// e.g. a detector confirming a stall is empty. It refuses to touch a space
// held by a tracked vehicle; such a vehicle must be removed first.
func (w *Writer) Observe(ctx context.Context, spaceID string, occupied bool) error {
	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.spaces[spaceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSpace, spaceID)
	}
	if s.Tracked() {
		return fmt.Errorf("%w: %q is held by %q", ErrSpaceUnavailable, spaceID, s.VehicleID)
	}
	if s.Occupied == occupied {
		return nil
	}

	s.Occupied = occupied
	s.VehicleID = ""
	if occupied {
		s.VehicleID = model.UnverifiedOccupant
	}
	s.LastStateChange = l.clock.Now()

	l.updateMetricsLocked()
	return nil
}

// Reset frees every space and clears the allocation table. It returns how
// many vehicles were released.
func (w *Writer) Reset(ctx context.Context) int {
	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for _, id := range l.order {
		s := l.spaces[id]
		if s.Occupied {
			s.Occupied = false
			s.VehicleID = ""
			s.LastStateChange = now
		}
	}
	released := len(l.allocations)
	l.allocations = make(map[string]string)

	l.updateMetricsLocked()
	return released
}
