// Package ledger is the authoritative in-memory store of parking spaces and
// the vehicle to space allocation table.
//
// Any goroutine may take a Snapshot. Mutation is reserved to the single
// Writer handed out by ClaimWriter; the simulator gives it to the command
// dispatcher and nobody else.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/model"
	"github.com/signalsfoundry/parking-simulator/timectrl"
)

var (
	// ErrSpaceUnavailable indicates the target space is no longer free.
	ErrSpaceUnavailable = errors.New("space unavailable")
	// ErrUnknownSpace indicates a space ID that is not in the ledger.
	ErrUnknownSpace = errors.New("space not found")
	// ErrVehicleAllocated indicates the vehicle already holds a space.
	ErrVehicleAllocated = errors.New("vehicle already allocated")
	// ErrInvalidVehicle indicates an empty or reserved vehicle ID.
	ErrInvalidVehicle = errors.New("invalid vehicle id")
	// ErrWriterClaimed indicates a second attempt to obtain the ledger writer.
	ErrWriterClaimed = errors.New("ledger writer already claimed")
	// ErrInvariant indicates the occupancy invariants do not hold.
	ErrInvariant = errors.New("ledger invariant violated")
)

// MetricsRecorder receives occupancy counts after every mutation.
type MetricsRecorder interface {
	SetLedgerCounts(total, free, occupied, allocations int)
}

// Option customises Ledger construction.
type Option func(*Ledger)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock sets the clock used to stamp LastStateChange.
func WithClock(c timectrl.SimClock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Ledger holds space records in insertion order plus the allocation table.
type Ledger struct {
	mu sync.RWMutex

	// order is the insertion order of space IDs; it drives every iteration
	// so that scoring ties resolve the same way on every run.
	order  []string
	spaces map[string]*model.Space

	// allocations maps vehicle ID to space ID.
	allocations map[string]string

	writerClaimed atomic.Bool

	clock   timectrl.SimClock
	log     logging.Logger
	metrics MetricsRecorder
}

// New constructs an empty ledger.
func New(log logging.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = logging.Noop()
	}
	l := &Ledger{
		spaces:      make(map[string]*model.Space),
		allocations: make(map[string]string),
		clock:       wallClock{},
		log:         log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.updateMetricsLocked()
	return l
}

// ClaimWriter hands out the ledger's only Writer. Every later call fails with
// ErrWriterClaimed.
func (l *Ledger) ClaimWriter() (*Writer, error) {
	if !l.writerClaimed.CompareAndSwap(false, true) {
		return nil, ErrWriterClaimed
	}
	return &Writer{l: l}, nil
}

// Len returns the number of space records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// AllocationCount returns the number of vehicles currently allocated.
func (l *Ledger) AllocationCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.allocations)
}

// Snapshot returns a deep copy of the ledger. The copy never changes after it
// is returned and shares nothing with the live records.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	spaces := make([]*model.Space, 0, len(l.order))
	for _, id := range l.order {
		spaces = append(spaces, l.spaces[id].Clone())
	}
	allocations := make(map[string]string, len(l.allocations))
	for v, s := range l.allocations {
		allocations[v] = s
	}
	return newSnapshot(spaces, allocations, l.clock.Now())
}

// Verify checks the occupancy invariants:
//   - a space is occupied exactly when it carries a vehicle ID;
//   - every allocation points at a space holding that vehicle;
//   - every space holding a tracked vehicle has a matching allocation.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verifyLocked()
}

func (l *Ledger) verifyLocked() error {
	for _, id := range l.order {
		s := l.spaces[id]
		if s.Occupied != (s.VehicleID != "") {
			return fmt.Errorf("%w: space %q occupied=%v vehicle=%q", ErrInvariant, id, s.Occupied, s.VehicleID)
		}
		if s.Tracked() {
			if got := l.allocations[s.VehicleID]; got != id {
				return fmt.Errorf("%w: space %q holds vehicle %q allocated to %q", ErrInvariant, id, s.VehicleID, got)
			}
		}
	}
	for vehicleID, spaceID := range l.allocations {
		s, ok := l.spaces[spaceID]
		if !ok || s.VehicleID != vehicleID {
			return fmt.Errorf("%w: vehicle %q allocated to %q which does not hold it", ErrInvariant, vehicleID, spaceID)
		}
	}
	return nil
}

func (l *Ledger) updateMetricsLocked() {
	if l == nil || l.metrics == nil {
		return
	}
	free := 0
	for _, s := range l.spaces {
		if !s.Occupied {
			free++
		}
	}
	total := len(l.spaces)
	l.metrics.SetLedgerCounts(total, free, total-free, len(l.allocations))
}
