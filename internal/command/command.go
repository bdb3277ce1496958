// Package command defines the deferred operations applied to the occupancy
// ledger and the FIFO queue that carries them to the single consumer.
package command

import (
	"time"

	"github.com/signalsfoundry/parking-simulator/model"
)

// Kind tags the variant of a Command.
type Kind int

const (
	// KindAllocate occupies SpaceID with Vehicle and records the allocation.
	KindAllocate Kind = iota
	// KindRemove releases the space held by VehicleID.
	KindRemove
	// KindRefreshStats publishes a statistics summary.
	KindRefreshStats
	// KindRefreshView renders the current occupancy.
	KindRefreshView
	// KindSpawn generates a random vehicle and starts an allocation request for it.
	KindSpawn
	// KindRemoveRandom removes one allocated vehicle picked at random.
	KindRemoveRandom
	// KindReset frees every space and clears the allocation table.
	KindReset
	// KindObserve applies a detector reading (Occupied) to SpaceID.
	KindObserve
)

func (k Kind) String() string {
	switch k {
	case KindAllocate:
		return "allocate"
	case KindRemove:
		return "remove"
	case KindRefreshStats:
		return "refresh_stats"
	case KindRefreshView:
		return "refresh_view"
	case KindSpawn:
		return "spawn"
	case KindRemoveRandom:
		return "remove_random"
	case KindReset:
		return "reset"
	case KindObserve:
		return "observe"
	default:
		return "unknown"
	}
}

// Mutating reports whether commands of this kind can change the ledger.
func (k Kind) Mutating() bool {
	switch k {
	case KindAllocate, KindRemove, KindRemoveRandom, KindReset, KindObserve:
		return true
	}
	return false
}

// Command is one queued operation. Only the fields relevant to Kind are set.
type Command struct {
	ID   string
	Kind Kind

	SpaceID string
	Vehicle model.Vehicle
	Score   float64
	// Occupied is the detector reading carried by KindObserve.
	Occupied bool

	EnqueuedAt time.Time

	// Reply, when set, receives exactly one Result once the command has been
	// applied. It must be buffered; the consumer never blocks on it.
	Reply chan<- Result
}

// Result is the terminal outcome of a command.
type Result struct {
	CommandID string
	Kind      Kind
	SpaceID   string
	VehicleID string
	Score     float64
	Err       error
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Allocate builds a command that occupies spaceID with v.
func Allocate(spaceID string, v model.Vehicle, score float64) Command {
	return Command{Kind: KindAllocate, SpaceID: spaceID, Vehicle: v, Score: score}
}

// Remove builds a command that releases the space held by vehicleID.
func Remove(vehicleID string) Command {
	return Command{Kind: KindRemove, Vehicle: model.Vehicle{ID: vehicleID}}
}

// RefreshStats builds a statistics refresh notification.
func RefreshStats() Command { return Command{Kind: KindRefreshStats} }

// RefreshView builds a visualization refresh notification.
func RefreshView() Command { return Command{Kind: KindRefreshView} }

// Spawn builds a command that generates and allocates a random vehicle.
func Spawn() Command { return Command{Kind: KindSpawn} }

// RemoveRandom builds a command that removes a random allocated vehicle.
func RemoveRandom() Command { return Command{Kind: KindRemoveRandom} }

// Reset builds a command that frees the whole ledger.
func Reset() Command { return Command{Kind: KindReset} }

// Observe builds a command that applies a detector reading to spaceID.
func Observe(spaceID string, occupied bool) Command {
	return Command{Kind: KindObserve, SpaceID: spaceID, Occupied: occupied}
}

// WithReply returns a copy of c that reports its Result on ch.
func (c Command) WithReply(ch chan<- Result) Command {
	c.Reply = ch
	return c
}

// Respond delivers r on the reply channel if one is set. It never blocks: a
// full channel drops the result.
func (c Command) Respond(r Result) bool {
	if c.Reply == nil {
		return false
	}
	select {
	case c.Reply <- r:
		return true
	default:
		return false
	}
}
