package timectrl

import (
	"sync"
	"time"
)

// SimClock is the read side of the simulation clock. Components that stamp
// state changes depend on this rather than on the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime follows the wall clock and ticks once per Tick.
	RealTime Mode = iota
	// Accelerated steps simulation time by Tick as fast as the loop can run.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// acceleratedPause is the wall-clock wait between accelerated ticks so an
// idle loop still yields to producers.
const acceleratedPause = time.Millisecond

// TimeController owns simulation time for the scheduler loop.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves simulation time to t without counting a tick.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Advance records one tick and returns the new simulation time. In RealTime
// mode simulation time snaps to the wall clock; in Accelerated mode it moves
// forward by exactly Tick.
func (tc *TimeController) Advance() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.ticks++
	if tc.Mode == RealTime {
		tc.currentTime = time.Now().UTC()
	} else {
		tc.currentTime = tc.currentTime.Add(tc.Tick)
	}
	return tc.currentTime
}

// Ticks returns how many times Advance has been called.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// WallInterval is how long the scheduler loop waits between ticks.
func (tc *TimeController) WallInterval() time.Duration {
	if tc.Mode == Accelerated || tc.Tick <= 0 {
		return acceleratedPause
	}
	return tc.Tick
}
