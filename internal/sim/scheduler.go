// Package sim drives the parking simulation: a single consumer applies queued
// commands to the ledger once per tick, and the tick loop injects random
// arrivals, departures and periodic refresh notifications.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/command"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/timectrl"
)

var (
	// ErrStopTimeout is returned by Stop when the loop did not exit in time.
	ErrStopTimeout = errors.New("scheduler did not stop within timeout")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrAbandoned is the result of drained commands skipped because the
	// scheduler was stopping.
	ErrAbandoned = errors.New("command abandoned on stop")
)

// State is the scheduler lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Config tunes the tick loop.
type Config struct {
	// PAdd is the per-tick probability of spawning a vehicle.
	PAdd float64
	// PRemove is the per-tick probability of removing a random vehicle, drawn
	// only while at least one vehicle is allocated.
	PRemove float64
	// RefreshEvery is N: a view refresh every N ticks, statistics every 2N.
	RefreshEvery int
	// AutoAllocate enables random arrivals and departures.
	AutoAllocate bool
	// Seed for the arrival and departure draws. Zero picks a random seed.
	Seed uint64
	// StopTimeout bounds Stop when called with a non-positive timeout.
	StopTimeout time.Duration
}

// DefaultConfig returns the stock simulation parameters.
func DefaultConfig() Config {
	return Config{
		PAdd:         0.1,
		PRemove:      0.05,
		RefreshEvery: 5,
		AutoAllocate: true,
		StopTimeout:  time.Second,
	}
}

// AllocationCounter reports how many vehicles are currently allocated.
type AllocationCounter interface {
	AllocationCount() int
}

// TickMetrics counts executed ticks.
type TickMetrics interface {
	IncTicks()
}

// Scheduler owns the tick loop. Commands are drained and executed at the
// start of every tick, so producers never touch the ledger directly.
type Scheduler struct {
	cfg        Config
	queue      *command.Queue
	dispatcher *Dispatcher
	counter    AllocationCounter
	clock      *timectrl.TimeController
	log        logging.Logger
	metrics    TickMetrics

	autoAllocate atomic.Bool

	// rng and tickCounter are only touched by Step.
	stepMu      sync.Mutex
	rng         *rand.Rand
	tickCounter int

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption customises Scheduler construction.
type SchedulerOption func(*Scheduler)

// WithTickMetrics attaches a tick counter.
func WithTickMetrics(m TickMetrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(log logging.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScheduler wires the loop. counter is normally the ledger; clock decides
// the wall-clock pace of ticks.
func NewScheduler(cfg Config, queue *command.Queue, dispatcher *Dispatcher, counter AllocationCounter, clock *timectrl.TimeController, opts ...SchedulerOption) *Scheduler {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = DefaultConfig().RefreshEvery
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}
	if clock == nil {
		clock = timectrl.NewTimeController(time.Now().UTC(), time.Second, timectrl.RealTime)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	s := &Scheduler{
		cfg:        cfg,
		queue:      queue,
		dispatcher: dispatcher,
		counter:    counter,
		clock:      clock,
		log:        logging.Noop(),
		rng:        newRand(seed),
	}
	s.autoAllocate.Store(cfg.AutoAllocate)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAutoAllocate toggles random arrivals and departures; it takes effect on
// the next tick.
func (s *Scheduler) SetAutoAllocate(enabled bool) {
	s.autoAllocate.Store(enabled)
}

// AutoAllocate reports whether random arrivals and departures are enabled.
func (s *Scheduler) AutoAllocate() bool {
	return s.autoAllocate.Load()
}

// Start moves STOPPED to RUNNING and launches the tick loop. The loop ends
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return ErrAlreadyRunning
	}
	if s.queue.Closed() {
		return command.ErrQueueClosed
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Running

	go s.loop(loopCtx, s.done)
	s.log.Info(ctx, "scheduler started",
		logging.String("mode", s.clock.Mode.String()),
		logging.Duration("interval", s.clock.WallInterval()),
		logging.Bool("auto_allocate", s.AutoAllocate()),
	)
	return nil
}

// Stop moves RUNNING to STOPPED. It cancels the loop and waits up to timeout
// (the configured StopTimeout when timeout <= 0) for it to exit. Commands
// still queued are left in the queue. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopped
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = s.cfg.StopTimeout
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		s.log.Info(context.Background(), "scheduler stopped", logging.Int("pending_commands", s.queue.Len()))
		return nil
	case <-timer.C:
		s.log.Warn(context.Background(), "scheduler loop still busy after stop", logging.Duration("timeout", timeout))
		return fmt.Errorf("%w (%s)", ErrStopTimeout, timeout)
	}
}

// Shutdown stops the loop like Stop, then closes the queue: later producers
// get command.ErrQueueClosed and commands still queued are answered with
// ErrAbandoned. The scheduler cannot be started again afterwards.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	err := s.Stop(timeout)
	if left := s.queue.Close(); len(left) > 0 {
		s.abandon(context.Background(), left)
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.clock.WallInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step runs one tick: execute every queued command in FIFO order, draw the
// random arrival and departure, then schedule refresh notifications. It is
// called by the loop and may be called directly while the scheduler is
// stopped.
func (s *Scheduler) Step(ctx context.Context) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	now := s.clock.Advance()
	if s.metrics != nil {
		s.metrics.IncTicks()
	}

	batch := s.queue.Drain()
	for i, cmd := range batch {
		if ctx.Err() != nil {
			s.abandon(ctx, batch[i:])
			return
		}
		s.dispatcher.Execute(ctx, cmd)
	}

	if s.autoAllocate.Load() {
		if s.rng.Float64() < s.cfg.PAdd {
			s.enqueue(ctx, command.Spawn())
		}
		if s.counter != nil && s.counter.AllocationCount() > 0 && s.rng.Float64() < s.cfg.PRemove {
			s.enqueue(ctx, command.RemoveRandom())
		}
	}

	s.tickCounter++
	if s.tickCounter%s.cfg.RefreshEvery == 0 {
		s.enqueue(ctx, command.RefreshView())
	}
	if s.tickCounter >= 2*s.cfg.RefreshEvery {
		s.enqueue(ctx, command.RefreshStats())
		s.tickCounter = 0
	}

	if len(batch) > 0 {
		s.log.Debug(ctx, "tick", logging.Int("executed", len(batch)), logging.Any("sim_time", now))
	}
}

func (s *Scheduler) enqueue(ctx context.Context, cmd command.Command) {
	if _, err := s.queue.Enqueue(cmd); err != nil {
		s.log.Debug(ctx, "scheduler command dropped", logging.String("kind", cmd.Kind.String()), logging.Err(err))
	}
}

func (s *Scheduler) abandon(ctx context.Context, cmds []command.Command) {
	for _, cmd := range cmds {
		cmd.Respond(command.Result{CommandID: cmd.ID, Kind: cmd.Kind, Err: ErrAbandoned})
	}
	s.log.Warn(ctx, "commands abandoned on stop", logging.Int("count", len(cmds)))
}
