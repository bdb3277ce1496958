// Package allocation scores candidate spaces and turns allocation requests
// into ledger commands.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/parking-simulator/internal/command"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoData indicates the ledger holds no space at all.
	ErrNoData = errors.New("no parking data available")
	// ErrNoFreeSpace indicates every space is occupied.
	ErrNoFreeSpace = errors.New("no free parking spaces available")
	// ErrNoCandidate indicates free spaces exist but none suits the vehicle.
	ErrNoCandidate = errors.New("could not find a suitable parking space")
	// ErrInvalidSize indicates a vehicle size outside 1..3.
	ErrInvalidSize = errors.New("invalid vehicle size")
)

const tracerName = "github.com/signalsfoundry/parking-simulator/internal/allocation"

// SnapshotSource provides read-only copies of the ledger.
type SnapshotSource interface {
	Snapshot() *ledger.Snapshot
}

// Enqueuer accepts commands for the single ledger consumer.
type Enqueuer interface {
	Enqueue(cmd command.Command) (command.Command, error)
}

// OutcomeReporter receives outcomes decided before a command is queued.
// Outcomes of queued commands are reported by the consumer.
type OutcomeReporter interface {
	Outcome(ctx context.Context, r command.Result)
}

// Request describes one single-space allocation attempt.
type Request struct {
	Size             int
	PreferredSection model.Section
	// LoadBalancingWeight is handed to the allocator before it runs, in [0, 1].
	LoadBalancingWeight float64
}

// Coordinator runs allocation attempts end to end. It reads the ledger only
// through snapshots and writes it only by queueing commands.
type Coordinator struct {
	source    SnapshotSource
	queue     Enqueuer
	allocator SpaceAllocator
	reporter  OutcomeReporter
	log       logging.Logger
	tracer    trace.Tracer

	// allocMu makes setting the weight and calling the allocator one step, so
	// concurrent requests with different weights do not interleave.
	allocMu sync.Mutex

	nextVehicle atomic.Uint64
	inflight    sync.WaitGroup
}

// CoordinatorOption customises Coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithReporter attaches the sink for outcomes decided before queueing.
func WithReporter(r OutcomeReporter) CoordinatorOption {
	return func(c *Coordinator) {
		c.reporter = r
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewCoordinator wires a coordinator. A nil allocator falls back to Baseline.
func NewCoordinator(source SnapshotSource, queue Enqueuer, allocator SpaceAllocator, log logging.Logger, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = logging.Noop()
	}
	if allocator == nil {
		allocator = NewBaseline(0)
	}
	c := &Coordinator{
		source:    source,
		queue:     queue,
		allocator: allocator,
		log:       log,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NextVehicleID returns a fresh vehicle ID (V1, V2, ...).
func (c *Coordinator) NextVehicleID() string {
	return fmt.Sprintf("V%d", c.nextVehicle.Add(1))
}

// AllocateSpace picks a space for a new vehicle from a ledger snapshot and
// queues the Allocate command. The consumer's verdict arrives on the returned
// channel; it can still be ledger.ErrSpaceUnavailable if another command took
// the space first. Errors returned here mean nothing was queued; they are
// also reported to the outcome sink.
func (c *Coordinator) AllocateSpace(ctx context.Context, req Request) (<-chan command.Result, error) {
	ctx, span := c.tracer.Start(ctx, "allocation.AllocateSpace", trace.WithAttributes(
		attribute.Int("vehicle.size", req.Size),
		attribute.String("vehicle.preferred_section", string(req.PreferredSection)),
		attribute.Float64("allocation.load_balancing_weight", req.LoadBalancingWeight),
	))
	defer span.End()

	vehicle := model.Vehicle{Size: req.Size, PreferredSection: req.PreferredSection}
	if req.Size < model.MinVehicleSize || req.Size > model.MaxVehicleSize {
		return nil, c.reject(ctx, span, vehicle, fmt.Errorf("%w: %d", ErrInvalidSize, req.Size))
	}

	snap := c.source.Snapshot()
	if snap.Empty() {
		return nil, c.reject(ctx, span, vehicle, ErrNoData)
	}
	if len(snap.FreeSpaces()) == 0 {
		return nil, c.reject(ctx, span, vehicle, ErrNoFreeSpace)
	}

	c.allocMu.Lock()
	c.allocator.SetLoadBalancingWeight(clamp01(req.LoadBalancingWeight))
	spaceID, score, err := c.allocator.Allocate(snap, req.Size, req.PreferredSection)
	c.allocMu.Unlock()
	if err != nil {
		return nil, c.reject(ctx, span, vehicle, fmt.Errorf("allocator: %w", err))
	}
	if spaceID == "" {
		return nil, c.reject(ctx, span, vehicle, ErrNoCandidate)
	}
	if snap.Get(spaceID) == nil {
		return nil, c.reject(ctx, span, vehicle, fmt.Errorf("%w: %q", ledger.ErrUnknownSpace, spaceID))
	}

	vehicle.ID = c.NextVehicleID()
	span.SetAttributes(
		attribute.String("vehicle.id", vehicle.ID),
		attribute.String("space.id", spaceID),
		attribute.Float64("allocation.score", score),
	)
	return c.submit(ctx, span, command.Allocate(spaceID, vehicle, score))
}

// RequestGroup picks the best free group for a vehicle of the given size and
// queues the command that occupies it.
func (c *Coordinator) RequestGroup(ctx context.Context, vehicleSize int) (<-chan command.Result, error) {
	ctx, span := c.tracer.Start(ctx, "allocation.RequestGroup", trace.WithAttributes(
		attribute.Int("vehicle.size", vehicleSize),
	))
	defer span.End()

	vehicle := model.Vehicle{Size: vehicleSize}
	if vehicleSize < model.MinVehicleSize || vehicleSize > model.MaxVehicleSize {
		return nil, c.reject(ctx, span, vehicle, fmt.Errorf("%w: %d", ErrInvalidSize, vehicleSize))
	}

	snap := c.source.Snapshot()
	if snap.Empty() {
		return nil, c.reject(ctx, span, vehicle, ErrNoData)
	}
	groupID, score := AllocateGroup(snap, vehicleSize)
	if groupID == "" {
		return nil, c.reject(ctx, span, vehicle, ErrNoCandidate)
	}

	vehicle.ID = c.NextVehicleID()
	span.SetAttributes(
		attribute.String("vehicle.id", vehicle.ID),
		attribute.String("space.id", groupID),
		attribute.Float64("allocation.score", score),
	)
	return c.submit(ctx, span, command.Allocate(groupID, vehicle, score))
}

// RemoveVehicle queues the removal of vehicleID. Removing a vehicle the
// ledger does not know is a successful no-op.
func (c *Coordinator) RemoveVehicle(ctx context.Context, vehicleID string) (<-chan command.Result, error) {
	ctx, span := c.tracer.Start(ctx, "allocation.RemoveVehicle", trace.WithAttributes(
		attribute.String("vehicle.id", vehicleID),
	))
	defer span.End()
	return c.submit(ctx, span, command.Remove(vehicleID))
}

// GoAllocateSpace runs AllocateSpace on its own goroutine. The outcome only
// reaches the reporter and the consumer's notifications.
func (c *Coordinator) GoAllocateSpace(ctx context.Context, req Request) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if _, err := c.AllocateSpace(ctx, req); err != nil {
			c.log.Debug(ctx, "background allocation not queued", logging.Err(err))
		}
	}()
}

// Wait blocks until every goroutine started by GoAllocateSpace has returned.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) submit(ctx context.Context, span trace.Span, cmd command.Command) (<-chan command.Result, error) {
	reply := make(chan command.Result, 1)
	stored, err := c.queue.Enqueue(cmd.WithReply(reply))
	if err != nil {
		return nil, c.reject(ctx, span, cmd.Vehicle, fmt.Errorf("enqueue %s: %w", cmd.Kind, err))
	}
	span.SetAttributes(attribute.String("command.id", stored.ID))
	c.log.Debug(logging.ContextWithCommandID(ctx, stored.ID), "command queued",
		logging.String("kind", stored.Kind.String()),
		logging.String("space_id", stored.SpaceID),
		logging.String("vehicle_id", stored.Vehicle.ID),
	)
	return reply, nil
}

func (c *Coordinator) reject(ctx context.Context, span trace.Span, v model.Vehicle, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	kind := command.KindAllocate
	if v.Size == 0 && v.ID != "" {
		kind = command.KindRemove
	}
	if c.reporter != nil {
		c.reporter.Outcome(ctx, command.Result{
			Kind:      kind,
			VehicleID: v.ID,
			Err:       err,
		})
	}
	if errors.Is(err, ErrNoCandidate) || errors.Is(err, ErrNoFreeSpace) || errors.Is(err, command.ErrQueueClosed) {
		c.log.Info(ctx, "allocation not possible", logging.Int("vehicle_size", v.Size), logging.Err(err))
	} else {
		c.log.Warn(ctx, "allocation request rejected", logging.Int("vehicle_size", v.Size), logging.Err(err))
	}
	return err
}
