package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/allocation"
	"github.com/signalsfoundry/parking-simulator/internal/command"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/internal/observability"
	"github.com/signalsfoundry/parking-simulator/internal/report"
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrCommandPanic wraps a panic recovered while applying a command.
	ErrCommandPanic = errors.New("command panicked")
	// ErrUnknownCommand is reported for a command kind the dispatcher does not handle.
	ErrUnknownCommand = errors.New("unknown command kind")
	// ErrNoSpawner is reported for Spawn when no coordinator is wired.
	ErrNoSpawner = errors.New("no allocation coordinator configured")
)

const tracerName = "github.com/signalsfoundry/parking-simulator/internal/sim"

// preferenceRate is the share of generated vehicles asking for a section.
const preferenceRate = 0.2

// Spawner starts an allocation attempt for a generated vehicle.
type Spawner interface {
	GoAllocateSpace(ctx context.Context, req allocation.Request)
}

// CommandMetrics records every executed command.
type CommandMetrics interface {
	ObserveCommand(kind, result string, d time.Duration)
}

// AllocationMetrics records applied allocations and removals.
type AllocationMetrics interface {
	ObserveAllocation(kind, result string, score float64)
}

// Dispatcher is the single consumer of the command queue and the only holder
// of the ledger Writer. It is not safe for concurrent use; the scheduler
// calls it from one goroutine.
type Dispatcher struct {
	ledger *ledger.Ledger
	writer *ledger.Writer
	layout *layout.Layout

	spawner Spawner
	sink    report.Sink
	view    report.Visualizer

	log         logging.Logger
	tracer      trace.Tracer
	cmdMetrics  CommandMetrics
	allocMetric AllocationMetrics

	rng    *rand.Rand
	weight float64
}

// DispatcherOption customises Dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithSpawner wires the coordinator used by Spawn commands.
func WithSpawner(s Spawner) DispatcherOption {
	return func(d *Dispatcher) { d.spawner = s }
}

// WithSink sets where outcomes and statistics are sent.
func WithSink(s report.Sink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

// WithVisualizer sets the renderer used by RefreshView.
func WithVisualizer(v report.Visualizer) DispatcherOption {
	return func(d *Dispatcher) { d.view = v }
}

// WithLogger sets the dispatcher logger.
func WithLogger(log logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithCommandMetrics attaches per-command metrics.
func WithCommandMetrics(m CommandMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.cmdMetrics = m }
}

// WithAllocationMetrics attaches allocation outcome metrics.
func WithAllocationMetrics(m AllocationMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.allocMetric = m }
}

// WithSeed makes vehicle generation and random removal reproducible.
func WithSeed(seed uint64) DispatcherOption {
	return func(d *Dispatcher) { d.rng = newRand(seed) }
}

// WithLoadBalancingWeight is passed along with every generated vehicle.
func WithLoadBalancingWeight(w float64) DispatcherOption {
	return func(d *Dispatcher) { d.weight = w }
}

// NewDispatcher claims the ledger's Writer. It fails with
// ledger.ErrWriterClaimed if another consumer already holds it.
func NewDispatcher(l *ledger.Ledger, lay *layout.Layout, opts ...DispatcherOption) (*Dispatcher, error) {
	w, err := l.ClaimWriter()
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		ledger: l,
		writer: w,
		layout: lay,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Initialize inserts the layout's spaces that the ledger does not hold yet.
// It goes through the dispatcher because the dispatcher owns the Writer.
func (d *Dispatcher) Initialize(ctx context.Context, now time.Time) int {
	if d.layout.Empty() {
		d.log.Warn(ctx, "layout has no spaces; ledger left empty")
		return 0
	}
	added := d.writer.EnsureSpaces(ctx, d.layout.Spaces(ctx, now, d.log))
	d.log.Info(ctx, "ledger initialised", logging.Int("added", added), logging.Int("total", d.ledger.Len()))
	return added
}

// Execute applies one command and reports its outcome. It never panics: a
// panic inside the command is recovered and returned as ErrCommandPanic.
func (d *Dispatcher) Execute(ctx context.Context, cmd command.Command) command.Result {
	start := time.Now()
	ctx = logging.ContextWithCommandID(ctx, cmd.ID)
	ctx, span := d.tracer.Start(ctx, "sim.Execute", trace.WithAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.kind", cmd.Kind.String()),
	))
	defer span.End()

	res, panicked := d.safeApply(ctx, cmd)
	res.CommandID = cmd.ID
	res.Kind = cmd.Kind

	if cmd.Kind.Mutating() {
		if err := d.ledger.Verify(); err != nil {
			d.log.Error(ctx, "ledger invariant violated", logging.Err(err))
			if res.Err == nil {
				res.Err = err
			}
		}
	}

	label := resultLabel(res.Err, panicked)
	switch {
	case panicked:
		d.log.Error(ctx, "command panicked", logging.String("kind", cmd.Kind.String()), logging.Err(res.Err))
	case res.Err != nil && label == observability.ResultError:
		d.log.Warn(ctx, "command failed", logging.String("kind", cmd.Kind.String()), logging.Err(res.Err))
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}

	if cmd.Kind == command.KindAllocate || cmd.Kind == command.KindRemove || cmd.Kind == command.KindRemoveRandom {
		if d.allocMetric != nil {
			d.allocMetric.ObserveAllocation(metricKind(cmd.Kind), label, res.Score)
		}
	}
	if d.cmdMetrics != nil {
		d.cmdMetrics.ObserveCommand(cmd.Kind.String(), label, time.Since(start))
	}
	if d.sink != nil && reportsOutcome(cmd.Kind) {
		d.sink.Outcome(ctx, res)
	}
	cmd.Respond(res)
	return res
}

func (d *Dispatcher) safeApply(ctx context.Context, cmd command.Command) (res command.Result, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			res = command.Result{
				SpaceID:   cmd.SpaceID,
				VehicleID: cmd.Vehicle.ID,
				Err:       fmt.Errorf("%w: %v", ErrCommandPanic, r),
			}
		}
	}()
	return d.apply(ctx, cmd), false
}

func (d *Dispatcher) apply(ctx context.Context, cmd command.Command) command.Result {
	switch cmd.Kind {
	case command.KindAllocate:
		err := d.writer.Occupy(ctx, cmd.SpaceID, cmd.Vehicle.ID)
		if errors.Is(err, ledger.ErrSpaceUnavailable) {
			d.log.Info(ctx, "space taken before allocation applied",
				logging.String("space_id", cmd.SpaceID), logging.String("vehicle_id", cmd.Vehicle.ID))
		}
		return command.Result{SpaceID: cmd.SpaceID, VehicleID: cmd.Vehicle.ID, Score: cmd.Score, Err: err}

	case command.KindRemove:
		spaceID, ok := d.writer.Release(ctx, cmd.Vehicle.ID)
		if !ok {
			d.log.Debug(ctx, "remove ignored; vehicle not allocated", logging.String("vehicle_id", cmd.Vehicle.ID))
		}
		return command.Result{SpaceID: spaceID, VehicleID: cmd.Vehicle.ID}

	case command.KindRemoveRandom:
		vehicles := d.ledger.Snapshot().VehicleIDs()
		if len(vehicles) == 0 {
			return command.Result{}
		}
		vehicleID := vehicles[d.rng.IntN(len(vehicles))]
		spaceID, _ := d.writer.Release(ctx, vehicleID)
		return command.Result{SpaceID: spaceID, VehicleID: vehicleID}

	case command.KindSpawn:
		if d.spawner == nil {
			return command.Result{Err: ErrNoSpawner}
		}
		v := d.RandomVehicle()
		d.log.Debug(ctx, "spawning vehicle", logging.Int("size", v.Size), logging.String("preferred_section", string(v.PreferredSection)))
		d.spawner.GoAllocateSpace(ctx, allocation.Request{
			Size:                v.Size,
			PreferredSection:    v.PreferredSection,
			LoadBalancingWeight: d.weight,
		})
		return command.Result{}

	case command.KindReset:
		released := d.writer.Reset(ctx)
		d.log.Info(ctx, "simulation reset", logging.Int("released", released))
		return command.Result{}

	case command.KindObserve:
		return command.Result{SpaceID: cmd.SpaceID, Err: d.writer.Observe(ctx, cmd.SpaceID, cmd.Occupied)}

	case command.KindRefreshStats:
		st := d.ledger.Snapshot().Stats()
		if d.sink != nil {
			d.sink.Statistics(ctx, st)
		}
		return command.Result{}

	case command.KindRefreshView:
		if d.view == nil {
			return command.Result{}
		}
		return command.Result{Err: d.view.Render(ctx, d.ledger.Snapshot(), d.layout)}

	default:
		return command.Result{Err: fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Kind)}
	}
}

// RandomVehicle draws a vehicle of size 1..3. One in five asks for a
// section, chosen uniformly.
func (d *Dispatcher) RandomVehicle() model.Vehicle {
	v := model.Vehicle{Size: model.MinVehicleSize + d.rng.IntN(model.MaxVehicleSize-model.MinVehicleSize+1)}
	if d.rng.Float64() < preferenceRate {
		v.PreferredSection = model.Sections[d.rng.IntN(len(model.Sections))]
	}
	return v
}

func reportsOutcome(k command.Kind) bool {
	switch k {
	case command.KindRefreshStats, command.KindRefreshView, command.KindSpawn:
		return false
	}
	return true
}

func metricKind(k command.Kind) string {
	if k == command.KindAllocate {
		return "allocate"
	}
	return "remove"
}

func resultLabel(err error, panicked bool) string {
	switch {
	case panicked:
		return observability.ResultPanic
	case err == nil:
		return observability.ResultOK
	case errors.Is(err, ledger.ErrSpaceUnavailable):
		return observability.ResultRaceLost
	case errors.Is(err, ledger.ErrUnknownSpace),
		errors.Is(err, ledger.ErrInvalidVehicle),
		errors.Is(err, ledger.ErrVehicleAllocated):
		return observability.ResultRejected
	default:
		return observability.ResultError
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
