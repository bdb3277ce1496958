// Package report carries what the simulation tells the outside world:
// allocation outcomes, statistics summaries and lot renderings.
package report

import (
	"context"
	"sync"

	"github.com/signalsfoundry/parking-simulator/internal/command"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/ledger"
)

// Sink receives notifications after the consumer has applied commands.
// Implementations must not block for long; they run on the consumer.
type Sink interface {
	Outcome(ctx context.Context, r command.Result)
	Statistics(ctx context.Context, st ledger.Stats)
}

// Visualizer renders a snapshot. It must not mutate anything it is given.
type Visualizer interface {
	Render(ctx context.Context, snap *ledger.Snapshot, l *layout.Layout) error
}

// LogSink writes notifications as structured log lines.
type LogSink struct {
	log logging.Logger
}

// NewLogSink returns a LogSink writing to log.
func NewLogSink(log logging.Logger) *LogSink {
	if log == nil {
		log = logging.Noop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Outcome(ctx context.Context, r command.Result) {
	fields := []logging.Field{
		logging.String("kind", r.Kind.String()),
	}
	if r.SpaceID != "" {
		fields = append(fields, logging.String("space_id", r.SpaceID))
	}
	if r.VehicleID != "" {
		fields = append(fields, logging.String("vehicle_id", r.VehicleID))
	}
	if r.CommandID != "" {
		ctx = logging.ContextWithCommandID(ctx, r.CommandID)
	}
	if r.Err != nil {
		s.log.Warn(ctx, "command failed", append(fields, logging.Err(r.Err))...)
		return
	}
	if r.Kind == command.KindAllocate {
		fields = append(fields, logging.Float64("score", r.Score))
	}
	s.log.Info(ctx, "command applied", fields...)
}

func (s *LogSink) Statistics(ctx context.Context, st ledger.Stats) {
	s.log.Info(ctx, "parking statistics",
		logging.Int("total", st.Total),
		logging.Int("free", st.Free),
		logging.Int("occupied", st.Occupied),
		logging.Float64("occupancy_rate", st.OccupancyRate),
		logging.Int("active_allocations", st.ActiveAllocations),
		logging.Any("timestamp", st.Timestamp),
	)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	outcomes []command.Result
	stats    []ledger.Stats
	renders  int
}

func (r *Recorder) Outcome(_ context.Context, res command.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, res)
}

func (r *Recorder) Statistics(_ context.Context, st ledger.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, st)
}

// Render counts view refreshes.
func (r *Recorder) Render(context.Context, *ledger.Snapshot, *layout.Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	return nil
}

// Outcomes returns a copy of the recorded outcomes, oldest first.
func (r *Recorder) Outcomes() []command.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Result(nil), r.outcomes...)
}

// Stats returns a copy of the recorded statistics, oldest first.
func (r *Recorder) Stats() []ledger.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Stats(nil), r.stats...)
}

// Renders returns how many times Render was called.
func (r *Recorder) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}
