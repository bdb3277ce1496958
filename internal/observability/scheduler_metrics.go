package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared by the command and allocation counters.
const (
	ResultOK       = "ok"
	ResultRaceLost = "race_lost"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultPanic    = "panic"
)

// SchedulerCollector exposes metrics for the tick loop and the command
// consumer.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	Ticks           prometheus.Counter
	QueueDepth      prometheus.Gauge
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parksim_ticks_total",
		Help: "Number of simulation ticks executed.",
	}), "parksim_ticks_total")
	if err != nil {
		return nil, err
	}

	depth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parksim_command_queue_depth",
		Help: "Number of commands waiting for the consumer.",
	}), "parksim_command_queue_depth")
	if err != nil {
		return nil, err
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parksim_commands_total",
		Help: "Commands executed by the consumer, labeled by kind and result.",
	}, []string{"kind", "result"})
	commands, err = registerCounterVec(reg, commands, "parksim_commands_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parksim_command_duration_seconds",
		Help:    "Time spent applying a single command.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind"})
	durations, err = registerHistogramVec(reg, durations, "parksim_command_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:        gatherer,
		Ticks:           ticks,
		QueueDepth:      depth,
		Commands:        commands,
		CommandDuration: durations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncTicks counts one tick.
func (c *SchedulerCollector) IncTicks() {
	if c == nil || c.Ticks == nil {
		return
	}
	c.Ticks.Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (c *SchedulerCollector) SetQueueDepth(depth int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(depth))
}

// ObserveCommand records the result and duration of one executed command.
func (c *SchedulerCollector) ObserveCommand(kind, result string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Commands != nil {
		c.Commands.WithLabelValues(kind, result).Inc()
	}
	if c.CommandDuration != nil {
		c.CommandDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
