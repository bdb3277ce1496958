package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerCollector bundles Prometheus metrics describing the occupancy ledger
// and the allocations applied to it.
type LedgerCollector struct {
	gatherer prometheus.Gatherer

	SpacesTotal       prometheus.Gauge
	SpacesFree        prometheus.Gauge
	SpacesOccupied    prometheus.Gauge
	ActiveAllocations prometheus.Gauge

	Allocations     *prometheus.CounterVec
	AllocationScore prometheus.Histogram
}

// NewLedgerCollector registers ledger metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewLedgerCollector(reg prometheus.Registerer) (*LedgerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	total, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_spaces_total",
		Help: "Number of space records (individual stalls and groups) in the ledger.",
	}), "parking_spaces_total")
	if err != nil {
		return nil, err
	}
	free, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_spaces_free",
		Help: "Number of free space records.",
	}), "parking_spaces_free")
	if err != nil {
		return nil, err
	}
	occupied, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_spaces_occupied",
		Help: "Number of occupied space records, including unverified ones.",
	}), "parking_spaces_occupied")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_active_allocations",
		Help: "Number of entries in the vehicle allocation table.",
	}), "parking_active_allocations")
	if err != nil {
		return nil, err
	}

	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_allocations_total",
		Help: "Allocation and removal attempts applied to the ledger, labeled by command kind and result.",
	}, []string{"kind", "result"})
	allocations, err = registerCounterVec(reg, allocations, "parking_allocations_total")
	if err != nil {
		return nil, err
	}

	score, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parking_allocation_score",
		Help:    "Score of the space chosen for each successful allocation.",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	}), "parking_allocation_score")
	if err != nil {
		return nil, err
	}

	return &LedgerCollector{
		gatherer:          gatherer,
		SpacesTotal:       total,
		SpacesFree:        free,
		SpacesOccupied:    occupied,
		ActiveAllocations: active,
		Allocations:       allocations,
		AllocationScore:   score,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LedgerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *LedgerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetLedgerCounts lets the ledger drive the gauges from its mutators.
func (c *LedgerCollector) SetLedgerCounts(total, free, occupied, allocations int) {
	if c == nil {
		return
	}
	if c.SpacesTotal != nil {
		c.SpacesTotal.Set(float64(total))
	}
	if c.SpacesFree != nil {
		c.SpacesFree.Set(float64(free))
	}
	if c.SpacesOccupied != nil {
		c.SpacesOccupied.Set(float64(occupied))
	}
	if c.ActiveAllocations != nil {
		c.ActiveAllocations.Set(float64(allocations))
	}
}

// ObserveAllocation counts one applied allocation or removal. The score is
// recorded only for successful allocations.
func (c *LedgerCollector) ObserveAllocation(kind, result string, score float64) {
	if c == nil {
		return
	}
	if c.Allocations != nil {
		c.Allocations.WithLabelValues(kind, result).Inc()
	}
	if c.AllocationScore != nil && kind == "allocate" && result == ResultOK {
		c.AllocationScore.Observe(score)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
