// Package metrics records per-cycle timing and fault counts.
//
// Percentile summaries are kept with Prometheus client types
// (prometheus.Summary, which streams quantile estimates) purely as an
// in-process data structure — this package never starts an HTTP
// listener or registers with a default registry; exposition is the
// control-plane collaborator's job and out of scope here.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CycleRecord captures the timing breakdown of a single cycle.
type CycleRecord struct {
	Wake      time.Time
	Ingress   time.Duration
	Step      time.Duration
	Egress    time.Duration
	Total     time.Duration
	Overrun   bool
	OverrunBy time.Duration
	FaultCode uint32
	Cycle     uint64
}

// Registry is an in-process cycle-timing recorder. It is append-only
// from the cycle thread and safe to read concurrently from a
// diagnostics goroutine.
type Registry struct {
	mu sync.Mutex

	total   prometheus.Summary
	ingress prometheus.Summary
	step    prometheus.Summary
	egress  prometheus.Summary

	overruns prometheus.Counter
	faults   prometheus.Counter
	cycles   prometheus.Counter

	ring     []CycleRecord
	ringNext int
	ringLen  int
}

// Config controls the retained ring buffer depth and the quantiles
// tracked by each summary.
type Config struct {
	HistogramSize int
	Percentiles   []float64
}

// DefaultConfig returns the runtime's default metrics configuration.
func DefaultConfig() Config {
	return Config{
		HistogramSize: 4096,
		Percentiles:   []float64{0.5, 0.9, 0.99},
	}
}

func objectives(percentiles []float64) map[float64]float64 {
	if len(percentiles) == 0 {
		percentiles = DefaultConfig().Percentiles
	}
	obj := make(map[float64]float64, len(percentiles))
	for _, p := range percentiles {
		obj[p] = 0.001
	}
	return obj
}

func newSummary(name, help string, obj map[float64]float64) prometheus.Summary {
	return prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "plcrt",
		Subsystem:  "cycle",
		Name:       name,
		Help:       help,
		Objectives: obj,
		MaxAge:     10 * time.Minute,
	})
}

// New creates a Registry from cfg.
func New(cfg Config) *Registry {
	obj := objectives(cfg.Percentiles)
	size := cfg.HistogramSize
	if size <= 0 {
		size = DefaultConfig().HistogramSize
	}
	return &Registry{
		total:   newSummary("total_seconds", "total cycle duration", obj),
		ingress: newSummary("ingress_seconds", "fieldbus ingress duration", obj),
		step:    newSummary("step_seconds", "logic engine step duration", obj),
		egress:  newSummary("egress_seconds", "fieldbus egress duration", obj),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plcrt", Subsystem: "cycle", Name: "overruns_total",
			Help: "cycles that exceeded period + max_overrun",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plcrt", Subsystem: "cycle", Name: "faults_total",
			Help: "cycles that entered fault state",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plcrt", Subsystem: "cycle", Name: "total",
			Help: "total cycles executed",
		}),
		ring: make([]CycleRecord, size),
	}
}

// Record appends one cycle's timing to the registry.
func (r *Registry) Record(rec CycleRecord) {
	r.total.Observe(rec.Total.Seconds())
	r.ingress.Observe(rec.Ingress.Seconds())
	r.step.Observe(rec.Step.Seconds())
	r.egress.Observe(rec.Egress.Seconds())
	r.cycles.Inc()
	if rec.Overrun {
		r.overruns.Inc()
	}
	if rec.FaultCode != 0 {
		r.faults.Inc()
	}

	r.mu.Lock()
	r.ring[r.ringNext] = rec
	r.ringNext = (r.ringNext + 1) % len(r.ring)
	if r.ringLen < len(r.ring) {
		r.ringLen++
	}
	r.mu.Unlock()
}

// TotalCycles returns the number of cycles recorded.
func (r *Registry) TotalCycles() uint64 {
	return uint64(counterValue(r.cycles))
}

// OverrunCount returns the number of overrun cycles recorded.
func (r *Registry) OverrunCount() uint64 {
	return uint64(counterValue(r.overruns))
}

// FaultCount returns the number of faulted cycles recorded.
func (r *Registry) FaultCount() uint64 {
	return uint64(counterValue(r.faults))
}

// Quantile returns the streaming estimate of the given quantile for
// total cycle duration, or 0 if unavailable.
func (r *Registry) Quantile(q float64) time.Duration {
	return quantileOf(r.total, q)
}

// Recent returns up to n of the most recently recorded cycles, oldest
// first.
func (r *Registry) Recent(n int) []CycleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.ringLen {
		n = r.ringLen
	}
	out := make([]CycleRecord, 0, n)
	start := (r.ringNext - r.ringLen + len(r.ring)) % len(r.ring)
	for i := 0; i < r.ringLen && len(out) < n; i++ {
		idx := (start + i) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func quantileOf(s prometheus.Summary, q float64) time.Duration {
	var m dto.Metric
	if err := s.Write(&m); err != nil {
		return 0
	}
	best := -1.0
	bestDiff := 1.0
	for _, qv := range m.GetSummary().GetQuantile() {
		diff := qv.GetQuantile() - q
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best = qv.GetValue()
			bestDiff = diff
		}
	}
	if best < 0 {
		return 0
	}
	return time.Duration(best * float64(time.Second))
}
