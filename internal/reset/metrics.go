package reset

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/chanreset/internal/taskstore"
)

// Reset outcomes recorded by Metrics.
const (
	OutcomeReset    = "reset"
	OutcomeVanished = "vanished"
	OutcomeFailed   = "failed"
)

// Metrics holds the scheduler's prometheus collectors.
type Metrics struct {
	resets   *prometheus.CounterVec
	duration prometheus.Histogram
	sweeps   prometheus.Counter
	armed    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when it is
// non-nil. When store is non-nil a pending task gauge is registered as well.
func NewMetrics(reg prometheus.Registerer, store *taskstore.Store) *Metrics {
	m := &Metrics{
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chanreset",
			Name:      "resets_total",
			Help:      "Reset operations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chanreset",
			Name:      "reset_duration_seconds",
			Help:      "Wall time of one reset operation, archive included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chanreset",
			Name:      "sweeps_total",
			Help:      "Sweep cycles run.",
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chanreset",
			Name:      "armed_timers",
			Help:      "Reset timers currently armed.",
		}),
	}
	if reg == nil {
		return m
	}

	reg.MustRegister(m.resets, m.duration, m.sweeps, m.armed)
	if store != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chanreset",
			Name:      "pending_tasks",
			Help:      "Tasks in the task store.",
		}, func() float64 { return float64(store.Len()) }))
	}
	return m
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	m.resets.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}
