package farmsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync directions used as metric labels.
const (
	directionUpload   = "upload"
	directionDownload = "download"
)

// Metrics collects sync counters. A nil *Metrics records nothing.
type Metrics struct {
	passes   *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pending  prometheus.Gauge
}

// NewMetrics creates the sync metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmsync",
			Name:      "sync_passes_total",
			Help:      "Sync passes by direction and result.",
		}, []string{"direction", "result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmsync",
			Name:      "sync_rows_total",
			Help:      "Records processed by sync passes.",
		}, []string{"entity", "direction", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "farmsync",
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "farmsync",
			Name:      "pending_records",
			Help:      "Local records awaiting upload.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.passes, m.rows, m.duration, m.pending)
	}
	return m
}

func (m *Metrics) observePass(direction string, start time.Time, err error, failed int) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case failed > 0:
		result = "partial"
	}
	m.passes.WithLabelValues(direction, result).Inc()
	m.duration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeRow(kind EntityKind, direction, outcome string) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(string(kind), direction, outcome).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
