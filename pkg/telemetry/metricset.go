package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stepBuckets span a git commit up to a full CI build.
var stepBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800, 3600}

// MetricSet counts started and handled operations of one kind and times them.
// Handled operations carry an extra "status" label.
type MetricSet struct {
	LabelNames     []string
	StartedCounter *prometheus.CounterVec
	HandledCounter *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
}

func NewMetricSet(app, kind string, labelNames []string) *MetricSet {
	prefix := fmt.Sprintf("%s_%s", app, kind)

	return &MetricSet{
		LabelNames: labelNames,
		StartedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_started_total",
			Help: "Total number of operations started.",
		}, labelNames),
		HandledCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_handled_total",
			Help: "Total number of operations completed, regardless of success or failure.",
		}, append(append([]string{}, labelNames...), "status")),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_handling_seconds",
			Help:    "Histogram of the duration (seconds) of operations.",
			Buckets: stepBuckets,
		}, labelNames),
	}
}

func (m *MetricSet) Start(labelValues []string) {
	m.StartedCounter.WithLabelValues(labelValues...).Inc()
}

func (m *MetricSet) Observe(start, end time.Time, status string, labelValues []string) {
	m.HandledCounter.WithLabelValues(append(append([]string{}, labelValues...), status)...).Inc()
	m.Duration.WithLabelValues(labelValues...).Observe(end.Sub(start).Seconds())
}

func (m *MetricSet) Describe(ch chan<- *prometheus.Desc) {
	m.StartedCounter.Describe(ch)
	m.HandledCounter.Describe(ch)
	m.Duration.Describe(ch)
}

func (m *MetricSet) Collect(ch chan<- prometheus.Metric) {
	m.StartedCounter.Collect(ch)
	m.HandledCounter.Collect(ch)
	m.Duration.Collect(ch)
}
