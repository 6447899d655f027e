// See:
//   https://godoc.org/github.com/prometheus/client_golang/prometheus/push#Pusher.Push
//   https://prometheus.io/docs/instrumenting/pushing/
package telemetry

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	StatusSuccess = "success"
	StatusAborted = "aborted"
	StatusError   = "error"

	DefaultJob = "reml"
)

// Metrics records the outcome of every release step of a run.
type Metrics struct {
	steps *MetricSet
	now   func() time.Time

	// IsAbort tells apart errors caused by the operator declining a step.
	IsAbort func(error) bool
}

func NewMetrics(app string) *Metrics {
	return &Metrics{
		steps: NewMetricSet(app, "step", []string{"project", "step"}),
		now:   time.Now,
	}
}

// Step marks the start of a step and returns the function reporting its end.
func (m *Metrics) Step(project, step string) func(err error) {
	labels := []string{project, step}
	start := m.now()
	m.steps.Start(labels)

	return func(err error) {
		m.steps.Observe(start, m.now(), m.status(err), labels)
	}
}

func (m *Metrics) status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case m.IsAbort != nil && m.IsAbort(err):
		return StatusAborted
	}
	return StatusError
}

// Describe sends the super-set of all possible descriptors of metrics
// collected by this Collector to the provided channel and returns once
// the last descriptor has been sent.
func (m *Metrics) Describe(ch chan<- *prom.Desc) {
	m.steps.Describe(ch)
}

// Collect is called by the Prometheus registry when collecting
// metrics. The implementation sends each collected metric via the
// provided channel and returns once the last metric has been sent.
func (m *Metrics) Collect(ch chan<- prom.Metric) {
	m.steps.Collect(ch)
}

// pushBase can be something like http://pushgateway:9091 (for pushgateway)
// or http://pushgateway:9091/api/ui (for weaveworks/prom-aggregation-gateway)
func (m *Metrics) Push(pushBase, job string) error {
	return push.New(pushBase, job).
		Collector(m).
		Push()
}
