package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

const namespace = "sqlgraph"

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits   *prometheus.CounterVec
	NodeFailures *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	RepairRounds prometheus.Counter
	RoundScore   prometheus.Histogram
	Runs         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits.",
		}, []string{"node_id"}),
		NodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_failures_total",
			Help:      "Node invocations that returned an error.",
		}, []string{"node_id"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node invocations.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"node_id"}),
		RepairRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sql_repair_rounds_total",
			Help:      "SQL synthesis rounds, first candidates included.",
		}),
		RoundScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sql_quality_score",
			Help:      "Heuristic quality score of each SQL candidate.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Requests by outcome.",
		}, []string{"status"}),
		gatherer: reg,
	}
	for _, c := range []prometheus.Collector{m.NodeVisits, m.NodeFailures, m.NodeDuration, m.RepairRounds, m.RoundScore, m.Runs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeID).Inc()
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(e.NodeID).Observe(e.Duration.Seconds())
			if e.Failed {
				m.NodeFailures.WithLabelValues(e.NodeID).Inc()
			}
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			m.Runs.WithLabelValues(e.Status).Inc()
		},
		OnRepairRound: func(ctx context.Context, round int, total float64) {
			m.RepairRounds.Inc()
			m.RoundScore.Observe(total)
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
