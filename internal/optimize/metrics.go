package optimize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial outcomes used as the "outcome" label.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the Prometheus metrics for parameter searches.
type Metrics struct {
	TrialsTotal   *prometheus.CounterVec
	TrialDuration prometheus.Histogram
	BestScore     prometheus.Gauge
}

// NewMetrics creates the search metrics and registers them with reg. A nil
// reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TrialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strategylab",
			Subsystem: "optimize",
			Name:      "trials_total",
			Help:      "Total number of evaluated search trials by outcome",
		}, []string{"outcome"}),
		TrialDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "strategylab",
			Subsystem: "optimize",
			Name:      "trial_duration_seconds",
			Help:      "Wall time of one trial evaluation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		BestScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "strategylab",
			Subsystem: "optimize",
			Name:      "best_score",
			Help:      "Score of the best trial of the most recent search",
		}),
	}
}

func (m *Metrics) observe(t Trial) {
	outcome := OutcomeOK
	if t.Failed() {
		outcome = OutcomeFailed
	}
	m.TrialsTotal.WithLabelValues(outcome).Inc()
	m.TrialDuration.Observe(t.Duration.Seconds())
}
