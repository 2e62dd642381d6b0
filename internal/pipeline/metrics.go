package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts chart pipeline runs by outcome.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketwatch",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Chart pipeline runs by status",
	}, []string{"status"})

	// stageSeconds measures each pipeline stage.
	// Labels: stage (fetch, window, forecast, assemble, indices)
	stageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketwatch",
		Subsystem: "pipeline",
		Name:      "stage_seconds",
		Help:      "Duration of pipeline stages in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	quoteFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketwatch",
		Subsystem: "quote",
		Name:      "fetch_errors_total",
		Help:      "Failed upstream quote fetches by source",
	}, []string{"source"})

	dividendLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketwatch",
		Subsystem: "dividend",
		Name:      "lookups_total",
		Help:      "Dividend lookups by status",
	}, []string{"status"})
)

// ObserveQuoteError records a failed upstream fetch. It matches the
// quote.Router OnError hook.
func ObserveQuoteError(source string, _ error) {
	quoteFetchErrors.WithLabelValues(source).Inc()
}
