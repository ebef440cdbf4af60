package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Duration of one per-shop pipeline job run
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_job_duration_seconds",
		Help:    "Duration of one per-shop pipeline job run",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// Job run outcomes per job type
	JobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_job_runs_total",
		Help: "Pipeline job runs by job type and outcome",
	}, []string{"job", "status"})

	// Raw events read by each job
	EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_processed_total",
		Help: "Interaction events read per job type",
	}, []string{"job"})

	// Orders handled by the attribution matcher
	AttributionOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_orders_total",
		Help: "Orders processed by the attribution matcher, by outcome",
	}, []string{"outcome"})

	// Revenue credited to recommendations
	AttributedRevenueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attribution_revenue_total",
		Help: "Total revenue attributed to recommendations",
	})
)

func Init() {
	prometheus.MustRegister(
		JobDuration,
		JobRunsTotal,
		EventsProcessedTotal,
		AttributionOrdersTotal,
		AttributedRevenueTotal,
	)
}
