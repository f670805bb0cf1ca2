package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Duration of each pipeline step, labeled by step name and final status.
	PipelineStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_step_duration_seconds",
		Help:    "Duration of pipeline steps by step and status",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"step", "status"})

	RecommendationsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_recommendations_written_total",
		Help: "Total recommendation rows written by the scoring step",
	})

	CandidatesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_candidates_generated_total",
		Help: "Total candidate pool entries written",
	})

	DriftFeatureSeverity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_drift_psi",
		Help: "Latest PSI value per monitored feature",
	}, []string{"feature"})

	// Serving-side counters.
	RecommendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_recommend_requests_total",
		Help: "Total recommendation API requests by result",
	}, []string{"result"})

	RecommendCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_recommend_cache_hits_total",
		Help: "Recommendation responses served from the Redis cache",
	})
)

func init() {
	prometheus.MustRegister(
		PipelineStepDuration,
		RecommendationsWritten,
		CandidatesGenerated,
		DriftFeatureSeverity,
		RecommendRequests,
		RecommendCacheHits,
	)
}
