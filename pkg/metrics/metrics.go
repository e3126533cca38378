package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	snapshotAPI = "snapshot_api"

	// Job metrics
	jobsTotal          = "jobs_total"
	jobDurationSeconds = "job_duration_seconds"

	// Artifact metrics
	artifactsCount = "artifacts_count"

	// Labels
	jobResultLabel = "result"
)

const (
	JobResultSucceeded = "succeeded"
	JobResultFailed    = "failed"
)

var jobsTotalLabels = []string{
	jobResultLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: snapshotAPI,
		Name:      jobsTotal,
		Help:      "number of total snapshot jobs by result",
	},
	jobsTotalLabels,
)

var jobDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: snapshotAPI,
		Name:      jobDurationSeconds,
		Help:      "wall time of snapshot jobs",
		Buckets:   []float64{1, 5, 15, 60, 300, 900},
	},
)

var artifactsCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: snapshotAPI,
		Name:      artifactsCount,
		Help:      "number of snapshot artifacts currently on disk",
	},
)

func IncreaseJobsTotalMetric(result string) {
	labels := prometheus.Labels{
		jobResultLabel: result,
	}
	jobsTotalMetric.With(labels).Inc()
}

func ObserveJobDurationMetric(seconds float64) {
	jobDurationMetric.Observe(seconds)
}

func UpdateArtifactsCountMetric(count int) {
	artifactsCountMetric.Set(float64(count))
}

// PrometheusMetricsHandler serves the default prometheus registry.
type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(artifactsCountMetric)
}
