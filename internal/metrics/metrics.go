package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policywatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policywatch_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// DocumentCheckStatus background monitoring check stats
	DocumentCheckStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policywatch_document_check_status_total",
			Help: "Number of document monitoring checks by outcome",
		},
		[]string{"status"},
	)

	// DocumentCheckDuration measures one fetch+analyze pass for a document
	DocumentCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policywatch_document_check_duration_seconds",
			Help:    "Duration of single-document monitoring checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// ChangesDetected counts detected changes by significance level
	ChangesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policywatch_changes_detected_total",
			Help: "Number of detected document changes by significance level",
		},
		[]string{"level"},
	)

	// CycleDuration measures whole monitoring cycles
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policywatch_cycle_duration_seconds",
			Help:    "Duration of monitoring cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

// Check outcome label values for DocumentCheckStatus.
const (
	CheckOutcomeChanged   = "changed"
	CheckOutcomeUnchanged = "unchanged"
	CheckOutcomeError     = "error"
)

func Init() {
	prometheus.MustRegister(
		HTTPRequests,
		RequestDuration,
		DocumentCheckStatus,
		DocumentCheckDuration,
		ChangesDetected,
		CycleDuration,
	)
}
