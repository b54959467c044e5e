package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SubmissionsRecorded prometheus.Counter
	SubmissionsFailed   *prometheus.CounterVec
	PeopleCreated       prometheus.Counter
	PeopleDeleted       prometheus.Counter
	PDFsRendered        prometheus.Counter
	SubmitRateLimited   prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxPublishErrors prometheus.Counter
	HTTPRequestLatency  *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_submissions_recorded_total",
			Help: "Total number of submissions committed with their ID photo stored",
		}),
		SubmissionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formvault_submissions_failed_total",
			Help: "Total number of failed submissions by error code",
		}, []string{"code"}),
		PeopleCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_people_created_total",
			Help: "Total number of person records created by reconciliation",
		}),
		PeopleDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_people_deleted_total",
			Help: "Total number of person records deleted",
		}),
		PDFsRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_pdfs_rendered_total",
			Help: "Total number of submission PDFs rendered",
		}),
		SubmitRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_submit_rate_limited_total",
			Help: "Total number of submissions rejected by the rate limiter",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_outbox_published_total",
			Help: "Total number of outbox events published to Kafka",
		}),
		OutboxPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "formvault_outbox_publish_errors_total",
			Help: "Total number of failed outbox publish batches",
		}),
		HTTPRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formvault_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementSubmissionsRecorded() {
	if m == nil {
		return
	}
	m.SubmissionsRecorded.Inc()
}

func (m *Metrics) IncrementSubmissionsFailed(code string) {
	if m == nil {
		return
	}
	m.SubmissionsFailed.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementPeopleCreated() {
	if m == nil {
		return
	}
	m.PeopleCreated.Inc()
}

func (m *Metrics) IncrementPeopleDeleted() {
	if m == nil {
		return
	}
	m.PeopleDeleted.Inc()
}

func (m *Metrics) IncrementPDFsRendered() {
	if m == nil {
		return
	}
	m.PDFsRendered.Inc()
}

func (m *Metrics) IncrementSubmitRateLimited() {
	if m == nil {
		return
	}
	m.SubmitRateLimited.Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxPublishErrors() {
	if m == nil {
		return
	}
	m.OutboxPublishErrors.Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(method, route, status).Observe(seconds)
}
