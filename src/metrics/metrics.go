package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trustink"

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	submissions         *prometheus.CounterVec
	decisions           *prometheus.CounterVec
	certificatesIssued  prometheus.Counter
	certificatesRevoked prometheus.Counter
	oracleFailures      *prometheus.CounterVec
	oracleLatency       prometheus.Histogram
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submissions accepted, by routing outcome",
		}, []string{"outcome"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "Reviewer decisions, by decision",
		}, []string{"decision"}),
		certificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Certificates issued",
		}),
		certificatesRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_revoked_total",
			Help:      "Certificates revoked",
		}),
		oracleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Scoring oracle calls that fell back to manual review",
		}, []string{"reason"}),
		oracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_latency_seconds",
			Help:      "Scoring oracle call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Submission(outcome string) {
	if m != nil {
		m.submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Decision(decision string) {
	if m != nil {
		m.decisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) CertificateIssued() {
	if m != nil {
		m.certificatesIssued.Inc()
	}
}

func (m *Metrics) CertificateRevoked() {
	if m != nil {
		m.certificatesRevoked.Inc()
	}
}

func (m *Metrics) OracleFailure(reason string) {
	if m != nil {
		m.oracleFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) OracleLatency(d time.Duration) {
	if m != nil {
		m.oracleLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, route, status).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
