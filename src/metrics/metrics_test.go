package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission("approved")
	m.Submission("approved")
	m.Submission("flagged")
	m.CertificateIssued()
	m.OracleFailure("timeout")
	m.OracleLatency(150 * time.Millisecond)
	m.HTTPRequest("GET", "/api/registry", "200", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.certificatesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleFailures.WithLabelValues("timeout")))

	n, err := testutil.GatherAndCount(reg, "trustink_submissions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Submission("approved")
	m.Decision("rejected")
	m.CertificateRevoked()
	m.HTTPRequest("GET", "/", "200", 0)
}
