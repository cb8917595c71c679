package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.OrderTransition("pending", "expired")
	p.OrderTransition("pending", "expired")
	p.RateLimitDenied("order")
	p.CSRFRejected()
	p.SessionEnded("idle")
	p.AuditWriteFailed("order_expired")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.orderTransitions.WithLabelValues("pending", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rateLimitDenied.WithLabelValues("order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.csrfRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionsEnded.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.auditFailures.WithLabelValues("order_expired")))
}

func TestNoop_SatisfiesCollector(t *testing.T) {
	var c Collector = Noop{}
	c.OrderTransition("a", "b")
	c.RateLimitDenied("general")
}
