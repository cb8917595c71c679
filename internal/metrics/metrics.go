// Package metrics exposes counters for order transitions and the security
// middleware chain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives domain events worth counting.
type Collector interface {
	OrderTransition(from, to string)
	RateLimitDenied(limiter string)
	CSRFRejected()
	SessionEnded(reason string)
	AuditWriteFailed(action string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) OrderTransition(string, string) {}
func (Noop) RateLimitDenied(string)         {}
func (Noop) CSRFRejected()                  {}
func (Noop) SessionEnded(string)            {}
func (Noop) AuditWriteFailed(string)        {}

// Prometheus records into client_golang counters.
type Prometheus struct {
	orderTransitions *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec
	csrfRejected     prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	auditFailures    *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upilink",
			Name:      "order_transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upilink",
			Name:      "rate_limit_denied_total",
			Help:      "Requests denied by a named rate limiter.",
		}, []string{"limiter"}),
		csrfRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "upilink",
			Name:      "csrf_rejected_total",
			Help:      "Mutating requests rejected by the CSRF guard.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upilink",
			Name:      "sessions_ended_total",
			Help:      "Tracked sessions removed, by reason.",
		}, []string{"reason"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upilink",
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be written.",
		}, []string{"action"}),
	}

	reg.MustRegister(p.orderTransitions, p.rateLimitDenied, p.csrfRejected, p.sessionsEnded, p.auditFailures)
	return p
}

func (p *Prometheus) OrderTransition(from, to string) {
	p.orderTransitions.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) RateLimitDenied(limiter string) {
	p.rateLimitDenied.WithLabelValues(limiter).Inc()
}

func (p *Prometheus) CSRFRejected() {
	p.csrfRejected.Inc()
}

func (p *Prometheus) SessionEnded(reason string) {
	p.sessionsEnded.WithLabelValues(reason).Inc()
}

func (p *Prometheus) AuditWriteFailed(action string) {
	p.auditFailures.WithLabelValues(action).Inc()
}
