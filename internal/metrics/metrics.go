// Package metrics exposes the prometheus collectors for provisioning,
// discovery and quota decisions. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tillpoint"

// Provisioning outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
	OutcomePartial  = "partial"
)

// Discovery probe results.
const (
	ProbeMatch   = "match"
	ProbeMiss    = "miss"
	ProbeError   = "error"
	ProbeSkipped = "skipped"
)

// Quota decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

type Metrics struct {
	provisions        *prometheus.CounterVec
	discoveryProbes   *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	quotaDecisions    *prometheus.CounterVec
	gatherer          prometheus.Gatherer
}

// New registers the collectors on reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		provisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_total",
			Help:      "Tenant provisioning runs by outcome",
		}, []string{"outcome"}),
		discoveryProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_probes_total",
			Help:      "Tenant probes issued by login discovery, by result",
		}, []string{"result"}),
		discoveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Wall time of a login discovery scan",
			Buckets:   prometheus.DefBuckets,
		}),
		quotaDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota checks by metered role or entity and decision",
		}, []string{"role", "decision"}),
		gatherer: reg,
	}
}

func (m *Metrics) Provision(outcome string) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DiscoveryProbe(result string) {
	if m == nil {
		return
	}
	m.discoveryProbes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDiscovery(d time.Duration) {
	if m == nil {
		return
	}
	m.discoveryDuration.Observe(d.Seconds())
}

func (m *Metrics) QuotaDecision(role string, allowed bool) {
	if m == nil {
		return
	}
	decision := DecisionDeny
	if allowed {
		decision = DecisionAllow
	}
	m.quotaDecisions.WithLabelValues(role, decision).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
