// Package monitoring holds the Prometheus metrics for the write path.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	WriteAttempts *prometheus.CounterVec
	Fallbacks     prometheus.Counter
	ResolverPages prometheus.Counter
	BatchItems    *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WriteAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtprovision_write_attempts_total",
			Help: "Landing write attempts by channel and outcome.",
		}, []string{"channel", "outcome"}), // outcome: success, error
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtprovision_write_fallbacks_total",
			Help: "Direct writes rejected with 403 and retried through the browser.",
		}),
		ResolverPages: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtprovision_resolver_pages_total",
			Help: "Domain listing pages fetched while resolving domains.",
		}),
		BatchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtprovision_batch_items_total",
			Help: "Batch items processed by outcome.",
		}, []string{"outcome"}),
	}
}

// IncWriteAttempt counts one attempt on channel.
func (m *Metrics) IncWriteAttempt(channel string, success bool) {
	if m == nil {
		return
	}
	m.WriteAttempts.WithLabelValues(channel, outcome(success)).Inc()
}

// IncFallback counts one hop from the direct to the automated channel.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// IncResolverPage counts one listing page fetch.
func (m *Metrics) IncResolverPage() {
	if m == nil {
		return
	}
	m.ResolverPages.Inc()
}

// IncBatchItem counts one finished batch item.
func (m *Metrics) IncBatchItem(success bool) {
	if m == nil {
		return
	}
	m.BatchItems.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
