// Package metrics records bill lifecycle and HTTP metrics in Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mivaca"

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var errMissingRegistry = errors.New("metrics registry is required")

// Collector owns every metric exported by the service.
type Collector struct {
	registry *prometheus.Registry

	sessionsCreated prometheus.Counter
	commands        *prometheus.CounterVec
	payments        prometheus.Counter
	paymentAmount   prometheus.Histogram
	realtimeDrops   prometheus.Counter
	httpRequests    *prometheus.HistogramVec
}

// NewCollector registers the service metrics on registry.
func NewCollector(registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		return nil, errMissingRegistry
	}
	collector := &Collector{
		registry: registry,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Bill sessions opened.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments registered.",
		}),
		paymentAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_amount",
			Help:      "Registered payment amounts.",
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 12),
		}),
		realtimeDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_total",
			Help:      "Change events dropped because a subscriber buffer was full.",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	for _, metric := range []prometheus.Collector{
		collector.sessionsCreated,
		collector.commands,
		collector.payments,
		collector.paymentAmount,
		collector.realtimeDrops,
		collector.httpRequests,
	} {
		if err := registry.Register(metric); err != nil {
			return nil, err
		}
	}
	return collector, nil
}

// SessionCreated counts a newly opened session.
func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsCreated.Inc()
}

// CommandCompleted counts one handled command.
func (c *Collector) CommandCompleted(command, outcome string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(command, outcome).Inc()
}

// PaymentRecorded counts a payment and observes its amount.
func (c *Collector) PaymentRecorded(amount float64) {
	if c == nil {
		return
	}
	c.payments.Inc()
	c.paymentAmount.Observe(amount)
}

// RealtimeDropped counts an event that could not be delivered.
func (c *Collector) RealtimeDropped() {
	if c == nil {
		return
	}
	c.realtimeDrops.Inc()
}

// ObserveHTTPRequest records the latency of one request.
func (c *Collector) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
