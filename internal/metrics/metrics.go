// ABOUTME: Prometheus metrics for the update engine and both front ends.
// ABOUTME: Uses promauto package-level collectors on the default registry.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dnsupd"

// EngineResults counts engine submissions by outcome.
var EngineResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "engine",
	Name:      "result_count_total",
	Help:      "Counter of update submissions by outcome.",
}, []string{"outcome"})

// ApplyDuration observes how long backend batch application takes.
var ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "backend",
	Name:      "apply_duration_seconds",
	Help:      "Duration of backend batch application.",
	Buckets:   prometheus.DefBuckets,
})

// DNSRequests counts DNS messages received, by opcode.
var DNSRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "dns",
	Name:      "request_count_total",
	Help:      "Counter of DNS requests handled.",
}, []string{"opcode"})

// DNSResponses counts DNS responses, by rcode.
var DNSResponses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "dns",
	Name:      "response_rcode_count_total",
	Help:      "Counter of DNS responses by rcode.",
}, []string{"rcode"})

// HTTPRequests counts HTTP API requests, by endpoint and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_count_total",
	Help:      "Counter of HTTP API requests.",
}, []string{"endpoint", "status"})
