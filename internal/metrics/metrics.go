// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts gateway decisions by outcome and reason.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "decisions_total",
		Help:      "Access gateway decisions by outcome and deny reason.",
	}, []string{"outcome", "reason"})

	EventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "ledger_events_appended_total",
		Help:      "View events durably appended to the ledger.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "ledger_events_dropped_total",
		Help:      "View events lost to a full append buffer or exhausted retries.",
	})

	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "violations_total",
		Help:      "Violation events by reason code.",
	}, []string{"reason"})

	CompositorRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "compositor_rejected_total",
		Help:      "Stamp requests rejected because the pool was saturated.",
	})

	CompositorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "contentguard",
		Name:      "compositor_queue_depth",
		Help:      "Jobs currently queued for the compositor pool.",
	})

	TraceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentguard",
		Name:      "trace_requests_total",
		Help:      "Leak-trace requests by result.",
	}, []string{"result"})
)
