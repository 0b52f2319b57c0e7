package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_events_dispatched",
	Help: "Number of events handed to the dispatcher",
}, []string{"kind"})

var handlerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_handler_invocations",
	Help: "Number of handler invocations",
}, []string{"handler"})

var handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_handler_failures",
	Help: "Number of handler invocations which returned an error or panicked",
}, []string{"handler", "kind"})

var handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "kantek_handler_duration_sec",
	Help:    "Duration of handler invocations",
	Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
}, []string{"handler"})
