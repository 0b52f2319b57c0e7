package schedulers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var WorkItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_scheduler_work_items_added_total",
	Help: "Total number of events added to the dispatch pool",
}, []string{"pool", "scheduler_type"})

var WorkItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_scheduler_work_items_processed_total",
	Help: "Total number of events processed by the dispatch pool",
}, []string{"pool", "scheduler_type"})

var WorkItemsActive = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_scheduler_work_items_active_total",
	Help: "Total number of events passed into a worker",
}, []string{"pool", "scheduler_type"})

var WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "kantek_scheduler_workers_active",
	Help: "Number of workers currently active",
}, []string{"pool", "scheduler_type"})

var KeysQueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "kantek_scheduler_keys_queued",
	Help: "Number of chats with queued or in-flight events",
}, []string{"pool", "scheduler_type"})
