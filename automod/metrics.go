package automod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "kantek_moderation_duration_sec",
	Help:    "Total duration of gban/ungban invocations, including pacing pauses",
	Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
}, []string{"op"})

var identityOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_moderation_identities",
	Help: "Number of identities processed by gban/ungban, by outcome",
}, []string{"op", "outcome"})

var coordinationPosts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_coordination_posts",
	Help: "Number of messages posted to coordination channels",
}, []string{"op", "status"})

var externalSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_reputation_syncs",
	Help: "Number of ban mirror calls to the reputation service",
}, []string{"op", "status"})

var banLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kantek_ban_lookups",
	Help: "Number of ban list lookups, by cache result",
}, []string{"cache"})
