package audiocache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal tracks intercepted media requests by how they were served
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_audio_requests_total",
			Help: "Total intercepted media requests by result",
		},
		[]string{"result"}, // "hit", "fetched", "passthrough", "error"
	)

	// abortedTotal tracks fetches that ended because they were cancelled
	abortedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_audio_fetches_aborted_total",
			Help: "Total media fetches aborted by cancellation",
		},
		[]string{"mode"}, // "direct", "prefetch"
	)

	// prefetchTotal tracks background prefetch outcomes
	prefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_audio_prefetch_total",
			Help: "Total background prefetches by outcome",
		},
		[]string{"outcome"}, // "cached", "skipped", "error", "aborted"
	)
)
