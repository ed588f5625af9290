package chunkpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	poolLabel   = "pool"
	resultLabel = "result"

	resultHit  = "hit"
	resultMiss = "miss"
)

var (
	chunkPoolRecycled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_pool_recycled_total",
		Help: "The number of chunks handed back to a pool.",
	}, []string{poolLabel})

	chunkPoolRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_pool_requests_total",
		Help: "The number of chunk requests, by hit or miss.",
	}, []string{poolLabel, resultLabel})

	chunkPoolEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_pool_evicted_total",
		Help: "The number of chunks dropped because a size queue was full or the pool was cleared.",
	}, []string{poolLabel})

	chunkPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chunk_pool_size",
		Help: "The number of chunks waiting in a pool.",
	}, []string{poolLabel})
)

func instrumentRecycle(pool string) {
	chunkPoolRecycled.
		With(prometheus.Labels{poolLabel: pool}).
		Inc()
}

func instrumentRequest(pool string, hit bool) {
	result := resultMiss
	if hit {
		result = resultHit
	}

	chunkPoolRequests.
		With(prometheus.Labels{
			poolLabel:   pool,
			resultLabel: result,
		}).
		Inc()
}

func instrumentEvict(pool string, n int) {
	if n == 0 {
		return
	}

	chunkPoolEvicted.
		With(prometheus.Labels{poolLabel: pool}).
		Add(float64(n))
}

func instrumentSize(pool string, n int) {
	chunkPoolSize.
		With(prometheus.Labels{poolLabel: pool}).
		Set(float64(n))
}
