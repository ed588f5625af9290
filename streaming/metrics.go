package streaming

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	streamerLabel = "streamer"
	errTypeLabel  = "error_type"
	sourceLabel   = "source"
)

var (
	treeSplits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_tree_splits_total",
		Help: "The number of leaves that were split.",
	}, []string{streamerLabel})

	treeCollapses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_tree_collapses_total",
		Help: "The number of internal nodes that were collapsed into leaves.",
	}, []string{streamerLabel})

	treeHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terrain_tree_height",
		Help: "The depth of the deepest leaf.",
	}, []string{streamerLabel})

	treeNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terrain_tree_nodes",
		Help: "The number of nodes in the tree.",
	}, []string{streamerLabel})

	tickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "terrain_tick_latency",
		Help: "The time to update the tree and its chunks.",
	}, []string{streamerLabel})

	chunksActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terrain_chunks_active",
		Help: "The number of chunks attached to a leaf.",
	}, []string{streamerLabel})

	chunksAcquired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_chunks_acquired_total",
		Help: "The number of chunks attached to a leaf, by where they came from.",
	}, []string{
		streamerLabel,
		sourceLabel,
	})

	meshLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "terrain_mesh_latency",
		Help: "The time to generate a chunk mesh.",
	}, []string{streamerLabel})

	meshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_mesh_errors_total",
		Help: "The errors that occurred while generating a chunk mesh.",
	}, []string{
		streamerLabel,
		errTypeLabel,
	})
)

func instrumentTick(streamer string, start time.Time, s TickSummary) {
	labels := prometheus.Labels{streamerLabel: streamer}

	treeSplits.With(labels).Add(float64(s.Culled))
	treeCollapses.With(labels).Add(float64(s.Collapsed))
	treeHeight.With(labels).Set(float64(s.Height))
	treeNodes.With(labels).Set(float64(s.Nodes))
	chunksActive.With(labels).Set(float64(s.ChunksActive))
	tickLatency.With(labels).Observe(time.Since(start).Seconds())

	chunksAcquired.
		With(prometheus.Labels{
			streamerLabel: streamer,
			sourceLabel:   "pool",
		}).
		Add(float64(s.PoolHits))

	chunksAcquired.
		With(prometheus.Labels{
			streamerLabel: streamer,
			sourceLabel:   "generator",
		}).
		Add(float64(s.Generated))
}

func instrumentMesh(streamer string, start time.Time, err error) {
	if err != nil {
		meshErrors.
			With(prometheus.Labels{
				streamerLabel: streamer,
				errTypeLabel:  errors.Type(err),
			}).
			Inc()
		return
	}

	meshLatency.
		With(prometheus.Labels{streamerLabel: streamer}).
		Observe(time.Since(start).Seconds())
}
