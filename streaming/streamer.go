// Package streaming keeps the chunks of a terrain in step with a quadtree
// that is subdivided around a moving viewer.
package streaming

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodterrain/chunkpool"
	"github.com/aukilabs/lodterrain/featureflag"
	"github.com/aukilabs/lodterrain/lod"
	"github.com/aukilabs/lodterrain/mesh"
	"github.com/aukilabs/lodterrain/quadtree"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// ErrTypeInvalidArgument is the error type returned when a streamer is
	// created without a mesh generator.
	ErrTypeInvalidArgument = "streaming_invalid_argument"
)

// Config describes the terrain handled by a streamer.
type Config struct {
	// The name that labels logs and metrics. Defaults to "terrain".
	Name string

	// The lower-left corner and the side length of the terrain.
	RootPosition mgl64.Vec2
	RootSize     float64

	// Nodes of this size or smaller are never split.
	MinChunkSize float64

	// Scales the distance under which a node is split, relative to its size.
	SizeMultiplier float64

	// The chunk size the detail table is derived from.
	LODBaseSize int

	// Caps the detail level index. Nil keeps the natural maximum.
	MaxLODLevel *int

	// The maximum number of pooled chunks per key. Zero means unbounded.
	PoolCapacity int

	// The number of goroutines generating meshes. Defaults to the number of
	// CPUs.
	MeshWorkers int

	// The duration between each log summary. Zero disables summaries.
	LogSummaryInterval time.Duration

	FeatureFlags featureflag.FeatureFlag
}

// TickSummary describes what a tick changed.
type TickSummary struct {
	Tick         uint64 `json:"tick"`
	Height       int    `json:"height"`
	Culled       int    `json:"culled"`
	Collapsed    int    `json:"collapsed"`
	Nodes        int    `json:"nodes"`
	Leaves       int    `json:"leaves"`
	ChunksActive int    `json:"chunks_active"`
	PoolHits     int    `json:"pool_hits"`
	Generated    int    `json:"generated"`
	Failed       int    `json:"failed,omitempty"`

	// The sequence number of the viewer source update the tick ran with.
	ViewerUpdate uint64 `json:"viewer_update,omitempty"`
}

// Streamer owns a quadtree, the detail table used to pick chunk resolutions
// and the pool chunks are recycled through.
//
// Tick must be called from a single goroutine. The summary and snapshot
// accessors are safe for concurrent use.
type Streamer struct {
	name      string
	tree      *quadtree.Tree
	lod       *lod.Manager
	pool      chunkpool.Pool[ChunkKey, *Chunk]
	generator mesh.Generator
	workers   pond.Pool
	flags     featureflag.FeatureFlag

	tick         uint64
	viewerUpdate uint64
	displayed    map[*quadtree.Node]*Chunk

	publishMutex sync.RWMutex
	summary      TickSummary
	snapshot     *TreeSnapshot
	published    chan struct{}

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	closeOnce sync.Once
}

// New returns a streamer for the configured terrain. Chunk meshes missing
// from the pool are built with the given generator.
func New(conf Config, g mesh.Generator) (*Streamer, error) {
	if g == nil {
		return nil, errors.New("mesh generator is nil").
			WithType(ErrTypeInvalidArgument)
	}

	if conf.Name == "" {
		conf.Name = "terrain"
	}

	if conf.MeshWorkers <= 0 {
		conf.MeshWorkers = runtime.NumCPU()
	}

	tree, err := quadtree.New(
		quadtree.NewRoot(conf.RootPosition, conf.RootSize),
		conf.MinChunkSize,
		conf.SizeMultiplier,
	)
	if err != nil {
		return nil, errors.New("creating quadtree failed").Wrap(err)
	}

	lodManager, err := lod.New(conf.LODBaseSize)
	if err != nil {
		return nil, errors.New("creating lod manager failed").Wrap(err)
	}

	if conf.MaxLODLevel != nil {
		if err := lodManager.SetActiveMaxLevel(*conf.MaxLODLevel); err != nil {
			return nil, errors.New("setting max lod level failed").Wrap(err)
		}
	}

	s := &Streamer{
		name:            conf.Name,
		tree:            tree,
		lod:             lodManager,
		generator:       g,
		workers:         pond.NewPool(conf.MeshWorkers),
		flags:           conf.FeatureFlags,
		displayed:       make(map[*quadtree.Node]*Chunk),
		published:       make(chan struct{}),
		summaryInterval: conf.LogSummaryInterval,
		counter:         make(map[string]int),
	}

	s.pool = chunkpool.Pool[ChunkKey, *Chunk]{
		Name:       conf.Name,
		MaxPerSize: conf.PoolCapacity,
		OnEvict: func(c *Chunk, _ ChunkKey) {
			c.Mesh = nil
			s.incCounter("chunks_evicted", 1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.closeSummaryWorker = cancel
	if s.summaryInterval > 0 {
		go s.startSummaryWorker(ctx)
	}

	return s, nil
}

// Name returns the name of the streamer.
func (s *Streamer) Name() string {
	return s.name
}

// Tick updates the tree for the given viewer, then releases the chunks of
// the nodes that stopped being displayed and acquires chunks for the leaves
// that need one. Pooled chunks are reused first, missing meshes are generated
// in parallel.
//
// The tree is always consistent when Tick returns. Leaves whose mesh could
// not be generated stay without a chunk and are retried on the next tick.
func (s *Streamer) Tick(ctx context.Context, v quadtree.Viewer) (TickSummary, error) {
	start := time.Now()
	s.tick++

	s.tree.SetViewer(v)
	report := s.tree.UpdateReport()

	for _, n := range report.Culled {
		s.release(n)
	}
	for _, n := range report.Removed {
		s.release(n)
	}

	height := s.tree.GetTreeHeight()
	leaves := s.tree.Leaves()

	summary := TickSummary{
		Tick:         s.tick,
		Height:       height,
		Culled:       len(report.Culled),
		Collapsed:    len(report.Collapsed),
		Nodes:        s.tree.NodeCount(),
		Leaves:       len(leaves),
		ViewerUpdate: s.viewerUpdate,
	}

	var missing []pendingChunk
	for _, n := range leaves {
		key := s.keyOf(n, height)

		if c, ok := s.displayed[n]; ok {
			if c.Key == key {
				continue
			}
			s.release(n)
		}

		if c, ok := s.pool.RequestChunk(key); ok {
			s.attach(c, n)
			summary.PoolHits++
			continue
		}

		missing = append(missing, pendingChunk{
			node: n,
			key:  key,
		})
	}

	err := s.generate(ctx, missing, &summary)

	summary.ChunksActive = len(s.displayed)
	s.publish(summary, leaves)
	instrumentTick(s.name, start, summary)

	s.incCounter("ticks", 1)
	s.incCounter("splits", summary.Culled)
	s.incCounter("collapses", summary.Collapsed)
	s.incCounter("pool_hits", summary.PoolHits)
	s.incCounter("meshes_generated", summary.Generated)
	s.incCounter("mesh_errors", summary.Failed)

	return summary, err
}

// Run ticks the streamer once per frame with the current viewer of source,
// until the context is canceled.
func (s *Streamer) Run(ctx context.Context, source *ViewerSource, frameDuration time.Duration) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			v, update := source.Load()
			s.viewerUpdate = update

			if _, err := s.Tick(ctx, v); err != nil {
				if ctx.Err() != nil {
					return
				}

				logs.WithTag("streamer", s.name).
					WithTag("tick", s.tick).
					Warn(errors.New("terrain tick failed").Wrap(err))
			}
		}
	}
}

// Chunk returns the chunk displayed for the given node.
func (s *Streamer) Chunk(n *quadtree.Node) (*Chunk, bool) {
	c, ok := s.displayed[n]
	return c, ok
}

// LOD returns the detail table of the streamer.
func (s *Streamer) LOD() *lod.Manager {
	return s.lod
}

// Close stops the mesh workers and drops every pooled chunk. Tick must not be
// called after Close.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() {
		s.workers.StopAndWait()
		s.pool.Clear()
		s.closeSummaryWorker()
		s.logSummary()
	})
}

type pendingChunk struct {
	node *quadtree.Node
	key  ChunkKey
	mesh *mesh.Mesh
	err  error
}

func (s *Streamer) keyOf(n *quadtree.Node, height int) ChunkKey {
	return ChunkKey{
		Depth:  n.Depth(),
		Detail: s.lod.ComputeLOD(n.Depth(), height),
	}
}

func (s *Streamer) attach(c *Chunk, n *quadtree.Node) {
	c.Node = n
	s.displayed[n] = c
}

// release detaches the chunk displayed for the node, if any, and parks it in
// the pool with its mesh.
func (s *Streamer) release(n *quadtree.Node) {
	c, ok := s.displayed[n]
	if !ok {
		return
	}

	delete(s.displayed, n)
	c.Node = nil

	s.flags.IfNotSet(featureflag.FlagDisableChunkRecycling, func() {
		s.pool.RecycleChunk(c, c.Key)
	})
}

func (s *Streamer) generate(ctx context.Context, missing []pendingChunk, summary *TickSummary) error {
	if len(missing) == 0 {
		return nil
	}

	build := func(p *pendingChunk) {
		start := time.Now()
		p.mesh, p.err = s.generator.Generate(ctx, mesh.ForDetail(p.key.Detail, p.node.Size()))
		instrumentMesh(s.name, start, p.err)
	}

	parallel := len(missing) > 1
	s.flags.IfSet(featureflag.FlagDisableParallelMeshing, func() {
		parallel = false
	})

	if parallel {
		var wg sync.WaitGroup
		for i := range missing {
			wg.Add(1)
			s.workers.Submit(func() {
				defer wg.Done()
				build(&missing[i])
			})
		}
		wg.Wait()
	} else {
		for i := range missing {
			build(&missing[i])
		}
	}

	var firstErr error
	for _, p := range missing {
		if p.err != nil {
			summary.Failed++
			if firstErr == nil {
				firstErr = errors.New("generating chunk mesh failed").
					WithTag("depth", p.key.Depth).
					WithTag("detail", p.key.Detail).
					WithTag("node", p.node.String()).
					Wrap(p.err)
			}
			continue
		}

		s.attach(newChunk(p.key, p.mesh), p.node)
		summary.Generated++
	}

	if firstErr != nil && summary.Failed > 1 {
		return errors.New("generating chunk meshes failed").
			WithTag("failed", summary.Failed).
			Wrap(firstErr)
	}
	return firstErr
}
