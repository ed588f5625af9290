package streaming

import (
	"context"

	"github.com/aukilabs/lodterrain/featureflag"
	"github.com/aukilabs/lodterrain/quadtree"
)

// TreeSnapshot is a read-only copy of the tree state after a tick.
type TreeSnapshot struct {
	Tick   uint64         `json:"tick"`
	Height int            `json:"height"`
	Nodes  int            `json:"nodes"`
	Leaves []LeafSnapshot `json:"leaves,omitempty"`
}

// LeafSnapshot describes a displayed leaf.
type LeafSnapshot struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Size    float64 `json:"size"`
	Depth   int     `json:"depth"`
	Detail  int     `json:"detail"`
	ChunkID string  `json:"chunk_id,omitempty"`
}

// Summary returns the summary of the latest tick.
func (s *Streamer) Summary() TickSummary {
	s.publishMutex.RLock()
	defer s.publishMutex.RUnlock()

	return s.summary
}

// Snapshot returns the tree state after the latest tick. The returned value
// must not be modified.
func (s *Streamer) Snapshot() *TreeSnapshot {
	s.publishMutex.RLock()
	defer s.publishMutex.RUnlock()

	if s.snapshot == nil {
		return &TreeSnapshot{}
	}
	return s.snapshot
}

// WaitSummary blocks until a tick newer than the given one is published and
// returns its summary.
func (s *Streamer) WaitSummary(ctx context.Context, after uint64) (TickSummary, error) {
	for {
		s.publishMutex.RLock()
		summary := s.summary
		published := s.published
		s.publishMutex.RUnlock()

		if summary.Tick > after {
			return summary, nil
		}

		select {
		case <-ctx.Done():
			return TickSummary{}, ctx.Err()

		case <-published:
		}
	}
}

func (s *Streamer) publish(summary TickSummary, leaves []*quadtree.Node) {
	snapshot := &TreeSnapshot{
		Tick:   summary.Tick,
		Height: summary.Height,
		Nodes:  summary.Nodes,
	}

	s.flags.IfNotSet(featureflag.FlagDisableTreeSnapshot, func() {
		snapshot.Leaves = make([]LeafSnapshot, len(leaves))
		for i, n := range leaves {
			p := n.Position()
			leaf := LeafSnapshot{
				X:      p.X(),
				Y:      p.Y(),
				Size:   n.Size(),
				Depth:  n.Depth(),
				Detail: s.lod.ComputeLOD(n.Depth(), summary.Height),
			}

			if c, ok := s.displayed[n]; ok {
				leaf.ChunkID = c.ID.String()
			}
			snapshot.Leaves[i] = leaf
		}
	})

	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()

	s.summary = summary
	s.snapshot = snapshot
	close(s.published)
	s.published = make(chan struct{})
}
