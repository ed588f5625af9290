// Package quadtree maintains a quadtree over a planar surface that is
// subdivided near a moving viewer and collapsed away from it.
package quadtree

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// ErrTypeInvalidArgument is the error type returned when a tree is built
	// from invalid parameters.
	ErrTypeInvalidArgument = "quadtree_invalid_argument"
)

// Report describes the structural changes made by one update.
type Report struct {
	// Nodes that went from leaf to internal, in visit order.
	Culled []*Node

	// Nodes that went from internal to leaf.
	Collapsed []*Node

	// Nodes materialized by splits.
	Created []*Node

	// Nodes discarded by collapses. A node always comes after its
	// descendants.
	Removed []*Node
}

// Empty reports whether the update changed nothing.
func (r Report) Empty() bool {
	return len(r.Culled) == 0 && len(r.Collapsed) == 0
}

// Tree is a quadtree that subdivides around a viewer.
//
// A Tree is not safe for concurrent use. It is meant to be updated once per
// frame by a single goroutine.
type Tree struct {
	root           *Node
	minChunkSize   float64
	sizeMultiplier float64
	viewer         Viewer
	height         int
	nodeCount      int
}

// New returns a tree rooted at the given node. Nodes of minChunkSize or
// smaller are never split. sizeMultiplier scales the subdivision distance
// of every node relative to its size.
func New(root *Node, minChunkSize, sizeMultiplier float64) (*Tree, error) {
	if root == nil {
		return nil, errors.New("root node is nil").
			WithType(ErrTypeInvalidArgument)
	}

	if root.parent != nil {
		return nil, errors.New("root node has a parent").
			WithType(ErrTypeInvalidArgument).
			WithTag("root", root.String())
	}

	if !isFinite(root.size) || root.size <= 0 {
		return nil, errors.New("root size must be positive").
			WithType(ErrTypeInvalidArgument).
			WithTag("size", root.size)
	}

	if !isFinite(minChunkSize) || minChunkSize <= 0 {
		return nil, errors.New("min chunk size must be positive").
			WithType(ErrTypeInvalidArgument).
			WithTag("min_chunk_size", minChunkSize)
	}

	if !isFinite(sizeMultiplier) || sizeMultiplier < 0 {
		return nil, errors.New("size multiplier must not be negative").
			WithType(ErrTypeInvalidArgument).
			WithTag("size_multiplier", sizeMultiplier)
	}

	t := &Tree{
		root:           root,
		minChunkSize:   minChunkSize,
		sizeMultiplier: sizeMultiplier,
	}

	root.Walk(func(n *Node) bool {
		t.nodeCount++
		if n.IsLeaf() && n.depth > t.height {
			t.height = n.depth
		}
		return true
	})
	return t, nil
}

// SetViewer attaches the viewer the tree subdivides around. A nil viewer
// detaches the current one.
func (t *Tree) SetViewer(v Viewer) {
	t.viewer = v
}

// GetViewer returns the attached viewer, nil when none is attached.
func (t *Tree) GetViewer() Viewer {
	return t.viewer
}

// GetRootNode returns the root of the tree.
func (t *Tree) GetRootNode() *Node {
	return t.root
}

// GetTreeHeight returns the greatest depth among the leaves after the latest
// update.
func (t *Tree) GetTreeHeight() int {
	return t.height
}

// MinChunkSize returns the size at or below which nodes stay leaves.
func (t *Tree) MinChunkSize() float64 {
	return t.minChunkSize
}

// SizeMultiplier returns the subdivision distance multiplier of the tree.
func (t *Tree) SizeMultiplier() float64 {
	return t.sizeMultiplier
}

// NodeCount returns the number of nodes in the tree.
func (t *Tree) NodeCount() int {
	return t.nodeCount
}

// Leaves returns the current leaves in depth-first order.
func (t *Tree) Leaves() []*Node {
	return t.root.Leaves()
}

// FindLeaf returns the leaf containing p, or nil when p is outside the root.
func (t *Tree) FindLeaf(p mgl64.Vec2) *Node {
	n := t.root
	if !n.Contains(p) {
		return nil
	}

	for n.children != nil {
		next := n.children[0]
		for _, c := range n.children {
			if c.Contains(p) {
				next = c
				break
			}
		}
		n = next
	}
	return n
}

// Update splits the nodes close enough to the viewer and collapses the
// others. It returns the nodes that went from leaf to internal.
//
// Update is a no-op when no viewer is attached.
func (t *Tree) Update() []*Node {
	return t.UpdateReport().Culled
}

// UpdateReport is like Update but returns every structural change made.
func (t *Tree) UpdateReport() Report {
	if t.viewer == nil {
		return Report{}
	}

	u := updater{
		tree:   t,
		viewer: Snapshot(t.viewer),
	}
	u.visit(t.root)

	t.height = u.height
	t.nodeCount += 4*len(u.report.Culled) - len(u.report.Removed)
	return u.report
}

// Print writes an indented representation of the tree to w.
func (t *Tree) Print(w io.Writer) error {
	var err error
	t.root.Walk(func(n *Node) bool {
		if err != nil {
			return false
		}
		_, err = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", n.depth), n)
		return true
	})
	return err
}

func (t *Tree) String() string {
	var b strings.Builder
	t.Print(&b)
	return b.String()
}

type updater struct {
	tree   *Tree
	viewer StaticViewer
	report Report
	height int
}

func (u *updater) visit(n *Node) {
	if u.shouldSplit(n) {
		if n.IsLeaf() {
			children := n.split()
			u.report.Culled = append(u.report.Culled, n)
			u.report.Created = append(u.report.Created, children[:]...)
		}

		for _, c := range n.children {
			u.visit(c)
		}
		return
	}

	if n.HasChildren() {
		u.report.Removed = n.collapse(u.report.Removed)
		u.report.Collapsed = append(u.report.Collapsed, n)
	}

	if n.depth > u.height {
		u.height = n.depth
	}
}

// shouldSplit reports whether the viewer is within the subdivision distance
// of the node. The distance is the node size scaled by both multipliers,
// capped by the view distance. The cap has no effect whenever the view
// distance is at least the scaled size.
func (u *updater) shouldSplit(n *Node) bool {
	if n.size <= u.tree.minChunkSize {
		return false
	}

	threshold := math.Min(
		u.viewer.Distance,
		n.size*u.tree.sizeMultiplier*u.viewer.Multiplier,
	)
	return PlanarDistance(u.viewer.Pos, n.Center()) < threshold
}
