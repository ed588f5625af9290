package quadtree

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, position mgl64.Vec2, size, minChunkSize, sizeMultiplier float64) *Tree {
	tree, err := New(NewRoot(position, size), minChunkSize, sizeMultiplier)
	require.NoError(t, err)
	return tree
}

func viewerAt(x, y float64) StaticViewer {
	return NewStaticViewer(mgl64.Vec2{x, y}, 30, 1)
}

func positions(nodes []*Node) []mgl64.Vec2 {
	res := make([]mgl64.Vec2, len(nodes))
	for i, n := range nodes {
		res[i] = n.Position()
	}
	return res
}

func TestNewTree(t *testing.T) {
	const size = 1024

	root := NewRoot(mgl64.Vec2{-size / 2, -size / 2}, size)
	tree, err := New(root, 120, 1)
	require.NoError(t, err)
	require.Same(t, root, tree.GetRootNode())
	require.Nil(t, tree.GetRootNode().Children())
	require.True(t, tree.GetRootNode().IsLeaf())
	require.Nil(t, tree.GetViewer())
	require.Zero(t, tree.GetTreeHeight())
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, float64(120), tree.MinChunkSize())
	require.Equal(t, float64(1), tree.SizeMultiplier())
}

func TestNewTreeInvalidArguments(t *testing.T) {
	child := NewRoot(mgl64.Vec2{}, 8)
	child.split()

	tests := []struct {
		name           string
		root           *Node
		minChunkSize   float64
		sizeMultiplier float64
	}{
		{name: "nil root", root: nil, minChunkSize: 1, sizeMultiplier: 1},
		{name: "root with parent", root: child.Child(NorthEast), minChunkSize: 1, sizeMultiplier: 1},
		{name: "zero root size", root: NewRoot(mgl64.Vec2{}, 0), minChunkSize: 1, sizeMultiplier: 1},
		{name: "zero min chunk size", root: NewRoot(mgl64.Vec2{}, 8), minChunkSize: 0, sizeMultiplier: 1},
		{name: "negative multiplier", root: NewRoot(mgl64.Vec2{}, 8), minChunkSize: 1, sizeMultiplier: -1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tree, err := New(test.root, test.minChunkSize, test.sizeMultiplier)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidArgument))
			require.Nil(t, tree)
		})
	}
}

func TestTreeUpdateWithoutViewer(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)

	culled := tree.Update()
	require.Empty(t, culled)
	require.True(t, tree.GetRootNode().IsLeaf())
	require.Zero(t, tree.GetTreeHeight())

	tree.SetViewer(viewerAt(4, 4))
	tree.Update()
	require.False(t, tree.GetRootNode().IsLeaf())

	tree.SetViewer(nil)
	require.Empty(t, tree.Update())
	require.False(t, tree.GetRootNode().IsLeaf())
}

func TestTreeUpdateFarViewer(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
	tree.SetViewer(viewerAt(1000, 1000))

	require.Empty(t, tree.Update())
	require.Zero(t, tree.GetTreeHeight())
	require.True(t, tree.GetRootNode().IsLeaf())
}

func TestTreeUpdateSetViewer(t *testing.T) {
	const size = 8

	tree := newTestTree(t, mgl64.Vec2{-size / 2, -size / 2}, size, 2, 1)
	viewer := viewerAt(0, 0)
	tree.SetViewer(viewer)

	culled := tree.Update()
	require.Equal(t, viewer, tree.GetViewer())
	require.Equal(t, 2, tree.GetTreeHeight())
	require.Len(t, culled, 5)
	require.Equal(t, 21, tree.NodeCount())

	leaves := tree.Leaves()
	require.Len(t, leaves, 16)
	for _, leaf := range leaves {
		require.Equal(t, 2, leaf.Depth())
		require.Equal(t, float64(2), leaf.Size())

		for n := leaf; n.Parent() != nil; n = n.Parent() {
			parent := n.Parent()
			require.Equal(t, parent.Depth()+1, n.Depth())
			require.Equal(t, parent.Size()/2, n.Size())

			offset := n.Position().Sub(parent.Position())
			require.Contains(t, []float64{0, n.Size()}, offset.X())
			require.Contains(t, []float64{0, n.Size()}, offset.Y())
		}
	}
}

func TestTreeUpdateLevels(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
	tree.SetViewer(viewerAt(1, 0))
	tree.Update()

	root := tree.GetRootNode()
	require.Zero(t, root.Depth())

	for _, child := range root.Children() {
		require.Equal(t, 1, child.Depth())
		require.Equal(t, float64(4), child.Size())

		for _, grandChild := range child.Children() {
			require.Equal(t, 2, grandChild.Depth())
			require.Equal(t, float64(2), grandChild.Size())
		}
	}

	require.True(t, root.Child(SouthWest).HasChildren())
	require.True(t, root.Child(SouthEast).IsLeaf())
	require.True(t, root.Child(NorthWest).IsLeaf())
	require.True(t, root.Child(NorthEast).IsLeaf())
	require.Equal(t, 2, tree.GetTreeHeight())
}

func TestTreeUpdateCulledNodes(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
	tree.SetViewer(viewerAt(6, 6))

	culled := tree.Update()
	require.Equal(t, []mgl64.Vec2{{0, 0}, {4, 4}}, positions(culled))
	require.Equal(t, 2, tree.GetTreeHeight())

	ne := tree.GetRootNode().Child(NorthEast)
	previousLeaves := ne.Children()
	require.Equal(t, []mgl64.Vec2{{4, 4}, {6, 4}, {4, 6}, {6, 6}}, positions(previousLeaves))

	tree.SetViewer(viewerAt(2, 2))
	report := tree.UpdateReport()

	require.Len(t, report.Culled, 1)
	require.Equal(t, mgl64.Vec2{0, 0}, report.Culled[0].Position())
	require.Equal(t, float64(4), report.Culled[0].Size())
	require.Same(t, tree.GetRootNode().Child(SouthWest), report.Culled[0])

	require.Equal(t, []*Node{ne}, report.Collapsed)
	require.ElementsMatch(t, previousLeaves, report.Removed)
	require.Equal(t, []mgl64.Vec2{{0, 0}, {2, 0}, {0, 2}, {2, 2}}, positions(report.Created))
	require.True(t, ne.IsLeaf())
	require.Equal(t, 2, tree.GetTreeHeight())
	require.Equal(t, 9, tree.NodeCount())
}

func TestTreeUpdateIsIdempotent(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 64, 2, 1)
	tree.SetViewer(viewerAt(10, 13))

	require.NotEmpty(t, tree.Update())
	before := tree.String()

	report := tree.UpdateReport()
	require.True(t, report.Empty())
	require.Empty(t, report.Culled)
	require.Empty(t, report.Removed)
	require.Equal(t, before, tree.String())
}

func TestTreeUpdateThresholds(t *testing.T) {
	t.Run("distance comparison is strict", func(t *testing.T) {
		tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)

		// Root center is (4, 4) and its threshold is 8.
		tree.SetViewer(viewerAt(12, 4))
		require.Empty(t, tree.Update())
		require.True(t, tree.GetRootNode().IsLeaf())

		tree.SetViewer(viewerAt(11.9, 4))
		require.Len(t, tree.Update(), 1)
	})

	t.Run("nodes at min chunk size never split", func(t *testing.T) {
		tree := newTestTree(t, mgl64.Vec2{}, 2, 2, 1)
		tree.SetViewer(viewerAt(1, 1))

		require.Empty(t, tree.Update())
		require.Zero(t, tree.GetTreeHeight())
	})

	t.Run("view distance caps the threshold", func(t *testing.T) {
		tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
		tree.SetViewer(NewStaticViewer(mgl64.Vec2{6, 6}, 1, 1))

		// Root center is 2.83 away, within size but beyond view distance.
		require.Empty(t, tree.Update())
	})

	t.Run("view distance beyond the scaled size has no effect", func(t *testing.T) {
		for _, viewDistance := range []float64{8, 1000} {
			tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
			tree.SetViewer(NewStaticViewer(mgl64.Vec2{6, 6}, viewDistance, 1))

			require.Equal(t, []mgl64.Vec2{{0, 0}, {4, 4}}, positions(tree.Update()))
			require.Equal(t, 2, tree.GetTreeHeight())
		}
	})

	t.Run("multipliers scale the threshold", func(t *testing.T) {
		tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 0.5)
		tree.SetViewer(viewerAt(9, 4))
		require.Empty(t, tree.Update())

		// Root, south-east and north-east children split.
		tree.SetViewer(NewStaticViewer(mgl64.Vec2{9, 4}, 30, 2))
		require.Len(t, tree.Update(), 3)
	})
}

func TestTreeUpdateCollapsesDepthFirst(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 64, 1, 1)
	tree.SetViewer(NewStaticViewer(mgl64.Vec2{0.5, 0.5}, 1000, 1))
	tree.Update()
	require.Equal(t, 6, tree.GetTreeHeight())
	require.Equal(t, 25, tree.NodeCount())

	parents := make(map[*Node]*Node)
	tree.GetRootNode().Walk(func(n *Node) bool {
		parents[n] = n.Parent()
		return true
	})

	tree.SetViewer(viewerAt(1000, 1000))
	report := tree.UpdateReport()
	require.Empty(t, report.Culled)
	require.Equal(t, []*Node{tree.GetRootNode()}, report.Collapsed)
	require.Len(t, report.Removed, 24)

	index := make(map[*Node]int, len(report.Removed))
	for i, n := range report.Removed {
		index[n] = i
	}
	for i, n := range report.Removed {
		if j, ok := index[parents[n]]; ok {
			require.Greater(t, j, i)
		}
		require.Nil(t, n.Parent())
		require.True(t, n.IsLeaf())
	}

	require.True(t, tree.GetRootNode().IsLeaf())
	require.Zero(t, tree.GetTreeHeight())
	require.Equal(t, 1, tree.NodeCount())
}

func TestTreeUpdateInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tree := newTestTree(t, mgl64.Vec2{-256, -256}, 512, 4, 1.5)

	viewer := viewerAt(0, 0)
	viewer.Distance = 200

	for i := 0; i < 200; i++ {
		viewer.Pos = viewer.Pos.Add(mgl64.Vec2{r.Float64()*40 - 20, r.Float64()*40 - 20})
		tree.SetViewer(viewer)

		leavesBefore := make(map[*Node]bool)
		for _, l := range tree.Leaves() {
			leavesBefore[l] = true
		}

		culled := tree.Update()
		for _, n := range culled {
			require.True(t, leavesBefore[n] || n.Parent() != nil)
			require.True(t, n.HasChildren())
		}

		count := 0
		height := 0
		tree.GetRootNode().Walk(func(n *Node) bool {
			count++

			u := updater{tree: tree, viewer: viewer}
			if n.IsLeaf() {
				require.False(t, u.shouldSplit(n))
				if n.Depth() > height {
					height = n.Depth()
				}
				return true
			}

			require.True(t, u.shouldSplit(n))
			children := n.Children()
			require.Len(t, children, 4)
			for q, c := range children {
				require.Same(t, n, c.Parent())
				require.Equal(t, Quadrant(q), c.Quadrant())
				require.Equal(t, n.Depth()+1, c.Depth())
				require.Equal(t, n.Size()/2, c.Size())
				require.Equal(t, n.Position().Add(Quadrant(q).offset(c.Size())), c.Position())
			}
			return true
		})

		require.Equal(t, count, tree.NodeCount())
		require.Equal(t, height, tree.GetTreeHeight())
	}
}

func TestTreeFindLeaf(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 2, 1)
	tree.SetViewer(viewerAt(6, 6))
	tree.Update()

	leaf := tree.FindLeaf(mgl64.Vec2{6.5, 7})
	require.NotNil(t, leaf)
	require.Equal(t, mgl64.Vec2{6, 6}, leaf.Position())
	require.Equal(t, float64(2), leaf.Size())

	leaf = tree.FindLeaf(mgl64.Vec2{1, 1})
	require.NotNil(t, leaf)
	require.Equal(t, mgl64.Vec2{0, 0}, leaf.Position())
	require.Equal(t, float64(4), leaf.Size())

	require.Nil(t, tree.FindLeaf(mgl64.Vec2{8, 1}))
	require.Nil(t, tree.FindLeaf(mgl64.Vec2{-1, 1}))
}

func TestTreePrint(t *testing.T) {
	tree := newTestTree(t, mgl64.Vec2{}, 8, 4, 1)
	tree.SetViewer(viewerAt(4, 4))
	tree.Update()

	lines := strings.Split(strings.TrimSpace(tree.String()), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "node{depth: 0"))
	require.True(t, strings.HasPrefix(lines[1], "  node{depth: 1, quadrant: sw"))
	require.True(t, strings.HasPrefix(lines[4], "  node{depth: 1, quadrant: ne"))
}
