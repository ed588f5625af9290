package quadtree

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Node is a square cell of the quadtree. A node is either a leaf, without
// children, or internal, with exactly four children that tile its area.
//
// Nodes are owned by the node above them. The parent reference is only used
// for upward queries.
type Node struct {
	position mgl64.Vec2
	size     float64
	depth    int
	quadrant Quadrant
	parent   *Node
	children *[4]*Node
}

// NewRoot returns a detached leaf node whose lower-left corner is at position.
func NewRoot(position mgl64.Vec2, size float64) *Node {
	return &Node{
		position: position,
		size:     size,
		quadrant: NoQuadrant,
	}
}

// Position returns the lower-left corner of the node.
func (n *Node) Position() mgl64.Vec2 {
	return n.position
}

// Size returns the side length of the node.
func (n *Node) Size() float64 {
	return n.size
}

// Depth returns the number of ancestors of the node.
func (n *Node) Depth() int {
	return n.depth
}

// Quadrant returns the slot the node occupies in its parent.
func (n *Node) Quadrant() Quadrant {
	return n.quadrant
}

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the four children of an internal node ordered south-west,
// south-east, north-west, north-east. It returns nil for a leaf.
func (n *Node) Children() []*Node {
	if n.children == nil {
		return nil
	}

	children := *n.children
	return children[:]
}

// Child returns the child in the given quadrant, nil for a leaf.
func (n *Node) Child(q Quadrant) *Node {
	if n.children == nil || q < SouthWest || q > NorthEast {
		return nil
	}
	return n.children[q]
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.children == nil
}

// HasChildren reports whether the node is internal.
func (n *Node) HasChildren() bool {
	return n.children != nil
}

// Center returns the center of the node.
func (n *Node) Center() mgl64.Vec2 {
	half := n.size / 2
	return n.position.Add(mgl64.Vec2{half, half})
}

// Contains reports whether p lies within the node. The lower and left edges
// are inclusive, the upper and right edges exclusive.
func (n *Node) Contains(p mgl64.Vec2) bool {
	return p.X() >= n.position.X() && p.X() < n.position.X()+n.size &&
		p.Y() >= n.position.Y() && p.Y() < n.position.Y()+n.size
}

// Walk visits the node and its descendants depth-first, parents before
// children. Children of a node are skipped when fn returns false for it.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) || n.children == nil {
		return
	}

	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Leaves returns the leaves under the node in depth-first order.
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	n.Walk(func(c *Node) bool {
		if c.IsLeaf() {
			leaves = append(leaves, c)
		}
		return true
	})
	return leaves
}

func (n *Node) String() string {
	return fmt.Sprintf("node{depth: %d, quadrant: %s, position: [%g %g], size: %g, leaf: %t}",
		n.depth,
		n.quadrant,
		n.position.X(),
		n.position.Y(),
		n.size,
		n.IsLeaf(),
	)
}

// split turns a leaf into an internal node and returns the new children.
func (n *Node) split() *[4]*Node {
	childSize := n.size / 2

	var children [4]*Node
	for q := SouthWest; q <= NorthEast; q++ {
		children[q] = &Node{
			position: n.position.Add(q.offset(childSize)),
			size:     childSize,
			depth:    n.depth + 1,
			quadrant: q,
			parent:   n,
		}
	}

	n.children = &children
	return n.children
}

// collapse discards the descendants of the node, deepest first, appending
// each discarded node to removed.
func (n *Node) collapse(removed []*Node) []*Node {
	if n.children == nil {
		return removed
	}

	for _, c := range n.children {
		removed = c.collapse(removed)
		c.parent = nil
		removed = append(removed, c)
	}

	n.children = nil
	return removed
}
