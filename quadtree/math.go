package quadtree

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Quadrant identifies one of the four children of an internal node.
type Quadrant int

const (
	SouthWest Quadrant = iota
	SouthEast
	NorthWest
	NorthEast

	// NoQuadrant is the quadrant of a root node.
	NoQuadrant Quadrant = -1
)

func (q Quadrant) String() string {
	switch q {
	case SouthWest:
		return "sw"
	case SouthEast:
		return "se"
	case NorthWest:
		return "nw"
	case NorthEast:
		return "ne"
	default:
		return "root"
	}
}

// offset returns the lower-left corner of the quadrant relative to the lower
// left corner of its parent, given the child side length.
func (q Quadrant) offset(childSize float64) mgl64.Vec2 {
	switch q {
	case SouthEast:
		return mgl64.Vec2{childSize, 0}
	case NorthWest:
		return mgl64.Vec2{0, childSize}
	case NorthEast:
		return mgl64.Vec2{childSize, childSize}
	default:
		return mgl64.Vec2{}
	}
}

// GroundPlane projects a Y-up world position onto the XZ surface plane.
func GroundPlane(p mgl64.Vec3) mgl64.Vec2 {
	return mgl64.Vec2{p.X(), p.Z()}
}

// PlanarDistance returns the euclidean distance between two points of the
// surface plane.
func PlanarDistance(a, b mgl64.Vec2) float64 {
	return a.Sub(b).Len()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
