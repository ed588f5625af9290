package quadtree

import "github.com/go-gl/mathgl/mgl64"

// Viewer is the observer the tree subdivides around. The tree reads it once
// at the start of each update and never mutates it.
type Viewer interface {
	// Position returns the observer position in the surface plane.
	Position() mgl64.Vec2

	// ViewDistance returns the distance beyond which no node is subdivided.
	ViewDistance() float64

	// SizeMultiplier scales the per-node subdivision distance.
	SizeMultiplier() float64
}

// StaticViewer is an immutable viewer snapshot.
type StaticViewer struct {
	Pos        mgl64.Vec2
	Distance   float64
	Multiplier float64
}

// NewStaticViewer returns a viewer snapshot at the given position.
func NewStaticViewer(position mgl64.Vec2, viewDistance, sizeMultiplier float64) StaticViewer {
	return StaticViewer{
		Pos:        position,
		Distance:   viewDistance,
		Multiplier: sizeMultiplier,
	}
}

// Snapshot freezes the current state of a viewer.
func Snapshot(v Viewer) StaticViewer {
	if s, ok := v.(StaticViewer); ok {
		return s
	}
	return NewStaticViewer(v.Position(), v.ViewDistance(), v.SizeMultiplier())
}

func (v StaticViewer) Position() mgl64.Vec2 {
	return v.Pos
}

func (v StaticViewer) ViewDistance() float64 {
	return v.Distance
}

func (v StaticViewer) SizeMultiplier() float64 {
	return v.Multiplier
}

// Tracker provides the world position of a moving camera, Y up.
type Tracker interface {
	Position() mgl64.Vec3
}

// TrackerFunc adapts a function to a Tracker.
type TrackerFunc func() mgl64.Vec3

func (f TrackerFunc) Position() mgl64.Vec3 {
	return f()
}

// CameraViewer is a viewer that follows a camera, projecting its position
// onto the ground plane.
type CameraViewer struct {
	Camera     Tracker
	Distance   float64
	Multiplier float64
}

func (v CameraViewer) Position() mgl64.Vec2 {
	return GroundPlane(v.Camera.Position())
}

func (v CameraViewer) ViewDistance() float64 {
	return v.Distance
}

func (v CameraViewer) SizeMultiplier() float64 {
	return v.Multiplier
}
