// Package mesh defines the boundary between terrain chunks and the code that
// builds their geometry.
package mesh

import (
	"context"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// ErrTypeInvalidData is the error type returned when mesh data cannot
	// produce a mesh.
	ErrTypeInvalidData = "mesh_invalid_data"
)

// Data describes a grid mesh to generate.
type Data struct {
	// The number of vertices along the X axis. Must be at least 2.
	VertsX int

	// The number of vertices along the Z axis. Must be at least 2.
	VertsZ int

	// The side length of the generated plane.
	Size float64
}

// ForDetail returns the data of a square mesh of the given side length with
// detail quads on each side.
func ForDetail(detail int, size float64) Data {
	return Data{
		VertsX: detail + 1,
		VertsZ: detail + 1,
		Size:   size,
	}
}

// Validate returns an error when the data can't produce a mesh.
func (d Data) Validate() error {
	if d.VertsX < 2 || d.VertsZ < 2 {
		return errors.New("a mesh needs at least 2 vertices on each axis").
			WithType(ErrTypeInvalidData).
			WithTag("verts_x", d.VertsX).
			WithTag("verts_z", d.VertsZ)
	}

	if math.IsNaN(d.Size) || math.IsInf(d.Size, 0) || d.Size <= 0 {
		return errors.New("mesh size must be positive").
			WithType(ErrTypeInvalidData).
			WithTag("size", d.Size)
	}
	return nil
}

// Mesh is an indexed triangle mesh in chunk local space, Y up.
type Mesh struct {
	Vertices []mgl64.Vec3
	UVs      []mgl64.Vec2
	Indices  []uint32
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// A Generator builds the mesh of a chunk.
//
// Generate may be called concurrently from several goroutines.
type Generator interface {
	Generate(ctx context.Context, d Data) (*Mesh, error)
}

// GeneratorFunc is a function that satisfies the Generator interface.
type GeneratorFunc func(context.Context, Data) (*Mesh, error)

func (f GeneratorFunc) Generate(ctx context.Context, d Data) (*Mesh, error) {
	return f(ctx, d)
}
