package mesh

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"
)

// FlatPlane generates flat grids lying on the XZ plane, with their lower-left
// corner at the origin.
type FlatPlane struct{}

func (FlatPlane) Generate(ctx context.Context, d Data) (*Mesh, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	quadsX := d.VertsX - 1
	quadsZ := d.VertsZ - 1

	m := &Mesh{
		Vertices: make([]mgl64.Vec3, 0, d.VertsX*d.VertsZ),
		UVs:      make([]mgl64.Vec2, 0, d.VertsX*d.VertsZ),
		Indices:  make([]uint32, 0, quadsX*quadsZ*6),
	}

	for z := 0; z < d.VertsZ; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v := float64(z) / float64(quadsZ)
		for x := 0; x < d.VertsX; x++ {
			u := float64(x) / float64(quadsX)
			m.Vertices = append(m.Vertices, mgl64.Vec3{u * d.Size, 0, v * d.Size})
			m.UVs = append(m.UVs, mgl64.Vec2{u, v})
		}
	}

	for z := 0; z < quadsZ; z++ {
		for x := 0; x < quadsX; x++ {
			bottomLeft := uint32(z*d.VertsX + x)
			bottomRight := bottomLeft + 1
			topLeft := bottomLeft + uint32(d.VertsX)
			topRight := topLeft + 1

			// Clockwise when seen from above.
			m.Indices = append(m.Indices,
				bottomLeft, topLeft, bottomRight,
				bottomRight, topLeft, topRight,
			)
		}
	}

	return m, nil
}
