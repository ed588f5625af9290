package streaming

import (
	"fmt"

	"github.com/aukilabs/lodterrain/mesh"
	"github.com/aukilabs/lodterrain/quadtree"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// ChunkKey identifies the chunks that are interchangeable. Nodes at the same
// depth share the same size, so a chunk built for a depth and a detail fits
// any node of that depth.
type ChunkKey struct {
	Depth  int
	Detail int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%d/%d", k.Depth, k.Detail)
}

// Chunk is the renderable counterpart of a displayed leaf.
type Chunk struct {
	ID   uuid.UUID
	Key  ChunkKey
	Mesh *mesh.Mesh

	// The node the chunk is displayed for. Nil while the chunk is pooled.
	Node *quadtree.Node
}

func newChunk(key ChunkKey, m *mesh.Mesh) *Chunk {
	return &Chunk{
		ID:   uuid.New(),
		Key:  key,
		Mesh: m,
	}
}

// Origin returns the world position of the chunk mesh origin.
func (c *Chunk) Origin() mgl64.Vec3 {
	if c.Node == nil {
		return mgl64.Vec3{}
	}

	p := c.Node.Position()
	return mgl64.Vec3{p.X(), 0, p.Y()}
}
