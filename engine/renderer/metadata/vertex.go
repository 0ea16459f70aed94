package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the layout shared by the sprite and the line pipelines.
type Vertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
	Color    mgl32.Vec4
}

const (
	VertexPositionOffset uint32 = 0
	VertexTexCoordOffset uint32 = 12
	VertexColorOffset    uint32 = 20
	VertexStride         uint32 = 36
)

// the attribute offsets above are baked into the pipelines
var _ [VertexStride - uint32(unsafe.Sizeof(Vertex{}))]struct{}
var _ [uint32(unsafe.Sizeof(Vertex{})) - VertexStride]struct{}
var _ [VertexColorOffset - uint32(unsafe.Offsetof(Vertex{}.Color))]struct{}
var _ [VertexTexCoordOffset - uint32(unsafe.Offsetof(Vertex{}.TexCoord))]struct{}

// VerticesBytes views the vertex slice as raw bytes without copying.
func VerticesBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(VertexStride))
}

// IndicesBytes views the index slice as raw bytes without copying.
func IndicesBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
}
