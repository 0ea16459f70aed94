package metadata

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointLightsUniformLayout(t *testing.T) {
	var u PointLightsUniform
	assert.Equal(t, uintptr(PointLightsUniformSize), unsafe.Sizeof(u))
	assert.Equal(t, uintptr(MaxPointLights*PointLightSize), unsafe.Offsetof(u.Ambient))
	assert.Len(t, u.Bytes(), PointLightsUniformSize)
}

func TestNewPointLightsUniform(t *testing.T) {
	lights := []PointLight{
		NewPointLight(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{1, 0, 0}, 10),
		NewPointLight(mgl32.Vec3{4, 5, 6}, mgl32.Vec3{0, 1, 0}, 20),
	}
	u, err := NewPointLightsUniform(lights, mgl32.Vec4{0.1, 0.1, 0.1, 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), u.Count)
	assert.Equal(t, lights[1], u.Lights[1])
	assert.Equal(t, PointLight{}, u.Lights[2])

	_, err = NewPointLightsUniform(make([]PointLight, MaxPointLights+1), mgl32.Vec4{})
	assert.Error(t, err)
}

func TestSpriteQuad(t *testing.T) {
	s := NewSprite("hero", "", mgl32.Vec3{10, 20, 0}, mgl32.Vec2{4, 2})
	assert.Equal(t, DefaultTextureName, s.TextureName())

	vertices, indices := s.Quad(8)
	assert.Equal(t, [6]uint32{8, 9, 10, 10, 11, 8}, indices)
	assert.Equal(t, mgl32.Vec2{0, 1}, vertices[0].TexCoord)
	assert.Equal(t, mgl32.Vec2{1, 0}, vertices[2].TexCoord)

	corner := s.Model().Mul4x1(vertices[1].Position.Vec4(1))
	assert.InDelta(t, 12, corner.X(), 1e-5)
	assert.InDelta(t, 19, corner.Y(), 1e-5)
}

func TestRectBoundary(t *testing.T) {
	box := NewBoxRect("ground", 1, 2, 3, 4, mgl32.Vec4{1, 1, 1, 1})
	assert.Equal(t, []mgl32.Vec2{{1, 2}, {4, 2}, {4, 6}, {1, 6}}, box.Boundary())

	tri := Rect{X: 10, Y: 10, Points: []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}}}
	assert.Equal(t, []mgl32.Vec2{{10, 10}, {11, 10}, {10, 11}}, tri.Boundary())
}

func TestBytesViews(t *testing.T) {
	assert.Nil(t, VerticesBytes(nil))
	assert.Len(t, VerticesBytes(make([]Vertex, 3)), 3*int(VertexStride))
	assert.Len(t, IndicesBytes([]uint32{1, 2, 3}), 12)
}

func TestGetAligned(t *testing.T) {
	assert.Equal(t, uint64(256), GetAligned(64, 256))
	assert.Equal(t, uint64(512), GetAligned(257, 256))
	assert.Equal(t, uint64(64), GetAligned(64, 0))
}
