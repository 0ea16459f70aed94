package metadata

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxPointLights is the array length of the lights uniform block in
// sprite.frag. Both sides must change together.
const MaxPointLights = 10

// PointLight follows std140: three vec4 per light.
type PointLight struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
	// constant, linear, quadratic, radius
	Attenuation mgl32.Vec4
}

const PointLightSize = 48

// PointLightsUniform is the whole lights block, uploaded every frame.
type PointLightsUniform struct {
	Lights  [MaxPointLights]PointLight
	Ambient mgl32.Vec4
	Count   int32
	_       [3]int32
}

const PointLightsUniformSize = MaxPointLights*PointLightSize + 32

var _ [PointLightSize - unsafe.Sizeof(PointLight{})]struct{}
var _ [unsafe.Sizeof(PointLight{}) - PointLightSize]struct{}
var _ [PointLightsUniformSize - unsafe.Sizeof(PointLightsUniform{})]struct{}
var _ [unsafe.Sizeof(PointLightsUniform{}) - PointLightsUniformSize]struct{}

func NewPointLight(position mgl32.Vec3, color mgl32.Vec3, radius float32) PointLight {
	return PointLight{
		Position:    position.Vec4(1),
		Color:       color.Vec4(1),
		Attenuation: mgl32.Vec4{1, 0.09, 0.032, radius},
	}
}

// NewPointLightsUniform packs lights into the fixed size block.
func NewPointLightsUniform(lights []PointLight, ambient mgl32.Vec4) (PointLightsUniform, error) {
	u := PointLightsUniform{Ambient: ambient}
	if len(lights) > MaxPointLights {
		return u, fmt.Errorf("%d point lights given, at most %d are supported", len(lights), MaxPointLights)
	}
	copy(u.Lights[:], lights)
	u.Count = int32(len(lights))
	return u, nil
}

// Bytes views the block as raw bytes without copying.
func (u *PointLightsUniform) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), PointLightsUniformSize)
}

// CameraUniform is set 0 binding 0 of both pipelines.
type CameraUniform struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

const CameraUniformSize = 128

var _ [CameraUniformSize - unsafe.Sizeof(CameraUniform{})]struct{}

func (u *CameraUniform) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), CameraUniformSize)
}

// ShapePushConstants is the push constant block of the line pipeline.
type ShapePushConstants struct {
	Model mgl32.Mat4
	Color mgl32.Vec4
}

const ShapePushConstantsSize = 80

var _ [ShapePushConstantsSize - unsafe.Sizeof(ShapePushConstants{})]struct{}

// SpriteUniformSize is one model matrix in the dynamic sprite uniform buffer.
const SpriteUniformSize = 64

func Mat4Bytes(m *mgl32.Mat4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m)), SpriteUniformSize)
}

func (p *ShapePushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), ShapePushConstantsSize)
}
