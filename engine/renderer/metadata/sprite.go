package metadata

import "github.com/go-gl/mathgl/mgl32"

// DefaultTextureName is the 1x1 white texture used by untextured sprites.
const DefaultTextureName = "default"

// Sprite is one textured quad. Position is the quad center.
type Sprite struct {
	Name     string
	Position mgl32.Vec3
	Size     mgl32.Vec2
	Rotation float32
	Color    mgl32.Vec4
	Texture  string
	// UVMin and UVMax select a region of the texture; both zero means the whole texture.
	UVMin mgl32.Vec2
	UVMax mgl32.Vec2
}

func NewSprite(name, texture string, position mgl32.Vec3, size mgl32.Vec2) *Sprite {
	return &Sprite{
		Name:     name,
		Texture:  texture,
		Position: position,
		Size:     size,
		Color:    mgl32.Vec4{1, 1, 1, 1},
	}
}

// TextureName falls back to the default texture.
func (s *Sprite) TextureName() string {
	if s.Texture == "" {
		return DefaultTextureName
	}
	return s.Texture
}

// Model returns translate * rotate(z) * scale.
func (s *Sprite) Model() mgl32.Mat4 {
	t := mgl32.Translate3D(s.Position.X(), s.Position.Y(), s.Position.Z())
	r := mgl32.HomogRotate3DZ(s.Rotation)
	sc := mgl32.Scale3D(s.Size.X(), s.Size.Y(), 1)
	return t.Mul4(r).Mul4(sc)
}

// Quad returns the four unit-quad vertices and six indices of the sprite,
// with indices starting at base.
func (s *Sprite) Quad(base uint32) ([4]Vertex, [6]uint32) {
	uvMin, uvMax := s.UVMin, s.UVMax
	if uvMin == (mgl32.Vec2{}) && uvMax == (mgl32.Vec2{}) {
		uvMax = mgl32.Vec2{1, 1}
	}
	vertices := [4]Vertex{
		{Position: mgl32.Vec3{-0.5, -0.5, 0}, TexCoord: mgl32.Vec2{uvMin.X(), uvMax.Y()}, Color: s.Color},
		{Position: mgl32.Vec3{0.5, -0.5, 0}, TexCoord: mgl32.Vec2{uvMax.X(), uvMax.Y()}, Color: s.Color},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, TexCoord: mgl32.Vec2{uvMax.X(), uvMin.Y()}, Color: s.Color},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, TexCoord: mgl32.Vec2{uvMin.X(), uvMin.Y()}, Color: s.Color},
	}
	indices := [6]uint32{base, base + 1, base + 2, base + 2, base + 3, base}
	return vertices, indices
}
