package metadata

import "github.com/go-gl/mathgl/mgl32"

// Rect describes the boundary of a user defined shape. When Points is empty
// the boundary is the axis aligned box at (X, Y) with size (W, H); otherwise
// Points is a closed polygon relative to (X, Y).
type Rect struct {
	Name   string
	X, Y   float32
	W, H   float32
	Points []mgl32.Vec2
	Color  mgl32.Vec4
}

func NewBoxRect(name string, x, y, w, h float32, color mgl32.Vec4) Rect {
	return Rect{Name: name, X: x, Y: y, W: w, H: h, Color: color}
}

// Boundary returns the polygon outline in world units.
func (r Rect) Boundary() []mgl32.Vec2 {
	if len(r.Points) == 0 {
		return []mgl32.Vec2{
			{r.X, r.Y},
			{r.X + r.W, r.Y},
			{r.X + r.W, r.Y + r.H},
			{r.X, r.Y + r.H},
		}
	}
	out := make([]mgl32.Vec2, len(r.Points))
	for i, p := range r.Points {
		out[i] = mgl32.Vec2{r.X + p.X(), r.Y + p.Y()}
	}
	return out
}
