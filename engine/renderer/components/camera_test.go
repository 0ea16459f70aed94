package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func project(c *Camera, p mgl32.Vec2) mgl32.Vec4 {
	return c.GetProjection().Mul4(c.GetView()).Mul4x1(mgl32.Vec4{p.X(), p.Y(), 0, 1})
}

func TestCameraProjection(t *testing.T) {
	c := NewCamera(800, 600)

	center := project(c, mgl32.Vec2{})
	assert.InDelta(t, 0, center.X(), 1e-5)
	assert.InDelta(t, 0, center.Y(), 1e-5)

	// 400 pixels right is the right edge, 300 pixels up is the top edge
	corner := project(c, mgl32.Vec2{400 / DefaultZoom, 300 / DefaultZoom})
	assert.InDelta(t, 1, corner.X(), 1e-5)
	assert.InDelta(t, -1, corner.Y(), 1e-5, "world up is clip space up")
	assert.False(t, c.IsDirty)
}

func TestCameraMove(t *testing.T) {
	c := NewCamera(800, 600)
	c.Move(mgl32.Vec2{2, 3})
	assert.True(t, c.IsDirty)

	center := project(c, mgl32.Vec2{2, 3})
	assert.InDelta(t, 0, center.X(), 1e-5)
	assert.InDelta(t, 0, center.Y(), 1e-5)
}

func TestCameraZoomClamped(t *testing.T) {
	c := NewCamera(800, 600)
	c.SetZoom(0.01)
	assert.Equal(t, MinZoom, c.Zoom)
	c.ZoomBy(1e6)
	assert.Equal(t, MaxZoom, c.Zoom)
}

func TestCameraScreenToWorld(t *testing.T) {
	c := NewCamera(800, 600)
	c.SetPosition(mgl32.Vec2{10, 0})

	assert.Equal(t, mgl32.Vec2{10, 0}, c.ScreenToWorld(400, 300))
	top := c.ScreenToWorld(400, 0)
	assert.InDelta(t, 300/DefaultZoom, top.Y(), 1e-5)
}

func TestCameraViewportChange(t *testing.T) {
	c := NewCamera(800, 600)
	before := c.GetProjection()
	c.SetViewport(1600, 600)
	assert.True(t, c.IsDirty)
	assert.NotEqual(t, before, c.GetProjection())

	c.SetViewport(0, 0)
	assert.Equal(t, mgl32.Ident4(), c.GetProjection(), "a minimized window keeps a usable matrix")
}
