package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/math"
)

const (
	MinZoom float32 = 1
	MaxZoom float32 = 1024
	// DefaultZoom is the number of pixels per world unit.
	DefaultZoom float32 = 32
)

/**
 * @brief Orthographic 2D camera. World +Y is up; the projection flips it
 * for the Vulkan clip space.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec2
	/** @brief Rotation around Z in radians. */
	Rotation float32
	/** @brief Pixels per world unit. */
	Zoom float32
	/** @brief Internal flag used to determine when the matrices need to be rebuilt. */
	IsDirty bool

	width, height float32
	view          mgl32.Mat4
	projection    mgl32.Mat4
}

func NewCamera(width, height uint32) *Camera {
	camera := &Camera{}
	camera.Reset()
	camera.SetViewport(width, height)
	return camera
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec2{}
	c.Rotation = 0
	c.Zoom = DefaultZoom
	c.view = mgl32.Ident4()
	c.projection = mgl32.Ident4()
	c.IsDirty = true
}

// SetViewport is called whenever the swapchain extent changes.
func (c *Camera) SetViewport(width, height uint32) {
	c.width = float32(width)
	c.height = float32(height)
	c.IsDirty = true
}

func (c *Camera) Viewport() (float32, float32) {
	return c.width, c.height
}

func (c *Camera) SetPosition(position mgl32.Vec2) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) Move(delta mgl32.Vec2) {
	c.Position = c.Position.Add(delta)
	c.IsDirty = true
}

func (c *Camera) SetRotation(radians float32) {
	c.Rotation = radians
	c.IsDirty = true
}

func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = math.Clamp(zoom, MinZoom, MaxZoom)
	c.IsDirty = true
}

func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom * factor)
}

func (c *Camera) rebuild() {
	if !c.IsDirty {
		return
	}
	// inverse of translate * rotate
	c.view = mgl32.HomogRotate3DZ(-c.Rotation).Mul4(mgl32.Translate3D(-c.Position.X(), -c.Position.Y(), 0))

	halfWidth := c.width / (2 * c.Zoom)
	halfHeight := c.height / (2 * c.Zoom)
	if halfWidth == 0 || halfHeight == 0 {
		c.projection = mgl32.Ident4()
	} else {
		// bottom and top swapped: Vulkan clip space Y points down
		c.projection = mgl32.Ortho(-halfWidth, halfWidth, halfHeight, -halfHeight, -1, 1)
	}
	c.IsDirty = false
}

func (c *Camera) GetView() mgl32.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) GetProjection() mgl32.Mat4 {
	c.rebuild()
	return c.projection
}

// ScreenToWorld maps a window position in pixels (origin top left) to
// world coordinates.
func (c *Camera) ScreenToWorld(x, y float32) mgl32.Vec2 {
	local := mgl32.Vec2{(x - c.width/2) / c.Zoom, (c.height/2 - y) / c.Zoom}
	rotated := mgl32.Rotate2D(c.Rotation).Mul2x1(local)
	return rotated.Add(c.Position)
}
