package resources

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/math"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

/**
 * @brief The GPU buffers of one user defined shape. A freed slot keeps its
 * buffers so the next shape of the same or smaller size reuses them.
 */
type ShapedBuffers struct {
	VertexBuffer *vulkan.VulkanBuffer
	IndexBuffer  *vulkan.VulkanBuffer
	Vertices     []metadata.Vertex
	Indices      []uint32
	Rect         metadata.Rect
	Occupied     bool
	// ID changes every time the slot is filled.
	ID uuid.UUID
}

func (s *ShapedBuffers) fits(vertices, indices int) bool {
	return s.VertexBuffer != nil && s.IndexBuffer != nil &&
		s.VertexBuffer.Size >= uint64(vertices)*uint64(metadata.VertexStride) &&
		s.IndexBuffer.Size >= uint64(indices)*4
}

func (s *ShapedBuffers) destroy(context *vulkan.VulkanContext) {
	if s.VertexBuffer != nil {
		s.VertexBuffer.Destroy(context)
		s.VertexBuffer = nil
	}
	if s.IndexBuffer != nil {
		s.IndexBuffer.Destroy(context)
		s.IndexBuffer = nil
	}
}

// shapeGeometry triangulates the rect boundary. The vertices keep the
// polygon outline so the line pipeline draws its triangulation.
func shapeGeometry(rect metadata.Rect, reverseY bool) ([]metadata.Vertex, []uint32, error) {
	points := rect.Boundary()
	if reverseY {
		for i := range points {
			points[i] = mgl32.Vec2{points[i].X(), -points[i].Y()}
		}
	}
	indices, err := math.Triangulate(points)
	if err != nil {
		if errors.Is(err, math.ErrDegeneratePolygon) {
			return nil, nil, fmt.Errorf("shape %q: %w", rect.Name, core.ErrInvalidPolygon)
		}
		return nil, nil, err
	}
	vertices := make([]metadata.Vertex, len(points))
	for i, p := range points {
		vertices[i] = metadata.Vertex{Position: mgl32.Vec3{p.X(), p.Y(), 0}, Color: rect.Color}
	}
	return vertices, indices, nil
}

// CreateUserDefinedBuffers uploads the triangulated rect into the lowest
// free slot and returns the slot index. With reverseY the rect is mirrored
// on the x axis, for rects given in screen coordinates.
func (m *Manager) CreateUserDefinedBuffers(rect metadata.Rect, reverseY bool) (int, error) {
	if !m.initialized {
		return -1, core.ErrNotInitialized
	}
	vertices, indices, err := shapeGeometry(rect, reverseY)
	if err != nil {
		return -1, err
	}

	slot := -1
	for i, shape := range m.shapes {
		if !shape.Occupied {
			slot = i
			break
		}
	}
	if slot == -1 {
		if len(m.shapes) >= int(m.config.MaxUserShapes) {
			return -1, fmt.Errorf("%d shapes in use: %w", len(m.shapes), core.ErrSlotsExhausted)
		}
		m.shapes = append(m.shapes, &ShapedBuffers{})
		slot = len(m.shapes) - 1
	}

	shape := m.shapes[slot]
	if shape.VertexBuffer != nil {
		// a freed slot may still be read by a frame in flight
		if err := m.context.WaitIdle(); err != nil {
			return -1, err
		}
	}
	if !shape.fits(len(vertices), len(indices)) {
		shape.destroy(m.context)
		if err := m.createShapeBuffers(shape, len(vertices), len(indices)); err != nil {
			return -1, err
		}
	}
	if err := vulkan.BufferUpload(m.context, m.commandPool, m.graphicsQueue, shape.VertexBuffer, metadata.VerticesBytes(vertices)); err != nil {
		return -1, err
	}
	if err := vulkan.BufferUpload(m.context, m.commandPool, m.graphicsQueue, shape.IndexBuffer, metadata.IndicesBytes(indices)); err != nil {
		return -1, err
	}

	shape.Vertices = vertices
	shape.Indices = indices
	shape.Rect = rect
	shape.Occupied = true
	shape.ID = uuid.New()
	m.bump()
	core.LogDebug("user shape %q stored in slot %d (%d triangles)", rect.Name, slot, len(indices)/3)
	return slot, nil
}

func (m *Manager) createShapeBuffers(shape *ShapedBuffers, vertices, indices int) error {
	local := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	vb, err := vulkan.BufferCreate(m.context, uint64(vertices)*uint64(metadata.VertexStride),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit), local)
	if err != nil {
		return err
	}
	ib, err := vulkan.BufferCreate(m.context, uint64(indices)*4,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit), local)
	if err != nil {
		vb.Destroy(m.context)
		return err
	}
	shape.VertexBuffer = vb
	shape.IndexBuffer = ib
	return nil
}

// FreeUserDefinedBuffers releases the slot for reuse. The buffers stay
// alive, the GPU may still be drawing the shape.
func (m *Manager) FreeUserDefinedBuffers(slot int) error {
	if !m.initialized {
		return core.ErrNotInitialized
	}
	if slot < 0 || slot >= len(m.shapes) || !m.shapes[slot].Occupied {
		return fmt.Errorf("slot %d: %w", slot, core.ErrInvalidSlot)
	}
	m.shapes[slot].Occupied = false
	m.bump()
	return nil
}

// ShapedBuffer returns the buffers of an occupied slot.
func (m *Manager) ShapedBuffer(slot int) (*ShapedBuffers, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	if slot < 0 || slot >= len(m.shapes) || !m.shapes[slot].Occupied {
		return nil, fmt.Errorf("slot %d: %w", slot, core.ErrInvalidSlot)
	}
	return m.shapes[slot], nil
}

// OccupiedShapes lists the occupied slots in ascending order.
func (m *Manager) OccupiedShapes() []int {
	var slots []int
	for i, shape := range m.shapes {
		if shape.Occupied {
			slots = append(slots, i)
		}
	}
	return slots
}
