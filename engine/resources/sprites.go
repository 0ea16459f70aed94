package resources

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

// SpriteDraw is everything needed to record the draw of one sprite.
type SpriteDraw struct {
	// TextureSet is bound as set 1 with DynamicOffset.
	TextureSet    vk.DescriptorSet
	DynamicOffset uint32
	FirstIndex    uint32
	IndexCount    uint32
}

// createSpriteBuffers sizes the sprite buffers for MaxSprites. The model
// matrices share one dynamic uniform buffer whose stride honors the device
// offset alignment.
func (m *Manager) createSpriteBuffers() error {
	local := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	capacity := uint64(m.config.MaxSprites)
	var err error

	m.spriteVertexBuffer, err = vulkan.BufferCreate(m.context, capacity*4*uint64(metadata.VertexStride),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit), local)
	if err != nil {
		return err
	}
	m.spriteIndexBuffer, err = vulkan.BufferCreate(m.context, capacity*6*4,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit), local)
	if err != nil {
		return err
	}

	m.spriteStride = metadata.GetAligned(metadata.SpriteUniformSize, m.context.MinUniformBufferOffsetAlignment())
	m.spriteUniformBuffer, err = vulkan.BufferCreate(m.context, capacity*m.spriteStride,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), hostVisible)
	if err != nil {
		return err
	}
	// written every time sprites are pushed, stays mapped
	_, err = m.spriteUniformBuffer.Map(m.context)
	return err
}

// SpriteUniformStride is the distance between two model matrices in the
// dynamic uniform buffer.
func (m *Manager) SpriteUniformStride() uint64 {
	return m.spriteStride
}

// SpriteBuffers returns the shared vertex and index buffer of all sprites.
func (m *Manager) SpriteBuffers() (vertex, index *vulkan.VulkanBuffer, err error) {
	if !m.initialized {
		return nil, nil, core.ErrNotInitialized
	}
	return m.spriteVertexBuffer, m.spriteIndexBuffer, nil
}

// PushSprites uploads the quads and model matrices of sprites and returns
// one draw per sprite, in order. Textures are loaded on first use. The
// device must not be reading the sprite buffers.
func (m *Manager) PushSprites(sprites []*metadata.Sprite) ([]SpriteDraw, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	if len(sprites) > int(m.config.MaxSprites) {
		return nil, fmt.Errorf("%d sprites pushed, at most %d: %w", len(sprites), m.config.MaxSprites, core.ErrSpriteCapacity)
	}
	if len(sprites) == 0 {
		m.bump()
		return nil, nil
	}

	vertices := make([]metadata.Vertex, 0, len(sprites)*4)
	indices := make([]uint32, 0, len(sprites)*6)
	draws := make([]SpriteDraw, 0, len(sprites))
	models := make([]byte, uint64(len(sprites))*m.spriteStride)

	for i, sprite := range sprites {
		texture, err := m.Texture(sprite.TextureName())
		if err != nil {
			return nil, fmt.Errorf("sprite %q: %w", sprite.Name, err)
		}
		quad, quadIndices := sprite.Quad(uint32(len(vertices)))
		draws = append(draws, SpriteDraw{
			TextureSet:    texture.DescriptorSet,
			DynamicOffset: uint32(uint64(i) * m.spriteStride),
			FirstIndex:    uint32(len(indices)),
			IndexCount:    uint32(len(quadIndices)),
		})
		vertices = append(vertices, quad[:]...)
		indices = append(indices, quadIndices[:]...)

		model := sprite.Model()
		copy(models[uint64(i)*m.spriteStride:], metadata.Mat4Bytes(&model))
	}

	if err := vulkan.BufferUpload(m.context, m.commandPool, m.graphicsQueue, m.spriteVertexBuffer, metadata.VerticesBytes(vertices)); err != nil {
		return nil, err
	}
	if err := vulkan.BufferUpload(m.context, m.commandPool, m.graphicsQueue, m.spriteIndexBuffer, metadata.IndicesBytes(indices)); err != nil {
		return nil, err
	}
	if err := m.spriteUniformBuffer.LoadData(m.context, 0, models); err != nil {
		return nil, err
	}
	m.bump()
	return draws, nil
}
