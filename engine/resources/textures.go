package resources

import (
	"fmt"
	"image"
	"image/color"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

/**
 * @brief A sampled texture and the sprite descriptor set that binds it
 * together with the sprite model matrices.
 */
type Texture struct {
	ID            uuid.UUID
	Name          string
	Width         uint32
	Height        uint32
	Image         *vulkan.VulkanImage
	DescriptorSet vk.DescriptorSet
}

func (m *Manager) createDefaultTexture() error {
	pixels := image.NewRGBA(image.Rect(0, 0, 1, 1))
	pixels.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	_, err := m.createTexture(metadata.DefaultTextureName, pixels)
	return err
}

// Texture returns the named texture, loading and uploading it on first use.
// Textures are never evicted before DeInit.
func (m *Manager) Texture(name string) (*Texture, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	if t, ok := m.textures[name]; ok {
		return t, nil
	}
	// the default texture does not count against the capacity
	if len(m.textures)-1 >= int(m.config.MaxTextures) {
		return nil, fmt.Errorf("texture %q: %w", name, core.ErrTextureCapacity)
	}
	if m.images == nil {
		return nil, fmt.Errorf("texture %q: no image source configured", name)
	}
	pixels, err := m.images.LoadImage(name)
	if err != nil {
		core.LogError("failed to load texture %q: %s", name, err)
		return nil, err
	}
	t, err := m.createTexture(name, pixels)
	if err != nil {
		return nil, err
	}
	m.bump()
	return t, nil
}

// TextureCount includes the default texture.
func (m *Manager) TextureCount() int {
	return len(m.textures)
}

func (m *Manager) createTexture(name string, pixels *image.RGBA) (*Texture, error) {
	bounds := pixels.Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("texture %q has no pixels", name)
	}
	data := packedPixels(pixels)

	staging, err := vulkan.BufferCreate(m.context, uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisible)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(m.context)
	if err := staging.LoadData(m.context, 0, data); err != nil {
		return nil, err
	}

	img, err := vulkan.ImageCreate(m.context, width, height,
		vk.FormatR8g8b8a8Unorm,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	if err := m.uploadImage(img, staging); err != nil {
		img.Destroy(m.context)
		return nil, err
	}

	set, err := m.pool.Allocate(m.context, m.spriteLayout)
	if err != nil {
		img.Destroy(m.context)
		return nil, fmt.Errorf("texture %q: %w", name, err)
	}
	m.context.Driver.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		vulkan.WriteUniformBuffer(set, 0, true, m.spriteUniformBuffer, metadata.SpriteUniformSize),
		vulkan.WriteCombinedImageSampler(set, 1, img.View, m.sampler),
	})

	t := &Texture{
		ID:            uuid.New(),
		Name:          name,
		Width:         width,
		Height:        height,
		Image:         img,
		DescriptorSet: set,
	}
	m.textures[name] = t
	core.LogDebug("texture %q uploaded (%dx%d)", name, width, height)
	return t, nil
}

func (m *Manager) uploadImage(img *vulkan.VulkanImage, staging *vulkan.VulkanBuffer) error {
	cb, err := vulkan.AllocateAndBeginSingleUse(m.context, m.commandPool)
	if err != nil {
		return err
	}
	if err := img.TransitionLayout(m.context, cb, vk.ImageLayoutTransferDstOptimal); err != nil {
		cb.Free(m.context, m.commandPool)
		return err
	}
	img.CopyFromBuffer(m.context, staging.Handle, cb)
	if err := img.TransitionLayout(m.context, cb, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		cb.Free(m.context, m.commandPool)
		return err
	}
	return cb.EndSingleUse(m.context, m.commandPool, m.graphicsQueue)
}

// packedPixels drops any row padding of a sub image.
func packedPixels(pixels *image.RGBA) []byte {
	bounds := pixels.Bounds()
	rowBytes := bounds.Dx() * 4
	if pixels.Stride == rowBytes && len(pixels.Pix) == rowBytes*bounds.Dy() {
		return pixels.Pix
	}
	out := make([]byte, 0, rowBytes*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := pixels.PixOffset(bounds.Min.X, y)
		out = append(out, pixels.Pix[start:start+rowBytes]...)
	}
	return out
}
