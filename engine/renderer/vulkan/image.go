package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
	Layout vk.ImageLayout
}

/**
 * @brief Creates a 2D image with dedicated memory and, when aspect is not
 * zero, a view covering the whole image.
 */
func ImageCreate(
	context *VulkanContext,
	width, height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	aspect vk.ImageAspectFlags,
) (*VulkanImage, error) {
	image := &VulkanImage{
		Format: format,
		Width:  width,
		Height: height,
		Layout: vk.ImageLayoutUndefined,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	handle, err := context.Driver.CreateImage(&imageCreateInfo)
	if err != nil {
		return nil, err
	}
	image.Handle = handle

	requirements := context.Driver.ImageMemoryRequirements(handle)
	memoryType, err := context.Driver.FindMemoryType(requirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		image.Destroy(context)
		return nil, fmt.Errorf("required memory type not found, image not valid: %w", err)
	}

	memory, err := context.Driver.AllocateMemory(&vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.Memory = memory

	// TODO: configurable memory offset when images share an allocation.
	if err := context.Driver.BindImageMemory(handle, memory); err != nil {
		image.Destroy(context)
		return nil, err
	}

	if aspect != 0 {
		view, err := ImageViewCreate(context, handle, format, aspect)
		if err != nil {
			image.Destroy(context)
			return nil, err
		}
		image.View = view
	}
	return image, nil
}

// ImageViewCreate creates a 2D view over the single mip level and layer.
func ImageViewCreate(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	return context.Driver.CreateImageView(&viewCreateInfo)
}

/**
 * @brief Records a layout transition of the whole color image. Only the
 * transitions used by texture uploads are supported.
 */
func (vi *VulkanImage) TransitionLayout(context *VulkanContext, commandBuffer *VulkanCommandBuffer, newLayout vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vi.Layout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	// Don't care about the old layout, transition to optimal layout (for the underlying implementation).
	case vi.Layout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	// Transitioning from a transfer destination layout to a shader-readonly layout.
	case vi.Layout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", vi.Layout, newLayout)
	}

	context.Driver.CmdImageBarrier(commandBuffer.Handle, srcStage, dstStage, barrier)
	vi.Layout = newLayout
	return nil
}

// CopyFromBuffer records a copy of a tightly packed buffer into the image.
// The image has to be in TRANSFER_DST_OPTIMAL layout.
func (vi *VulkanImage) CopyFromBuffer(context *VulkanContext, buffer vk.Buffer, commandBuffer *VulkanCommandBuffer) {
	context.Driver.CmdCopyBufferToImage(commandBuffer.Handle, buffer, vi.Handle, vi.Width, vi.Height)
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	if vi.View != vk.NullImageView {
		context.Driver.DestroyImageView(vi.View)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		context.Driver.FreeMemory(vi.Memory)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		context.Driver.DestroyImage(vi.Handle)
		vi.Handle = vk.NullImage
	}
}
