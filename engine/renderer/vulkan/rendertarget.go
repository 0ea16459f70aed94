package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

// RenderTargetSet owns the render pass, the depth attachment and one
// framebuffer per swapchain image. The framebuffers live in the swapchain
// frames so they are indexed like everything else per image.
type RenderTargetSet struct {
	Renderpass *VulkanRenderpass
	Depth      *VulkanImage
	Extent     vk.Extent2D
	clearColor [4]float32
}

// RenderTargetSetCreate creates the render pass for the swapchain format and
// the size dependent targets for swapchain.
func RenderTargetSetCreate(context *VulkanContext, swapchain *VulkanSwapchain, clearColor [4]float32) (*RenderTargetSet, error) {
	rt := &RenderTargetSet{clearColor: clearColor}
	renderpass, err := RenderpassCreate(context, swapchain.ImageFormat.Format, clearColor, 1.0, 0)
	if err != nil {
		return nil, err
	}
	rt.Renderpass = renderpass

	if err := rt.Build(context, swapchain); err != nil {
		rt.Destroy(context, swapchain)
		return nil, err
	}
	return rt, nil
}

// IsCompatible is the render pass compatibility check run when the
// swapchain is rebuilt.
func (rt *RenderTargetSet) IsCompatible(colorFormat vk.Format) bool {
	return rt.Renderpass != nil && rt.Renderpass.IsCompatible(colorFormat, rt.Renderpass.DepthFormat)
}

// RecreateRenderpass replaces the render pass for a new color format. The
// size dependent targets must have been released before.
func (rt *RenderTargetSet) RecreateRenderpass(context *VulkanContext, colorFormat vk.Format) error {
	if rt.Renderpass != nil {
		rt.Renderpass.RenderpassDestroy(context)
	}
	renderpass, err := RenderpassCreate(context, colorFormat, rt.clearColor, 1.0, 0)
	if err != nil {
		rt.Renderpass = nil
		return err
	}
	rt.Renderpass = renderpass
	return nil
}

// Build creates the depth image sized to the swapchain and fills in the
// framebuffer of every frame.
func (rt *RenderTargetSet) Build(context *VulkanContext, swapchain *VulkanSwapchain) error {
	rt.Extent = swapchain.Extent

	depth, err := ImageCreate(
		context,
		swapchain.Extent.Width,
		swapchain.Extent.Height,
		context.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return err
	}
	rt.Depth = depth

	for _, frame := range swapchain.Frames {
		framebuffer, err := FramebufferCreate(context, rt.Renderpass, swapchain.Extent.Width, swapchain.Extent.Height,
			[]vk.ImageView{frame.View, rt.Depth.View})
		if err != nil {
			rt.Release(context, swapchain)
			return err
		}
		frame.Framebuffer = framebuffer
	}
	core.LogDebug("Created %d framebuffers.", len(swapchain.Frames))
	return nil
}

// Release destroys framebuffers then the depth image. The render pass stays.
func (rt *RenderTargetSet) Release(context *VulkanContext, swapchain *VulkanSwapchain) {
	if swapchain != nil {
		for _, frame := range swapchain.Frames {
			if frame.Framebuffer != nil {
				frame.Framebuffer.Destroy(context)
				frame.Framebuffer = nil
			}
		}
	}
	if rt.Depth != nil {
		rt.Depth.Destroy(context)
		rt.Depth = nil
	}
}

// Destroy releases everything including the render pass.
func (rt *RenderTargetSet) Destroy(context *VulkanContext, swapchain *VulkanSwapchain) {
	rt.Release(context, swapchain)
	if rt.Renderpass != nil {
		rt.Renderpass.RenderpassDestroy(context)
		rt.Renderpass = nil
	}
}
