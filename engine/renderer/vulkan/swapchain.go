package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	vmath "github.com/spaghettifunk/vulkanmonkey/engine/math"
)

// SwapchainSupportInfo is what a surface supports on a physical device. It
// has to be queried again after any surface change.
type SwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SwapchainFrame groups everything that exists once per swapchain image so
// the per-image objects can never get out of step with each other.
type SwapchainFrame struct {
	Index uint32
	Image vk.Image
	View  vk.ImageView

	Framebuffer   *VulkanFramebuffer
	CommandBuffer *VulkanCommandBuffer
	// generation of the scene the prerecorded command buffer was built for
	RecordedGeneration uint64
	Recorded           bool
}

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	Frames      []*SwapchainFrame
}

// QuerySurfaceSupport reads capabilities, formats and present modes of
// surface on device.
func QuerySurfaceSupport(device vk.PhysicalDevice, surface vk.Surface) (*SwapchainSupportInfo, error) {
	info := &SwapchainSupportInfo{}
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &info.Capabilities); res != vk.Success {
		return nil, ResultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil); res != vk.Success {
		return nil, ResultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, info.Formats); res != vk.Success {
			return nil, ResultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil); res != vk.Success {
		return nil, ResultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	if modeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, info.PresentModes); res != vk.Success {
			return nil, ResultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return info, nil
}

// ChooseSwapchainFormat takes B8G8R8A8_UNORM with sRGB non linear color
// space when offered, else the first supported entry.
func ChooseSwapchainFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	if len(formats) == 0 {
		return preferred
	}
	// A single undefined entry means the surface has no preference.
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return preferred
	}
	for _, format := range formats {
		if format.Format == preferred.Format && format.ColorSpace == preferred.ColorSpace {
			return format
		}
	}
	return formats[0]
}

// ChooseSwapchainPresentMode prefers mailbox and falls back to FIFO, which
// every implementation supports. vsync forces FIFO.
func ChooseSwapchainPresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

// ChooseSwapchainExtent clamps the window size to the surface's allowed
// range. Surfaces with a fixed extent report min == max == current, so the
// clamp lands on it.
func ChooseSwapchainExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	min := capabilities.MinImageExtent
	max := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  vmath.Clamp(width, min.Width, max.Width),
		Height: vmath.Clamp(height, min.Height, max.Height),
	}
}

// ChooseImageCount asks for one image above the minimum, a MaxImageCount of
// zero means no upper limit.
func ChooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

// SwapchainCreate builds the swapchain for a window of width x height and
// one frame entry (image + view) per swapchain image. Framebuffers and
// command buffers are attached to the frames later.
func SwapchainCreate(context *VulkanContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	support, err := context.Driver.SurfaceSupport()
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, fmt.Errorf("surface reports no formats or present modes: %w", core.ErrNoSuitableDevice)
	}

	swapchain := &VulkanSwapchain{
		ImageFormat: ChooseSwapchainFormat(support.Formats),
		PresentMode: ChooseSwapchainPresentMode(support.PresentModes, vsync),
		Extent:      ChooseSwapchainExtent(support.Capabilities, width, height),
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    ChooseImageCount(support.Capabilities),
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	// Setup the queue family indices
	if context.GraphicsQueueIndex != context.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{context.GraphicsQueueIndex, context.PresentQueueIndex}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	handle, err := context.Driver.CreateSwapchain(&createInfo)
	if err != nil {
		return nil, err
	}
	swapchain.Handle = handle

	images, err := context.Driver.GetSwapchainImages(handle)
	if err != nil {
		swapchain.Destroy(context)
		return nil, err
	}

	swapchain.Frames = make([]*SwapchainFrame, 0, len(images))
	for i, image := range images {
		view, err := ImageViewCreate(context, image, swapchain.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			swapchain.Destroy(context)
			return nil, err
		}
		swapchain.Frames = append(swapchain.Frames, &SwapchainFrame{
			Index: uint32(i),
			Image: image,
			View:  view,
		})
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchain.Extent.Width, swapchain.Extent.Height, len(swapchain.Frames))
	return swapchain, nil
}

func (vs *VulkanSwapchain) ImageCount() int {
	return len(vs.Frames)
}

// Frame returns the entry for the acquired image index.
func (vs *VulkanSwapchain) Frame(index uint32) (*SwapchainFrame, error) {
	if int(index) >= len(vs.Frames) {
		return nil, fmt.Errorf("image index %d of %d: %w", index, len(vs.Frames), core.ErrNoSwapchainImage)
	}
	return vs.Frames[index], nil
}

// Destroy releases the image views and the swapchain. Framebuffers and
// command buffers referencing the frames must be gone already. The images
// are owned by the swapchain and go with it.
func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	for _, frame := range vs.Frames {
		if frame.View != vk.NullImageView {
			context.Driver.DestroyImageView(frame.View)
			frame.View = vk.NullImageView
		}
		frame.Image = vk.NullImage
	}
	vs.Frames = nil

	if vs.Handle != vk.NullSwapchain {
		context.Driver.DestroySwapchain(vs.Handle)
		vs.Handle = vk.NullSwapchain
	}
}
