package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// vkDriver forwards every call to goki/vulkan on the logical device owned
// by a DeviceContext. The allocator is always nil.
type vkDriver struct {
	dc     *DeviceContext
	device vk.Device
	memory vk.PhysicalDeviceMemoryProperties
}

// NewDriver binds the real Vulkan entry points to dc's logical device.
func NewDriver(dc *DeviceContext) Driver {
	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(dc.PhysicalDevice, &memory)
	memory.Deref()
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
	}
	return &vkDriver{dc: dc, device: dc.Device, memory: memory}
}

func (d *vkDriver) DeviceWaitIdle() error {
	return ResultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

func (d *vkDriver) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		if typeBits&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches bits %b with properties %b", typeBits, properties)
}

func (d *vkDriver) FormatProperties(format vk.Format) vk.FormatProperties {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.dc.PhysicalDevice, format, &properties)
	properties.Deref()
	return properties
}

func (d *vkDriver) SurfaceSupport() (*SwapchainSupportInfo, error) {
	return QuerySurfaceSupport(d.dc.PhysicalDevice, d.dc.Surface)
}

func (d *vkDriver) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	var swapchain vk.Swapchain
	res := vk.CreateSwapchain(d.device, info, nil, &swapchain)
	return swapchain, ResultError("vkCreateSwapchainKHR", res)
}

func (d *vkDriver) DestroySwapchain(swapchain vk.Swapchain) {
	vk.DestroySwapchain(d.device, swapchain, nil)
}

func (d *vkDriver) GetSwapchainImages(swapchain vk.Swapchain) ([]vk.Image, error) {
	var count uint32
	if res := vk.GetSwapchainImages(d.device, swapchain, &count, nil); res != vk.Success {
		return nil, ResultError("vkGetSwapchainImagesKHR", res)
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.device, swapchain, &count, images); res != vk.Success {
		return nil, ResultError("vkGetSwapchainImagesKHR", res)
	}
	return images[:count], nil
}

func (d *vkDriver) AcquireNextImage(swapchain vk.Swapchain, timeout uint64, semaphore vk.Semaphore) (uint32, vk.Result) {
	var index uint32
	res := vk.AcquireNextImage(d.device, swapchain, timeout, semaphore, vk.NullFence, &index)
	return index, res
}

func (d *vkDriver) QueuePresent(queue vk.Queue, info *vk.PresentInfo) vk.Result {
	return vk.QueuePresent(queue, info)
}

func (d *vkDriver) CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error) {
	var buffer vk.Buffer
	res := vk.CreateBuffer(d.device, info, nil, &buffer)
	return buffer, ResultError("vkCreateBuffer", res)
}

func (d *vkDriver) DestroyBuffer(buffer vk.Buffer) {
	vk.DestroyBuffer(d.device, buffer, nil)
}

func (d *vkDriver) BufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements {
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &requirements)
	requirements.Deref()
	return requirements
}

func (d *vkDriver) BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory) error {
	return ResultError("vkBindBufferMemory", vk.BindBufferMemory(d.device, buffer, memory, 0))
}

func (d *vkDriver) CreateImage(info *vk.ImageCreateInfo) (vk.Image, error) {
	var image vk.Image
	res := vk.CreateImage(d.device, info, nil, &image)
	return image, ResultError("vkCreateImage", res)
}

func (d *vkDriver) DestroyImage(image vk.Image) {
	vk.DestroyImage(d.device, image, nil)
}

func (d *vkDriver) ImageMemoryRequirements(image vk.Image) vk.MemoryRequirements {
	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &requirements)
	requirements.Deref()
	return requirements
}

func (d *vkDriver) BindImageMemory(image vk.Image, memory vk.DeviceMemory) error {
	return ResultError("vkBindImageMemory", vk.BindImageMemory(d.device, image, memory, 0))
}

func (d *vkDriver) AllocateMemory(info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error) {
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(d.device, info, nil, &memory)
	return memory, ResultError("vkAllocateMemory", res)
}

func (d *vkDriver) FreeMemory(memory vk.DeviceMemory) {
	vk.FreeMemory(d.device, memory, nil)
}

func (d *vkDriver) MapMemory(memory vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, error) {
	var data unsafe.Pointer
	res := vk.MapMemory(d.device, memory, offset, size, 0, &data)
	return data, ResultError("vkMapMemory", res)
}

func (d *vkDriver) UnmapMemory(memory vk.DeviceMemory) {
	vk.UnmapMemory(d.device, memory)
}

func (d *vkDriver) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	res := vk.CreateImageView(d.device, info, nil, &view)
	return view, ResultError("vkCreateImageView", res)
}

func (d *vkDriver) DestroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.device, view, nil)
}

func (d *vkDriver) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	var sampler vk.Sampler
	res := vk.CreateSampler(d.device, info, nil, &sampler)
	return sampler, ResultError("vkCreateSampler", res)
}

func (d *vkDriver) DestroySampler(sampler vk.Sampler) {
	vk.DestroySampler(d.device, sampler, nil)
}

func (d *vkDriver) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var renderPass vk.RenderPass
	res := vk.CreateRenderPass(d.device, info, nil, &renderPass)
	return renderPass, ResultError("vkCreateRenderPass", res)
}

func (d *vkDriver) DestroyRenderPass(renderPass vk.RenderPass) {
	vk.DestroyRenderPass(d.device, renderPass, nil)
}

func (d *vkDriver) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var framebuffer vk.Framebuffer
	res := vk.CreateFramebuffer(d.device, info, nil, &framebuffer)
	return framebuffer, ResultError("vkCreateFramebuffer", res)
}

func (d *vkDriver) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(d.device, framebuffer, nil)
}

func (d *vkDriver) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	res := vk.CreateShaderModule(d.device, info, nil, &module)
	return module, ResultError("vkCreateShaderModule", res)
}

func (d *vkDriver) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.device, module, nil)
}

func (d *vkDriver) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var layout vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.device, info, nil, &layout)
	return layout, ResultError("vkCreatePipelineLayout", res)
}

func (d *vkDriver) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.device, layout, nil)
}

func (d *vkDriver) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines)
	return pipelines[0], ResultError("vkCreateGraphicsPipelines", res)
}

func (d *vkDriver) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(d.device, pipeline, nil)
}

func (d *vkDriver) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device, info, nil, &layout)
	return layout, ResultError("vkCreateDescriptorSetLayout", res)
}

func (d *vkDriver) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.device, layout, nil)
}

func (d *vkDriver) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.device, info, nil, &pool)
	return pool, ResultError("vkCreateDescriptorPool", res)
}

func (d *vkDriver) DestroyDescriptorPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(d.device, pool, nil)
}

func (d *vkDriver) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	return set, ResultError("vkAllocateDescriptorSets", res)
}

func (d *vkDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
}

func (d *vkDriver) CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error) {
	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.device, info, nil, &pool)
	return pool, ResultError("vkCreateCommandPool", res)
}

func (d *vkDriver) DestroyCommandPool(pool vk.CommandPool) {
	vk.DestroyCommandPool(d.device, pool, nil)
}

func (d *vkDriver) AllocateCommandBuffers(pool vk.CommandPool, level vk.CommandBufferLevel, count uint32) ([]vk.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, count)
	res := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: count,
	}, buffers)
	if res != vk.Success {
		return nil, ResultError("vkAllocateCommandBuffers", res)
	}
	return buffers, nil
}

func (d *vkDriver) FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer) {
	vk.FreeCommandBuffers(d.device, pool, uint32(len(buffers)), buffers)
}

func (d *vkDriver) BeginCommandBuffer(commandBuffer vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	res := vk.BeginCommandBuffer(commandBuffer, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	})
	return ResultError("vkBeginCommandBuffer", res)
}

func (d *vkDriver) EndCommandBuffer(commandBuffer vk.CommandBuffer) error {
	return ResultError("vkEndCommandBuffer", vk.EndCommandBuffer(commandBuffer))
}

func (d *vkDriver) ResetCommandBuffer(commandBuffer vk.CommandBuffer) error {
	return ResultError("vkResetCommandBuffer", vk.ResetCommandBuffer(commandBuffer, 0))
}

func (d *vkDriver) CreateSemaphore() (vk.Semaphore, error) {
	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &semaphore)
	return semaphore, ResultError("vkCreateSemaphore", res)
}

func (d *vkDriver) DestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(d.device, semaphore, nil)
}

func (d *vkDriver) CreateFence(signaled bool) (vk.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	res := vk.CreateFence(d.device, &info, nil, &fence)
	return fence, ResultError("vkCreateFence", res)
}

func (d *vkDriver) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(d.device, fence, nil)
}

func (d *vkDriver) WaitForFence(fence vk.Fence, timeout uint64) vk.Result {
	return vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, timeout)
}

func (d *vkDriver) ResetFence(fence vk.Fence) error {
	return ResultError("vkResetFences", vk.ResetFences(d.device, 1, []vk.Fence{fence}))
}

func (d *vkDriver) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	return ResultError("vkQueueSubmit", vk.QueueSubmit(queue, uint32(len(submits)), submits, fence))
}

func (d *vkDriver) QueueWaitIdle(queue vk.Queue) error {
	return ResultError("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
}

func (d *vkDriver) CmdBeginRenderPass(commandBuffer vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(commandBuffer, info, vk.SubpassContentsInline)
}

func (d *vkDriver) CmdEndRenderPass(commandBuffer vk.CommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer)
}

func (d *vkDriver) CmdBindPipeline(commandBuffer vk.CommandBuffer, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, pipeline)
}

func (d *vkDriver) CmdBindVertexBuffer(commandBuffer vk.CommandBuffer, buffer vk.Buffer) {
	vk.CmdBindVertexBuffers(commandBuffer, 0, 1, []vk.Buffer{buffer}, []vk.DeviceSize{0})
}

func (d *vkDriver) CmdBindIndexBuffer(commandBuffer vk.CommandBuffer, buffer vk.Buffer) {
	vk.CmdBindIndexBuffer(commandBuffer, buffer, 0, vk.IndexTypeUint32)
}

func (d *vkDriver) CmdBindDescriptorSets(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32) {
	vk.CmdBindDescriptorSets(commandBuffer, vk.PipelineBindPointGraphics, layout, firstSet,
		uint32(len(sets)), sets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (d *vkDriver) CmdPushConstants(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(commandBuffer, layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *vkDriver) CmdSetViewport(commandBuffer vk.CommandBuffer, viewport vk.Viewport) {
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})
}

func (d *vkDriver) CmdSetScissor(commandBuffer vk.CommandBuffer, scissor vk.Rect2D) {
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})
}

func (d *vkDriver) CmdSetLineWidth(commandBuffer vk.CommandBuffer, width float32) {
	vk.CmdSetLineWidth(commandBuffer, width)
}

func (d *vkDriver) CmdDrawIndexed(commandBuffer vk.CommandBuffer, indexCount, firstIndex uint32, vertexOffset int32) {
	vk.CmdDrawIndexed(commandBuffer, indexCount, 1, firstIndex, vertexOffset, 0)
}

func (d *vkDriver) CmdCopyBuffer(commandBuffer vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	vk.CmdCopyBuffer(commandBuffer, src, dst, 1, []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
}

func (d *vkDriver) CmdCopyBufferToImage(commandBuffer vk.CommandBuffer, src vk.Buffer, dst vk.Image, width, height uint32) {
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(commandBuffer, src, dst, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (d *vkDriver) CmdImageBarrier(commandBuffer vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(commandBuffer, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
