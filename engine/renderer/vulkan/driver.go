package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Driver is the table of device level Vulkan calls used by the renderer.
// NewDriver binds it to a real logical device; vulkantest.Driver implements
// it in memory so resource lifetimes and frame ordering can be tested
// without a GPU.
type Driver interface {
	DeviceWaitIdle() error
	FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error)
	FormatProperties(format vk.Format) vk.FormatProperties
	SurfaceSupport() (*SwapchainSupportInfo, error)

	CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error)
	DestroySwapchain(swapchain vk.Swapchain)
	GetSwapchainImages(swapchain vk.Swapchain) ([]vk.Image, error)
	AcquireNextImage(swapchain vk.Swapchain, timeout uint64, semaphore vk.Semaphore) (uint32, vk.Result)
	QueuePresent(queue vk.Queue, info *vk.PresentInfo) vk.Result

	CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error)
	DestroyBuffer(buffer vk.Buffer)
	BufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements
	BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory) error
	CreateImage(info *vk.ImageCreateInfo) (vk.Image, error)
	DestroyImage(image vk.Image)
	ImageMemoryRequirements(image vk.Image) vk.MemoryRequirements
	BindImageMemory(image vk.Image, memory vk.DeviceMemory) error
	AllocateMemory(info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error)
	FreeMemory(memory vk.DeviceMemory)
	MapMemory(memory vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, error)
	UnmapMemory(memory vk.DeviceMemory)
	CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error)
	DestroyImageView(view vk.ImageView)
	CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error)
	DestroySampler(sampler vk.Sampler)

	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(renderPass vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(framebuffer vk.Framebuffer)
	CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error)
	DestroyShaderModule(module vk.ShaderModule)
	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)
	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(pipeline vk.Pipeline)

	CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout)
	CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error)
	DestroyDescriptorPool(pool vk.DescriptorPool)
	AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error)
	DestroyCommandPool(pool vk.CommandPool)
	AllocateCommandBuffers(pool vk.CommandPool, level vk.CommandBufferLevel, count uint32) ([]vk.CommandBuffer, error)
	FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer)
	BeginCommandBuffer(commandBuffer vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error
	EndCommandBuffer(commandBuffer vk.CommandBuffer) error
	ResetCommandBuffer(commandBuffer vk.CommandBuffer) error

	CreateSemaphore() (vk.Semaphore, error)
	DestroySemaphore(semaphore vk.Semaphore)
	CreateFence(signaled bool) (vk.Fence, error)
	DestroyFence(fence vk.Fence)
	WaitForFence(fence vk.Fence, timeout uint64) vk.Result
	ResetFence(fence vk.Fence) error
	QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error
	QueueWaitIdle(queue vk.Queue) error

	CmdBeginRenderPass(commandBuffer vk.CommandBuffer, info *vk.RenderPassBeginInfo)
	CmdEndRenderPass(commandBuffer vk.CommandBuffer)
	CmdBindPipeline(commandBuffer vk.CommandBuffer, pipeline vk.Pipeline)
	CmdBindVertexBuffer(commandBuffer vk.CommandBuffer, buffer vk.Buffer)
	CmdBindIndexBuffer(commandBuffer vk.CommandBuffer, buffer vk.Buffer)
	CmdBindDescriptorSets(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32)
	CmdPushConstants(commandBuffer vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	CmdSetViewport(commandBuffer vk.CommandBuffer, viewport vk.Viewport)
	CmdSetScissor(commandBuffer vk.CommandBuffer, scissor vk.Rect2D)
	CmdSetLineWidth(commandBuffer vk.CommandBuffer, width float32)
	CmdDrawIndexed(commandBuffer vk.CommandBuffer, indexCount, firstIndex uint32, vertexOffset int32)
	CmdCopyBuffer(commandBuffer vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize)
	CmdCopyBufferToImage(commandBuffer vk.CommandBuffer, src vk.Buffer, dst vk.Image, width, height uint32)
	CmdImageBarrier(commandBuffer vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier)
}
