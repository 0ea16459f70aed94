package vulkan

import (
	"errors"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

const (
	DefaultFenceTimeout   = uint64(time.Second)
	DefaultAcquireTimeout = uint64(time.Second)
)

type FrameStatus int

const (
	// FrameSuccess means the image was presented.
	FrameSuccess FrameStatus = iota
	// FrameResizeNeeded means the swapchain no longer matches the surface and
	// has to be recreated before the next frame.
	FrameResizeNeeded
)

func (s FrameStatus) String() string {
	switch s {
	case FrameSuccess:
		return "success"
	case FrameResizeNeeded:
		return "resize needed"
	}
	return fmt.Sprintf("FrameStatus(%d)", int(s))
}

// RecordFunc records the draw commands of one frame into cb. The command
// buffer is already in the recording state; the function must leave it
// there.
type RecordFunc func(cb *VulkanCommandBuffer, frame *SwapchainFrame) error

// FrameSubmitter drives one frame at a time through
// wait fence → acquire → record → submit → present.
// Only one frame is ever in flight, so a single fence and one pair of
// semaphores are enough.
type FrameSubmitter struct {
	CommandPool    vk.CommandPool
	Dynamic        *VulkanCommandBuffer
	ImageAvailable vk.Semaphore
	RenderFinished vk.Semaphore
	InFlight       *VulkanFence

	FenceTimeout   uint64
	AcquireTimeout uint64
}

func FrameSubmitterCreate(context *VulkanContext) (*FrameSubmitter, error) {
	fs := &FrameSubmitter{
		FenceTimeout:   DefaultFenceTimeout,
		AcquireTimeout: DefaultAcquireTimeout,
	}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	pool, err := context.Driver.CreateCommandPool(&poolCreateInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphics command pool: %w", err)
	}
	fs.CommandPool = pool
	core.LogDebug("Graphics command pool created.")

	if fs.Dynamic, err = NewVulkanCommandBuffer(context, pool); err != nil {
		fs.Destroy(context)
		return nil, err
	}
	if fs.ImageAvailable, err = context.Driver.CreateSemaphore(); err != nil {
		fs.Destroy(context)
		return nil, err
	}
	if fs.RenderFinished, err = context.Driver.CreateSemaphore(); err != nil {
		fs.Destroy(context)
		return nil, err
	}
	// Signaled so the very first frame does not wait.
	if fs.InFlight, err = NewFence(context, true); err != nil {
		fs.Destroy(context)
		return nil, err
	}
	return fs, nil
}

// AllocateFrameCommandBuffers gives every swapchain frame its own
// prerecordable command buffer.
func (fs *FrameSubmitter) AllocateFrameCommandBuffers(context *VulkanContext, swapchain *VulkanSwapchain) error {
	buffers, err := AllocateCommandBuffers(context, fs.CommandPool, len(swapchain.Frames))
	if err != nil {
		return err
	}
	for i, frame := range swapchain.Frames {
		frame.CommandBuffer = buffers[i]
		frame.Recorded = false
	}
	return nil
}

func (fs *FrameSubmitter) FreeFrameCommandBuffers(context *VulkanContext, swapchain *VulkanSwapchain) {
	if swapchain == nil {
		return
	}
	for _, frame := range swapchain.Frames {
		if frame.CommandBuffer != nil {
			frame.CommandBuffer.Free(context, fs.CommandPool)
			frame.CommandBuffer = nil
		}
		frame.Recorded = false
	}
}

// InvalidateRecorded forces every prerecorded command buffer to be recorded
// again before its next use.
func InvalidateRecorded(swapchain *VulkanSwapchain) {
	for _, frame := range swapchain.Frames {
		frame.Recorded = false
	}
}

// WaitIdleFrame blocks until the frame in flight has finished on the GPU.
// Host writes to buffers used by that frame are safe afterwards.
func (fs *FrameSubmitter) WaitIdleFrame(context *VulkanContext) error {
	return fs.InFlight.FenceWait(context, fs.FenceTimeout)
}

// Submit runs one frame. generation identifies the scene content; a
// prerecorded buffer built for another generation is recorded again.
// ImageAvailable is unsignaled whenever Submit returns: if an acquired
// image never reaches the queue the semaphore is replaced.
func (fs *FrameSubmitter) Submit(context *VulkanContext, swapchain *VulkanSwapchain, useDynamic bool, generation uint64, record RecordFunc) (FrameStatus, error) {
	// 1. the previous frame must be done before its semaphores and buffers are reused
	if err := fs.InFlight.FenceWait(context, fs.FenceTimeout); err != nil {
		return FrameSuccess, err
	}

	// 2. acquire
	imageIndex, result := context.Driver.AcquireNextImage(swapchain.Handle, fs.AcquireTimeout, fs.ImageAvailable)
	suboptimal := false
	switch result {
	case vk.Success:
	case vk.Suboptimal:
		// the semaphore will be signaled, so the frame still has to go out
		suboptimal = true
	case vk.ErrorOutOfDate:
		return FrameResizeNeeded, nil
	case vk.Timeout, vk.NotReady:
		return FrameSuccess, core.ErrAcquireTimeout
	default:
		return FrameSuccess, ResultError("vkAcquireNextImageKHR", result)
	}

	abandon := func(err error) (FrameStatus, error) {
		if rerr := fs.resetImageAvailable(context); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return FrameSuccess, err
	}

	frame, err := swapchain.Frame(imageIndex)
	if err != nil {
		return abandon(err)
	}

	// 3. record
	cb, err := fs.record(context, frame, useDynamic, generation, record)
	if err != nil {
		return abandon(err)
	}

	// 4. submit
	if err := fs.InFlight.FenceReset(context); err != nil {
		return abandon(err)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{fs.ImageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{fs.RenderFinished},
	}
	if err := context.Locks.SafeQueueCall(context.GraphicsQueueIndex, func() error {
		return context.Driver.QueueSubmit(context.GraphicsQueue, []vk.SubmitInfo{submitInfo}, fs.InFlight.Handle)
	}); err != nil {
		return abandon(fmt.Errorf("failed to submit draw command buffer: %w", err))
	}
	cb.UpdateSubmitted()

	// 5. present
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{fs.RenderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var presentResult vk.Result
	_ = context.Locks.SafeQueueCall(context.PresentQueueIndex, func() error {
		presentResult = context.Driver.QueuePresent(context.PresentQueue, &presentInfo)
		return nil
	})
	switch presentResult {
	case vk.Success:
		if suboptimal {
			return FrameResizeNeeded, nil
		}
		return FrameSuccess, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return FrameResizeNeeded, nil
	default:
		return FrameSuccess, ResultError("vkQueuePresentKHR", presentResult)
	}
}

// resetImageAvailable swaps the acquire semaphore for a fresh one once the
// device is idle, dropping the signal of an image that was never submitted.
func (fs *FrameSubmitter) resetImageAvailable(context *VulkanContext) error {
	if err := context.WaitIdle(); err != nil {
		return err
	}
	context.Driver.DestroySemaphore(fs.ImageAvailable)
	fs.ImageAvailable = vk.NullSemaphore

	semaphore, err := context.Driver.CreateSemaphore()
	if err != nil {
		return fmt.Errorf("failed to recreate the image available semaphore: %w", err)
	}
	fs.ImageAvailable = semaphore
	return nil
}

func (fs *FrameSubmitter) record(context *VulkanContext, frame *SwapchainFrame, useDynamic bool, generation uint64, record RecordFunc) (*VulkanCommandBuffer, error) {
	if useDynamic {
		cb := fs.Dynamic
		if err := cb.Reset(context); err != nil {
			return nil, err
		}
		if err := cb.Begin(context, true, false, false); err != nil {
			return nil, err
		}
		if err := record(cb, frame); err != nil {
			return nil, err
		}
		if err := cb.End(context); err != nil {
			return nil, err
		}
		return cb, nil
	}

	cb := frame.CommandBuffer
	if cb == nil {
		return nil, fmt.Errorf("swapchain image %d has no command buffer", frame.Index)
	}
	if frame.Recorded && frame.RecordedGeneration == generation {
		return cb, nil
	}
	if err := cb.Reset(context); err != nil {
		return nil, err
	}
	if err := cb.Begin(context, false, false, true); err != nil {
		return nil, err
	}
	if err := record(cb, frame); err != nil {
		return nil, err
	}
	if err := cb.End(context); err != nil {
		return nil, err
	}
	frame.Recorded = true
	frame.RecordedGeneration = generation
	return cb, nil
}

// Destroy releases the pool, which frees every command buffer allocated
// from it, the semaphores and the fence. The device must be idle.
func (fs *FrameSubmitter) Destroy(context *VulkanContext) {
	if fs.InFlight != nil {
		fs.InFlight.FenceDestroy(context)
		fs.InFlight = nil
	}
	if fs.RenderFinished != vk.NullSemaphore {
		context.Driver.DestroySemaphore(fs.RenderFinished)
		fs.RenderFinished = vk.NullSemaphore
	}
	if fs.ImageAvailable != vk.NullSemaphore {
		context.Driver.DestroySemaphore(fs.ImageAvailable)
		fs.ImageAvailable = vk.NullSemaphore
	}
	if fs.Dynamic != nil {
		fs.Dynamic.Free(context, fs.CommandPool)
		fs.Dynamic = nil
	}
	if fs.CommandPool != vk.NullCommandPool {
		context.Driver.DestroyCommandPool(fs.CommandPool)
		fs.CommandPool = vk.NullCommandPool
	}
}
