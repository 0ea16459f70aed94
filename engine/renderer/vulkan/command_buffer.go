package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

// NewVulkanCommandBuffer allocates one primary command buffer from pool.
func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	buffers, err := AllocateCommandBuffers(context, pool, 1)
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

// AllocateCommandBuffers allocates count primary command buffers in one call.
// The pool is shared by frames and uploads, so access to it is serialized.
func AllocateCommandBuffers(context *VulkanContext, pool vk.CommandPool, count int) ([]*VulkanCommandBuffer, error) {
	var handles []vk.CommandBuffer
	if err := context.Locks.SafeCall(CommandBufferManagement, func() error {
		var err error
		handles, err = context.Driver.AllocateCommandBuffers(pool, vk.CommandBufferLevelPrimary, uint32(count))
		return err
	}); err != nil {
		return nil, err
	}
	out := make([]*VulkanCommandBuffer, len(handles))
	for i, handle := range handles {
		out[i] = &VulkanCommandBuffer{Handle: handle, State: COMMAND_BUFFER_STATE_READY}
	}
	return out, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.Handle != nil {
		_ = context.Locks.SafeCall(CommandBufferManagement, func() error {
			context.Driver.FreeCommandBuffers(pool, []vk.CommandBuffer{v.Handle})
			return nil
		})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(context *VulkanContext, isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	var flags vk.CommandBufferUsageFlags
	if isSingleUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := context.Driver.BeginCommandBuffer(v.Handle, flags); err != nil {
		return fmt.Errorf("failed to begin command buffer: %w", err)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End(context *VulkanContext) error {
	if err := context.Driver.EndCommandBuffer(v.Handle); err != nil {
		return fmt.Errorf("failed to end command buffer: %w", err)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset puts the buffer back into the initial state. The pool must have
// been created with RESET_COMMAND_BUFFER.
func (v *VulkanCommandBuffer) Reset(context *VulkanContext) error {
	if err := context.Driver.ResetCommandBuffer(v.Handle); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

/**
 * Allocates and begins recording to out_command_buffer.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(context, true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for queue operation and frees the provided command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)

	if err := v.End(context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	// Uploads share the graphics queue with the frame submissions.
	return context.Locks.SafeQueueCall(context.GraphicsQueueIndex, func() error {
		if err := context.Driver.QueueSubmit(queue, []vk.SubmitInfo{submitInfo}, vk.NullFence); err != nil {
			return err
		}
		// Wait for it to finish
		return context.Driver.QueueWaitIdle(queue)
	})
}
