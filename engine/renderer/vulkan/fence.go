package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	handle, err := context.Driver.CreateFence(createSignaled)
	if err != nil {
		return nil, fmt.Errorf("failed to create fence: %w", err)
	}
	// Make sure to signal the fence if required.
	return &VulkanFence{Handle: handle, IsSignaled: createSignaled}, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		context.Driver.DestroyFence(vf.Handle)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence is signaled or timeoutNs passes. A fence
// already known to be signaled returns immediately.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := context.Driver.WaitForFence(vf.Handle, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return core.ErrFenceTimeout
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
		return core.ErrDeviceLost
	default:
		return ResultError("vkWaitForFences", result)
	}
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := context.Driver.ResetFence(vf.Handle); err != nil {
		return fmt.Errorf("failed to reset fence: %w", err)
	}
	vf.IsSignaled = false
	return nil
}
