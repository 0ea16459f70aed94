package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanContext is what every renderer object needs to talk to the device:
// the driver, the queues it submits on and the device limits it must honor.
// It is shared by pointer and never copied.
type VulkanContext struct {
	Driver  Driver
	Surface vk.Surface

	GraphicsQueue      vk.Queue
	PresentQueue       vk.Queue
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	Properties  vk.PhysicalDeviceProperties
	DepthFormat vk.Format

	Locks *VulkanLockPool
}

// NewVulkanContext builds a context on top of a live DeviceContext.
func NewVulkanContext(dc *DeviceContext) *VulkanContext {
	return &VulkanContext{
		Driver:             NewDriver(dc),
		Surface:            dc.Surface,
		GraphicsQueue:      dc.GraphicsQueue,
		PresentQueue:       dc.PresentQueue,
		GraphicsQueueIndex: dc.QueueFamilies.Graphics,
		PresentQueueIndex:  dc.QueueFamilies.Present,
		Properties:         dc.Properties,
		DepthFormat:        dc.DepthFormat,
		Locks:              newLocks(dc.QueueFamilies.Graphics, dc.QueueFamilies.Present),
	}
}

// NewContextWithDriver is used when the device is provided by someone else,
// the tests for instance.
func NewContextWithDriver(driver Driver, properties vk.PhysicalDeviceProperties, depthFormat vk.Format) *VulkanContext {
	return &VulkanContext{
		Driver:      driver,
		Properties:  properties,
		DepthFormat: depthFormat,
		Locks:       newLocks(0, 0),
	}
}

func newLocks(graphics, present uint32) *VulkanLockPool {
	locks := NewVulkanLockPool()
	locks.SetQueueFamily(graphics)
	locks.SetQueueFamily(present)
	return locks
}

// MinUniformBufferOffsetAlignment is the stride granularity for dynamic
// uniform buffers.
func (vc *VulkanContext) MinUniformBufferOffsetAlignment() uint64 {
	return uint64(vc.Properties.Limits.MinUniformBufferOffsetAlignment)
}

// WaitIdle blocks until the device has finished every submitted command.
func (vc *VulkanContext) WaitIdle() error {
	return vc.Driver.DeviceWaitIdle()
}
