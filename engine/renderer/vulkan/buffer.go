package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// VulkanBuffer is a buffer with its own memory allocation.
type VulkanBuffer struct {
	Handle           vk.Buffer
	Memory           vk.DeviceMemory
	Size             uint64
	Usage            vk.BufferUsageFlags
	MemoryProperties vk.MemoryPropertyFlags
	// set while the memory is mapped
	Mapped unsafe.Pointer
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryProperties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("cannot create a buffer of size 0")
	}
	buffer := &VulkanBuffer{
		Size:             size,
		Usage:            usage,
		MemoryProperties: memoryProperties,
	}

	handle, err := context.Driver.CreateBuffer(&vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	})
	if err != nil {
		return nil, err
	}
	buffer.Handle = handle

	requirements := context.Driver.BufferMemoryRequirements(handle)
	memoryType, err := context.Driver.FindMemoryType(requirements.MemoryTypeBits, memoryProperties)
	if err != nil {
		buffer.Destroy(context)
		return nil, fmt.Errorf("unable to create vulkan buffer because the required memory type index was not found: %w", err)
	}

	memory, err := context.Driver.AllocateMemory(&vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	buffer.Memory = memory

	if err := context.Driver.BindBufferMemory(handle, memory); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}

func (vb *VulkanBuffer) HostVisible() bool {
	return vb.MemoryProperties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

// Map maps the whole buffer and keeps it mapped until Unmap.
func (vb *VulkanBuffer) Map(context *VulkanContext) (unsafe.Pointer, error) {
	if vb.Mapped != nil {
		return vb.Mapped, nil
	}
	if !vb.HostVisible() {
		return nil, fmt.Errorf("buffer memory is not host visible")
	}
	ptr, err := context.Driver.MapMemory(vb.Memory, 0, vk.DeviceSize(vb.Size))
	if err != nil {
		return nil, err
	}
	vb.Mapped = ptr
	return ptr, nil
}

func (vb *VulkanBuffer) Unmap(context *VulkanContext) {
	if vb.Mapped == nil {
		return
	}
	context.Driver.UnmapMemory(vb.Memory)
	vb.Mapped = nil
}

// LoadData copies data into the buffer at offset. A buffer that is not
// mapped yet is mapped for the copy only.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > vb.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, vb.Size)
	}
	if len(data) == 0 {
		return nil
	}
	keepMapped := vb.Mapped != nil
	ptr, err := vb.Map(context)
	if err != nil {
		return err
	}
	dst := unsafe.Slice((*byte)(unsafe.Add(ptr, offset)), len(data))
	copy(dst, data)
	if !keepMapped {
		vb.Unmap(context)
	}
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	vb.Unmap(context)
	if vb.Handle != vk.NullBuffer {
		context.Driver.DestroyBuffer(vb.Handle)
		vb.Handle = vk.NullBuffer
	}
	if vb.Memory != vk.NullDeviceMemory {
		context.Driver.FreeMemory(vb.Memory)
		vb.Memory = vk.NullDeviceMemory
	}
	vb.Size = 0
}

// BufferUpload writes data into a device local buffer through a host
// visible staging buffer and a single use command buffer, and waits for the
// copy to finish.
func BufferUpload(context *VulkanContext, pool vk.CommandPool, queue vk.Queue, dst *VulkanBuffer, data []byte) error {
	if uint64(len(data)) > dst.Size {
		return fmt.Errorf("upload of %d bytes overflows buffer of %d bytes", len(data), dst.Size)
	}
	if len(data) == 0 {
		return nil
	}
	if dst.HostVisible() {
		return dst.LoadData(context, 0, data)
	}

	staging, err := BufferCreate(context, uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	defer staging.Destroy(context)

	if err := staging.LoadData(context, 0, data); err != nil {
		return err
	}

	commandBuffer, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}
	context.Driver.CmdCopyBuffer(commandBuffer.Handle, staging.Handle, dst.Handle, vk.DeviceSize(len(data)))
	return commandBuffer.EndSingleUse(context, pool, queue)
}
