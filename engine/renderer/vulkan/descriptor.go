package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

/**
 * @brief One binding of a descriptor set layout.
 */
type DescriptorBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Stages  vk.ShaderStageFlags
}

/**
 * @brief A descriptor pool with a fixed number of sets. Vulkan only reports
 * exhaustion on some drivers, so the count is tracked here as well.
 */
type VulkanDescriptorPool struct {
	Handle    vk.DescriptorPool
	MaxSets   uint32
	Allocated uint32
}

// DescriptorSetLayoutCreate creates a layout with one descriptor per binding.
func DescriptorSetLayoutCreate(context *VulkanContext, bindings []DescriptorBinding) (vk.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: 1,
			StageFlags:      b.Stages,
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	err := context.Locks.SafeCall(ResourceManagement, func() error {
		var err error
		layout, err = context.Driver.CreateDescriptorSetLayout(&createInfo)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor set layout: %w", err)
	}
	return layout, nil
}

// DescriptorPoolCreate creates a pool for maxSets sets. sizes holds the
// total number of descriptors per type.
func DescriptorPoolCreate(context *VulkanContext, maxSets uint32, sizes map[vk.DescriptorType]uint32) (*VulkanDescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	// stable order keeps the create info deterministic
	for _, t := range []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeUniformBufferDynamic,
		vk.DescriptorTypeCombinedImageSampler,
	} {
		if n, ok := sizes[t]; ok && n > 0 {
			poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
		}
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	handle, err := context.Driver.CreateDescriptorPool(&createInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	return &VulkanDescriptorPool{Handle: handle, MaxSets: maxSets}, nil
}

// Allocate returns a new set. Once MaxSets sets are handed out it fails with
// ErrDescriptorPoolExhausted without calling the driver.
func (p *VulkanDescriptorPool) Allocate(context *VulkanContext, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	if p.Allocated >= p.MaxSets {
		return nil, fmt.Errorf("descriptor pool holds %d sets: %w", p.MaxSets, core.ErrDescriptorPoolExhausted)
	}
	var set vk.DescriptorSet
	err := context.Locks.SafeCall(ResourceManagement, func() error {
		var err error
		set, err = context.Driver.AllocateDescriptorSet(p.Handle, layout)
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrDescriptorPoolExhausted) {
			core.LogWarn("descriptor pool ran out of memory after %d sets", p.Allocated)
		}
		return nil, err
	}
	p.Allocated++
	return set, nil
}

// Remaining is the number of sets that can still be allocated.
func (p *VulkanDescriptorPool) Remaining() uint32 {
	if p.Allocated >= p.MaxSets {
		return 0
	}
	return p.MaxSets - p.Allocated
}

// Destroy frees the pool and implicitly every set allocated from it.
func (p *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != nil {
		context.Driver.DestroyDescriptorPool(p.Handle)
		p.Handle = nil
	}
	p.Allocated = 0
}

// WriteUniformBuffer points binding of set at a uniform buffer range.
func WriteUniformBuffer(set vk.DescriptorSet, binding uint32, dynamic bool, buffer *VulkanBuffer, rangeSize uint64) vk.WriteDescriptorSet {
	descriptorType := vk.DescriptorTypeUniformBuffer
	if dynamic {
		descriptorType = vk.DescriptorTypeUniformBufferDynamic
	}
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(rangeSize),
		}},
	}
}

// WriteCombinedImageSampler points binding of set at a sampled image.
func WriteCombinedImageSampler(set vk.DescriptorSet, binding uint32, view vk.ImageView, sampler vk.Sampler) vk.WriteDescriptorSet {
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     sampler,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}
}
