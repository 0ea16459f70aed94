package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// SamplerCreate creates the nearest-filtered, edge-clamped sampler shared by
// every sprite texture.
func SamplerCreate(context *VulkanContext) (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		MipLodBias:              0.0,
		MinLod:                  0.0,
		MaxLod:                  0.0,
	}
	sampler, err := context.Driver.CreateSampler(&createInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create texture sampler: %w", err)
	}
	return sampler, nil
}
