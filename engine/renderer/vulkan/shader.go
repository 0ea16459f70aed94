package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

// ShaderSource hands out SPIR-V bytecode by file name (sprite.vert.spv, ...).
// A missing file must be reported as core.ErrShaderNotFound.
type ShaderSource interface {
	LoadShader(name string) ([]uint32, error)
}

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// ShaderModuleCreate loads name from source and wraps it in a shader stage.
func ShaderModuleCreate(context *VulkanContext, source ShaderSource, name string, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	code, err := source.LoadShader(name)
	if err != nil {
		if errors.Is(err, core.ErrShaderNotFound) {
			core.LogError("shader %s could not be found", name)
		}
		return nil, fmt.Errorf("unable to read shader module %s: %w", name, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("shader %s is empty: %w", name, core.ErrInvalidShader)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}

	handle, err := context.Driver.CreateShaderModule(&createInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module %s: %w", name, err)
	}

	return &VulkanShaderStage{
		Handle: handle,
		ShaderStageCreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: handle,
			PName:  "main\x00",
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		context.Driver.DestroyShaderModule(s.Handle)
		s.Handle = nil
	}
}

// BytesToSPIRV reinterprets raw SPIR-V file content as words. The length has
// to be a multiple of four.
func BytesToSPIRV(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("shader bytecode length %d is not a multiple of 4: %w", len(data), core.ErrInvalidShader)
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		// SPIR-V is little endian on every platform we run on
		words[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return words, nil
}
