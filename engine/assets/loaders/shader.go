package loaders

import (
	"os"

	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

// ShaderLoader reads compiled SPIR-V.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := vulkan.BytesToSPIRV(data)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		FullPath: path,
		Type:     metadata.ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     code,
	}, nil
}
