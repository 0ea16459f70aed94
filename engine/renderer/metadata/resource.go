package metadata

import (
	"path/filepath"
	"strings"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Files the asset index ignores. */
	ResourceTypeNone ResourceType = iota
	/** @brief Compiled SPIR-V shader module (.spv). */
	ResourceTypeShader
	/** @brief Decodable image used as a sprite texture. */
	ResourceTypeImage
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeImage:
		return "image"
	}
	return "none"
}

// ResourceTypeOf maps a file name to its resource type by extension.
func ResourceTypeOf(path string) ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return ResourceTypeImage
	default:
		return ResourceTypeNone
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	Type     ResourceType
	/** @brief The size of the resource on disk in bytes. */
	DataSize uint64
	/** @brief The resource data: []uint32 for shaders, *image.RGBA for images. */
	Data interface{}
}
