package assets

import "github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"

// Loader turns a file of one ResourceType into a Resource whose Data holds
// the decoded form ([]uint32 SPIR-V words, *image.RGBA pixels).
type Loader interface {
	Load(path string) (*metadata.Resource, error)
}
