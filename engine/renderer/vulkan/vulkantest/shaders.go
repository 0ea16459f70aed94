package vulkantest

import (
	"fmt"

	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

// Shaders is an in-memory shader source keyed by file name.
type Shaders map[string][]uint32

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// NewShaders returns a source holding a minimal module for every name.
func NewShaders(names ...string) Shaders {
	s := make(Shaders, len(names))
	for _, name := range names {
		s[name] = []uint32{spirvMagic, 0x00010000, 0, 1, 0}
	}
	return s
}

func (s Shaders) LoadShader(name string) ([]uint32, error) {
	code, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, core.ErrShaderNotFound)
	}
	return code, nil
}
