//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const shadersDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL stage under assets/shaders into SPIR-V next to it.
// Stages whose .spv is newer than the source are skipped.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the testbed binary.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vulkanmonkey", "."), withStream())
	return err
}

func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shadersDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shadersDir)
	}

	for _, src := range sources {
		out := src + ".spv"
		stale, err := target.Path(out, src)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Removes the compiled shaders and the binary.
func Clean() error {
	matches, err := filepath.Glob(filepath.Join(shadersDir, "*.spv"))
	if err != nil {
		return err
	}
	for _, m := range append(matches, "bin/vulkanmonkey") {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
