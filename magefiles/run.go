//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed. CONFIG points to an optional
// TOML config file.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	args := []string{"run", "."}
	if config := os.Getenv("CONFIG"); config != "" {
		args = append(args, "-config", config)
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests. They use the in-memory driver and need no GPU.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
