package core

import (
	"errors"
)

var (
	// lifecycle
	ErrNotInitialized     = errors.New("resource manager is not initialized")
	ErrAlreadyInitialized = errors.New("resource manager is already initialized")

	// setup
	ErrNoSuitableDevice = errors.New("no physical device meets the requirements")
	ErrMissingExtension = errors.New("required extension is not available")
	ErrShaderNotFound   = errors.New("shader bytecode not found")
	ErrInvalidShader    = errors.New("shader bytecode is not valid SPIR-V")

	// capacity
	ErrSlotsExhausted          = errors.New("all user shape slots are in use")
	ErrInvalidSlot             = errors.New("invalid user shape slot")
	ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")
	ErrTextureCapacity         = errors.New("texture capacity reached")
	ErrSpriteCapacity          = errors.New("sprite capacity reached")
	ErrInvalidPolygon          = errors.New("polygon needs at least three distinct points")

	// frame
	ErrFenceTimeout       = errors.New("timed out waiting for the in-flight fence")
	ErrAcquireTimeout     = errors.New("timed out acquiring a swapchain image")
	ErrDeviceLost         = errors.New("device lost")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrNoSwapchainImage   = errors.New("no swapchain image acquired")
)
