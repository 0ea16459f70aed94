package vulkan_test

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(flags vk.QueueFlagBits, count uint32) vk.QueueFamilyProperties {
	return vk.QueueFamilyProperties{QueueFlags: vk.QueueFlags(flags), QueueCount: count}
}

func TestFindQueueFamilies(t *testing.T) {
	tests := []struct {
		name     string
		families []vk.QueueFamilyProperties
		present  []bool
		complete bool
		graphics uint32
		presentQ uint32
	}{
		{
			name:     "combined family preferred",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1), family(vk.QueueComputeBit, 1), family(vk.QueueGraphicsBit, 1)},
			present:  []bool{false, true, true},
			complete: true,
			graphics: 2,
			presentQ: 2,
		},
		{
			name:     "separate families",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1), family(vk.QueueTransferBit, 1)},
			present:  []bool{false, true},
			complete: true,
			graphics: 0,
			presentQ: 1,
		},
		{
			name:     "no present support",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1)},
			present:  []bool{false},
		},
		{
			name:     "graphics family without queues",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 0)},
			present:  []bool{true},
		},
		{
			name: "no families",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices := vulkan.FindQueueFamilies(tt.families, tt.present)
			assert.Equal(t, tt.complete, indices.IsComplete())
			if tt.complete {
				assert.Equal(t, tt.graphics, indices.Graphics)
				assert.Equal(t, tt.presentQ, indices.Present)
			}
		})
	}
}

func TestQueueFamilyIndicesUnique(t *testing.T) {
	indices := vulkan.FindQueueFamilies(
		[]vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1), family(vk.QueueTransferBit, 1)},
		[]bool{false, true})
	assert.Equal(t, []uint32{0, 1}, indices.Unique())

	indices = vulkan.FindQueueFamilies([]vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1)}, []bool{true})
	assert.Equal(t, []uint32{0}, indices.Unique())
}

func TestMissingExtensions(t *testing.T) {
	available := []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"}

	assert.Empty(t, vulkan.MissingExtensions(available, []string{"VK_KHR_swapchain"}))
	assert.Equal(t, []string{"VK_KHR_portability_subset"},
		vulkan.MissingExtensions(available, []string{"VK_KHR_swapchain", "VK_KHR_portability_subset"}))
	assert.Equal(t, []string{"VK_KHR_swapchain"}, vulkan.MissingExtensions(nil, []string{"VK_KHR_swapchain"}))
}

func TestEvaluateDevice(t *testing.T) {
	good := func() vulkan.DeviceCandidate {
		return vulkan.DeviceCandidate{
			Name:           "test gpu",
			QueueFamilies:  []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit, 1)},
			PresentSupport: []bool{true},
			Extensions:     []string{"VK_KHR_swapchain"},
			Support: &vulkan.SwapchainSupportInfo{
				Formats:      []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Unorm}},
				PresentModes: []vk.PresentMode{vk.PresentModeFifo},
			},
			FillModeNonSolid: true,
		}
	}
	required := []string{"VK_KHR_swapchain"}

	tests := []struct {
		name   string
		mutate func(c *vulkan.DeviceCandidate)
		err    error
	}{
		{name: "suitable", mutate: func(c *vulkan.DeviceCandidate) {}},
		{name: "no present queue", mutate: func(c *vulkan.DeviceCandidate) { c.PresentSupport = []bool{false} }, err: core.ErrNoSuitableDevice},
		{name: "missing swapchain extension", mutate: func(c *vulkan.DeviceCandidate) { c.Extensions = nil }, err: core.ErrMissingExtension},
		{name: "no surface formats", mutate: func(c *vulkan.DeviceCandidate) { c.Support.Formats = nil }, err: core.ErrNoSuitableDevice},
		{name: "no present modes", mutate: func(c *vulkan.DeviceCandidate) { c.Support.PresentModes = nil }, err: core.ErrNoSuitableDevice},
		{name: "no line rasterization", mutate: func(c *vulkan.DeviceCandidate) { c.FillModeNonSolid = false }, err: core.ErrNoSuitableDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := good()
			tt.mutate(&candidate)
			indices, err := vulkan.EvaluateDevice(candidate, required)
			if tt.err == nil {
				require.NoError(t, err)
				assert.True(t, indices.IsComplete())
				return
			}
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestDetectDepthFormat(t *testing.T) {
	depth := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)

	tests := []struct {
		name      string
		supported map[vk.Format]vk.FormatProperties
		want      vk.Format
		ok        bool
	}{
		{
			name:      "first candidate",
			supported: map[vk.Format]vk.FormatProperties{vk.FormatD32Sfloat: {OptimalTilingFeatures: depth}},
			want:      vk.FormatD32Sfloat,
			ok:        true,
		},
		{
			name:      "falls back to packed stencil",
			supported: map[vk.Format]vk.FormatProperties{vk.FormatD24UnormS8Uint: {LinearTilingFeatures: depth}},
			want:      vk.FormatD24UnormS8Uint,
			ok:        true,
		},
		{
			name: "nothing usable",
			want: vk.FormatUndefined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := vulkan.DetectDepthFormat(func(f vk.Format) vk.FormatProperties { return tt.supported[f] })
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultError(t *testing.T) {
	assert.NoError(t, vulkan.ResultError("vkQueueSubmit", vk.Success))

	tests := []struct {
		result   vk.Result
		sentinel error
	}{
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
		{vk.ErrorOutOfDate, core.ErrSwapchainOutOfDate},
		{vk.ErrorOutOfPoolMemory, core.ErrDescriptorPoolExhausted},
		{vk.ErrorFragmentedPool, core.ErrDescriptorPoolExhausted},
		{vk.ErrorExtensionNotPresent, core.ErrMissingExtension},
	}
	for _, tt := range tests {
		err := vulkan.ResultError("vkSomething", tt.result)
		require.Error(t, err)
		assert.ErrorIs(t, err, tt.sentinel)
		assert.Contains(t, err.Error(), "vkSomething")
		assert.Contains(t, err.Error(), vulkan.VulkanResultString(tt.result))
	}

	err := vulkan.ResultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	assert.EqualError(t, err, "vkCreateBuffer failed with VK_ERROR_OUT_OF_DEVICE_MEMORY")
}

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_SUBOPTIMAL_KHR", vulkan.VulkanResultString(vk.Suboptimal))
	assert.Equal(t, "VkResult(-12345)", vulkan.VulkanResultString(vk.Result(-12345)))
	assert.True(t, vulkan.VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, vulkan.VulkanResultIsSuccess(vk.ErrorOutOfDate))
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "GeForce\x00junk")
	assert.Equal(t, "GeForce", vulkan.CString(name[:]))
	assert.Equal(t, "full", vulkan.CString([]byte("full")))
	assert.Equal(t, "x\x00", vulkan.VulkanSafeString("x"))
	assert.Equal(t, "x\x00", vulkan.VulkanSafeString("x\x00"))
}
