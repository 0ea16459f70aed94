package vulkan_test

import (
	"errors"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameFixture struct {
	driver    *vulkantest.Driver
	context   *vulkan.VulkanContext
	swapchain *vulkan.VulkanSwapchain
	targets   *vulkan.RenderTargetSet
	frames    *vulkan.FrameSubmitter
	recorded  int
}

func newFrameFixture(t *testing.T) *frameFixture {
	t.Helper()
	f := &frameFixture{driver: vulkantest.NewDriver(vulkantest.DefaultOptions())}
	f.context = vulkantest.NewContext(f.driver)

	var err error
	f.swapchain, err = vulkan.SwapchainCreate(f.context, 800, 600, false)
	require.NoError(t, err)
	f.targets, err = vulkan.RenderTargetSetCreate(f.context, f.swapchain, [4]float32{0, 0, 0, 1})
	require.NoError(t, err)
	f.frames, err = vulkan.FrameSubmitterCreate(f.context)
	require.NoError(t, err)
	require.NoError(t, f.frames.AllocateFrameCommandBuffers(f.context, f.swapchain))
	return f
}

func (f *frameFixture) record(cb *vulkan.VulkanCommandBuffer, frame *vulkan.SwapchainFrame) error {
	f.recorded++
	f.targets.Renderpass.RenderpassBegin(f.context, cb, frame.Framebuffer)
	f.targets.Renderpass.RenderpassEnd(f.context, cb)
	return nil
}

func (f *frameFixture) destroy(t *testing.T) {
	t.Helper()
	require.NoError(t, f.context.WaitIdle())
	f.frames.FreeFrameCommandBuffers(f.context, f.swapchain)
	f.frames.Destroy(f.context)
	f.targets.Destroy(f.context, f.swapchain)
	f.swapchain.Destroy(f.context)
	assert.Empty(t, f.driver.Kinds())
	assert.Empty(t, f.driver.Violations())
}

func TestFrameSubmitOrder(t *testing.T) {
	f := newFrameFixture(t)

	for i := 0; i < 5; i++ {
		status, err := f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
		require.NoError(t, err)
		require.Equal(t, vulkan.FrameSuccess, status)
	}
	assert.Equal(t, 5, f.recorded)

	calls := f.driver.Calls()
	// the fence starts signaled, the first frame skips the wait
	want := []string{vulkantest.CallAcquire, vulkantest.CallResetFence, vulkantest.CallSubmit, vulkantest.CallPresent}
	assert.Equal(t, want, calls[:4])
	for i := 1; i < 5; i++ {
		frame := calls[4+(i-1)*5 : 4+i*5]
		assert.Equal(t, append([]string{vulkantest.CallWaitFence}, want...), frame)
	}
	assert.Empty(t, f.driver.Violations())

	f.destroy(t)
}

func TestFrameSubmitPrerecorded(t *testing.T) {
	f := newFrameFixture(t)
	images := f.swapchain.ImageCount()

	// every image gets recorded once, then reused
	for i := 0; i < images*3; i++ {
		_, err := f.frames.Submit(f.context, f.swapchain, false, 1, f.record)
		require.NoError(t, err)
	}
	assert.Equal(t, images, f.recorded)

	// a new scene generation re-records each buffer once more
	for i := 0; i < images*2; i++ {
		_, err := f.frames.Submit(f.context, f.swapchain, false, 2, f.record)
		require.NoError(t, err)
	}
	assert.Equal(t, images*2, f.recorded)

	vulkan.InvalidateRecorded(f.swapchain)
	_, err := f.frames.Submit(f.context, f.swapchain, false, 2, f.record)
	require.NoError(t, err)
	assert.Equal(t, images*2+1, f.recorded)

	cb := f.swapchain.Frames[0].CommandBuffer
	assert.Equal(t, []string{"BeginRenderPass", "EndRenderPass"}, f.driver.CommandNames(cb.Handle))

	f.destroy(t)
}

func TestFrameSubmitResizeNeeded(t *testing.T) {
	tests := []struct {
		name    string
		acquire []vk.Result
		present []vk.Result
		submits int
	}{
		{name: "out of date at acquire", acquire: []vk.Result{vk.ErrorOutOfDate}, submits: 0},
		{name: "suboptimal at acquire", acquire: []vk.Result{vk.Suboptimal}, submits: 1},
		{name: "out of date at present", present: []vk.Result{vk.ErrorOutOfDate}, submits: 1},
		{name: "suboptimal at present", present: []vk.Result{vk.Suboptimal}, submits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFrameFixture(t)
			f.driver.AcquireResults = tt.acquire
			f.driver.PresentResults = tt.present

			status, err := f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
			require.NoError(t, err)
			assert.Equal(t, vulkan.FrameResizeNeeded, status)
			assert.Equal(t, tt.submits, f.recorded)

			// the next frame is fine again
			status, err = f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
			require.NoError(t, err)
			assert.Equal(t, vulkan.FrameSuccess, status)

			f.destroy(t)
		})
	}
}

func TestFrameSubmitFenceTimeout(t *testing.T) {
	f := newFrameFixture(t)

	_, err := f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
	require.NoError(t, err)

	f.driver.FenceResults = []vk.Result{vk.Timeout}
	_, err = f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
	assert.ErrorIs(t, err, core.ErrFenceTimeout)

	f.driver.FenceResults = []vk.Result{vk.ErrorDeviceLost}
	_, err = f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, 1, f.recorded, "nothing is recorded before the fence is free")

	f.destroy(t)
}

func TestFrameSubmitAcquireTimeout(t *testing.T) {
	f := newFrameFixture(t)
	f.driver.AcquireResults = []vk.Result{vk.Timeout}

	_, err := f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
	assert.ErrorIs(t, err, core.ErrAcquireTimeout)

	f.destroy(t)
}

func TestFrameSubmitRecordError(t *testing.T) {
	f := newFrameFixture(t)
	boom := errors.New("boom")
	acquireSemaphore := f.frames.ImageAvailable

	_, err := f.frames.Submit(f.context, f.swapchain, true, 0, func(*vulkan.VulkanCommandBuffer, *vulkan.SwapchainFrame) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, f.driver.Calls(), vulkantest.CallSubmit)
	assert.False(t, f.driver.IsLive(unsafe.Pointer(acquireSemaphore)), "the signaled semaphore is replaced")

	// the next frame acquires with an unsignaled semaphore
	status, err := f.frames.Submit(f.context, f.swapchain, true, 0, f.record)
	require.NoError(t, err)
	assert.Equal(t, vulkan.FrameSuccess, status)
	assert.Empty(t, f.driver.Violations())

	f.destroy(t)
}

func TestRenderTargetSetRebuild(t *testing.T) {
	f := newFrameFixture(t)

	assert.Equal(t, f.swapchain.ImageCount(), f.driver.Live(vulkantest.KindFramebuffer))
	assert.True(t, f.targets.IsCompatible(vk.FormatB8g8r8a8Unorm))
	assert.False(t, f.targets.IsCompatible(vk.FormatR8g8b8a8Unorm))

	old := make([]vk.Framebuffer, 0, f.swapchain.ImageCount())
	for _, frame := range f.swapchain.Frames {
		old = append(old, frame.Framebuffer.Handle)
	}

	// resize to a two image swapchain
	require.NoError(t, f.context.WaitIdle())
	f.frames.FreeFrameCommandBuffers(f.context, f.swapchain)
	f.targets.Release(f.context, f.swapchain)
	f.swapchain.Destroy(f.context)

	f.driver.SetSurfaceExtent(1280, 720)
	f.driver.SetImageCount(2)
	var err error
	f.swapchain, err = vulkan.SwapchainCreate(f.context, 1280, 720, false)
	require.NoError(t, err)
	require.NoError(t, f.targets.Build(f.context, f.swapchain))
	require.NoError(t, f.frames.AllocateFrameCommandBuffers(f.context, f.swapchain))

	assert.Equal(t, 2, f.driver.Live(vulkantest.KindFramebuffer))
	for _, fb := range old {
		assert.False(t, f.driver.IsLive(unsafe.Pointer(fb)))
	}
	for _, frame := range f.swapchain.Frames {
		assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, f.driver.FramebufferExtent(frame.Framebuffer.Handle))
	}
	assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, f.targets.Extent)

	status, err := f.frames.Submit(f.context, f.swapchain, false, 0, f.record)
	require.NoError(t, err)
	assert.Equal(t, vulkan.FrameSuccess, status)

	f.destroy(t)
}
