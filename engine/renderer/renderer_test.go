package renderer

import (
	"fmt"
	"image"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan/vulkantest"
	"github.com/spaghettifunk/vulkanmonkey/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	width, height int
}

func (w *fakeWindow) GetFramebufferSize() (int, int) {
	return w.width, w.height
}

type images map[string]*image.RGBA

func (i images) LoadImage(name string) (*image.RGBA, error) {
	img, ok := i[name]
	if !ok {
		return nil, fmt.Errorf("image %q not found", name)
	}
	return img, nil
}

var testImages = images{
	"crate":  image.NewRGBA(image.Rect(0, 0, 2, 2)),
	"player": image.NewRGBA(image.Rect(0, 0, 4, 4)),
}

var testConfig = Config{
	ApplicationName: "renderer-test",
	ClearColor:      [4]float32{0, 0, 0, 1},
	ShapeLineWidth:  2,
	Resources: resources.Config{
		MaxSprites:    16,
		MaxUserShapes: 4,
		MaxTextures:   4,
		Gravity:       mgl32.Vec2{0, -10},
	},
}

type fixture struct {
	driver   *vulkantest.Driver
	window   *fakeWindow
	renderer *Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		driver: vulkantest.NewDriver(vulkantest.DefaultOptions()),
		window: &fakeWindow{width: 800, height: 600},
	}
	shaders := vulkantest.NewShaders(
		vulkan.SpriteVertexShader, vulkan.SpriteFragmentShader,
		vulkan.LinesVertexShader, vulkan.LinesFragmentShader,
	)
	var err error
	f.renderer, err = NewWithContext(vulkantest.NewContext(f.driver), f.window, testConfig, shaders, testImages)
	require.NoError(t, err)
	return f
}

func (f *fixture) resize(width, height int) {
	f.window.width, f.window.height = width, height
	f.driver.SetSurfaceExtent(uint32(width), uint32(height))
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	f.renderer.Shutdown()
	assert.Empty(t, f.driver.LiveTotal())
	assert.Empty(t, f.driver.Violations())
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestRendererCreate(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 3, f.renderer.ImageCount())
	assert.Equal(t, 3, f.driver.Live(vulkantest.KindFramebuffer))
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipeline))
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, f.renderer.SwapchainExtent())
	assert.Empty(t, f.renderer.GpuName(), "no device behind an injected context")
	assert.False(t, f.renderer.MainCamera().IsDirty)

	f.close(t)
}

func TestRendererCreateMinimized(t *testing.T) {
	driver := vulkantest.NewDriver(vulkantest.DefaultOptions())
	_, err := NewWithContext(vulkantest.NewContext(driver), &fakeWindow{}, testConfig, vulkantest.NewShaders(), testImages)
	assert.Error(t, err)
	assert.Empty(t, driver.LiveTotal())
}

func TestRendererCreateMissingShaderCleansUp(t *testing.T) {
	driver := vulkantest.NewDriver(vulkantest.DefaultOptions())
	_, err := NewWithContext(vulkantest.NewContext(driver), &fakeWindow{800, 600}, testConfig, vulkantest.NewShaders(), testImages)
	assert.Error(t, err)
	assert.Empty(t, driver.LiveTotal())
	assert.Empty(t, driver.Violations())
}

func TestRendererSummitDynamic(t *testing.T) {
	f := newFixture(t)
	r := f.renderer

	r.SetSprites([]*metadata.Sprite{
		metadata.NewSprite("a", "crate", mgl32.Vec3{0, 0, 0}, mgl32.Vec2{1, 1}),
		metadata.NewSprite("b", "player", mgl32.Vec3{2, 0, 0}, mgl32.Vec2{1, 2}),
	})
	require.NoError(t, r.PushSpritesToBuffers())
	_, err := r.Resources().CreateUserDefinedBuffers(metadata.NewBoxRect("box", 0, 0, 1, 1, mgl32.Vec4{1, 0, 0, 1}), false)
	require.NoError(t, err)

	require.NoError(t, r.Summit(true))

	want := []string{
		"BeginRenderPass", "SetViewport", "SetScissor",
		"BindPipeline", "BindDescriptorSets", "BindDescriptorSets", "BindVertexBuffer", "BindIndexBuffer",
		"BindDescriptorSets", "DrawIndexed",
		"BindDescriptorSets", "DrawIndexed",
		"BindPipeline", "SetLineWidth", "BindDescriptorSets",
		"PushConstants", "BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"EndRenderPass",
	}
	commands := f.driver.Commands(r.frames.Dynamic.Handle)
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.Name
	}
	require.Equal(t, want, names)

	assert.Equal(t, []uint32{0}, commands[8].DynamicOffsets)
	assert.Equal(t, uint32(1), commands[8].FirstSet)
	assert.Equal(t, []uint32{uint32(r.Resources().SpriteUniformStride())}, commands[10].DynamicOffsets)
	assert.Equal(t, uint32(6), commands[11].IndexCount)
	assert.Equal(t, uint32(6), commands[11].FirstIndex)
	assert.Equal(t, float32(2), commands[13].LineWidth)
	assert.Len(t, commands[15].Data, 80)
	assert.Equal(t, float32(800), commands[1].Viewport.Width)

	calls := f.driver.Calls()
	assert.Equal(t, 1, countCalls(calls, vulkantest.CallPresent))

	f.close(t)
}

func TestRendererSummitEmptyScene(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.renderer.Summit(true))
	assert.Equal(t,
		[]string{"BeginRenderPass", "SetViewport", "SetScissor", "EndRenderPass"},
		f.driver.CommandNames(f.renderer.frames.Dynamic.Handle))

	f.close(t)
}

func TestRendererPrerecordedFollowsGeneration(t *testing.T) {
	f := newFixture(t)
	r := f.renderer

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Summit(false))
	}
	generation := r.Resources().Generation()
	for _, frame := range r.swapchain.Frames {
		assert.True(t, frame.Recorded)
		assert.Equal(t, generation, frame.RecordedGeneration)
	}

	r.SetSprites([]*metadata.Sprite{metadata.NewSprite("a", "", mgl32.Vec3{}, mgl32.Vec2{1, 1})})
	require.NoError(t, r.PushSpritesToBuffers())
	require.Greater(t, r.Resources().Generation(), generation)

	require.NoError(t, r.Summit(false))
	recorded := r.swapchain.Frames[0]
	assert.Equal(t, r.Resources().Generation(), recorded.RecordedGeneration)
	assert.Contains(t, f.driver.CommandNames(recorded.CommandBuffer.Handle), "DrawIndexed")
	assert.Equal(t, generation, r.swapchain.Frames[1].RecordedGeneration, "not acquired yet")

	f.close(t)
}

func TestRendererReInitSwapchain(t *testing.T) {
	f := newFixture(t)
	r := f.renderer
	require.NoError(t, r.Summit(true))

	oldFramebuffers := make([]unsafe.Pointer, 0, 3)
	for _, frame := range r.swapchain.Frames {
		oldFramebuffers = append(oldFramebuffers, unsafe.Pointer(frame.Framebuffer.Handle))
	}

	f.resize(1280, 720)
	f.driver.SetImageCount(2)
	require.NoError(t, r.ReInitSwapchain())

	assert.Equal(t, 2, r.ImageCount())
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindFramebuffer))
	for _, fb := range oldFramebuffers {
		assert.False(t, f.driver.IsLive(fb))
	}
	for _, frame := range r.swapchain.Frames {
		assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, f.driver.FramebufferExtent(frame.Framebuffer.Handle))
		assert.NotNil(t, frame.CommandBuffer)
	}
	extent, err := r.Resources().SwapchainExtent()
	require.NoError(t, err)
	assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, extent)
	width, height := r.MainCamera().Viewport()
	assert.Equal(t, float32(1280), width)
	assert.Equal(t, float32(720), height)

	require.NoError(t, r.Summit(true))
	f.close(t)
}

func TestRendererMinimizedSkipsFrames(t *testing.T) {
	f := newFixture(t)
	r := f.renderer

	f.window.width, f.window.height = 0, 0
	require.NoError(t, r.ReInitSwapchain())
	assert.True(t, r.Suspended())

	f.driver.ResetCalls()
	require.NoError(t, r.Summit(true))
	require.NoError(t, r.Summit(true))
	assert.Zero(t, countCalls(f.driver.Calls(), vulkantest.CallAcquire))
	assert.Empty(t, f.driver.Violations())

	f.resize(640, 480)
	require.NoError(t, r.Summit(true))
	assert.False(t, r.Suspended())
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, r.SwapchainExtent())
	assert.Equal(t, 1, countCalls(f.driver.Calls(), vulkantest.CallPresent))

	f.close(t)
}

func TestRendererOutOfDateRecreatesSwapchain(t *testing.T) {
	tests := []struct {
		name    string
		acquire []vk.Result
		present []vk.Result
	}{
		{name: "acquire out of date", acquire: []vk.Result{vk.ErrorOutOfDate}},
		{name: "present out of date", present: []vk.Result{vk.ErrorOutOfDate}},
		{name: "present suboptimal", present: []vk.Result{vk.Suboptimal}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := f.renderer
			before := f.driver.Created(vulkantest.KindSwapchain)

			f.resize(1024, 768)
			f.driver.AcquireResults = tt.acquire
			f.driver.PresentResults = tt.present
			require.NoError(t, r.Summit(true))

			assert.Equal(t, before+1, f.driver.Created(vulkantest.KindSwapchain))
			assert.Equal(t, 1, f.driver.Live(vulkantest.KindSwapchain))
			assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, r.SwapchainExtent())

			require.NoError(t, r.Summit(true))
			f.close(t)
		})
	}
}

func TestRendererFormatChangeRebuildsPipelines(t *testing.T) {
	f := newFixture(t)
	r := f.renderer
	oldMain := r.pipelines.Main.Handle
	oldRenderpass := r.targets.Renderpass.Handle

	f.driver.SetFormats([]vk.SurfaceFormat{{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}})
	require.NoError(t, r.ReInitSwapchain())

	assert.Equal(t, vk.FormatR8g8b8a8Unorm, r.targets.Renderpass.ColorFormat)
	assert.False(t, f.driver.IsLive(unsafe.Pointer(oldRenderpass)))
	assert.False(t, f.driver.IsLive(unsafe.Pointer(oldMain)))
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipeline))
	assert.Equal(t, 1, f.driver.Live(vulkantest.KindRenderPass))

	require.NoError(t, r.Summit(true))
	f.close(t)
}

func TestRendererInvalidatePipelines(t *testing.T) {
	f := newFixture(t)
	r := f.renderer
	oldMain := r.pipelines.Main.Handle

	r.InvalidatePipelines()
	require.NoError(t, r.Summit(true))
	assert.True(t, oldMain != r.pipelines.Main.Handle)
	assert.False(t, r.pipelines.NeedsRebuild())

	// a failed rebuild keeps drawing with the previous pipelines
	current := r.pipelines.Main.Handle
	f.driver.FailNext("CreateGraphicsPipeline", fmt.Errorf("bad shader"))
	r.InvalidatePipelines()
	require.NoError(t, r.Summit(true))
	assert.True(t, current == r.pipelines.Main.Handle)

	f.close(t)
}

func TestRendererUniformUpdates(t *testing.T) {
	f := newFixture(t)
	r := f.renderer

	require.Error(t, r.SetPointLights(make([]metadata.PointLight, metadata.MaxPointLights+1)))
	require.NoError(t, r.SetPointLights([]metadata.PointLight{
		metadata.NewPointLight(mgl32.Vec3{1, 2, 0}, mgl32.Vec3{1, 0, 0}, 5),
	}))
	r.SetAmbientColor(mgl32.Vec4{0.2, 0.2, 0.2, 1})
	r.MainCamera().Move(mgl32.Vec2{3, 0})

	require.NoError(t, r.Summit(true))
	assert.False(t, r.MainCamera().IsDirty)
	assert.False(t, r.lightsDirty)

	f.close(t)
}
