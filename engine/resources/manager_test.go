package resources

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testImages map[string]*image.RGBA

func (t testImages) LoadImage(name string) (*image.RGBA, error) {
	img, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("image %q not found", name)
	}
	return img, nil
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var defaultConfig = Config{MaxSprites: 8, MaxUserShapes: 4, MaxTextures: 2, Gravity: mgl32.Vec2{0, -10}}

type fixture struct {
	driver  *vulkantest.Driver
	context *vulkan.VulkanContext
	frames  *vulkan.FrameSubmitter
	manager *Manager
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	f := &fixture{driver: vulkantest.NewDriver(vulkantest.DefaultOptions())}
	f.context = vulkantest.NewContext(f.driver)

	var err error
	f.frames, err = vulkan.FrameSubmitterCreate(f.context)
	require.NoError(t, err)

	f.manager, err = New(config, testImages{
		"crate":  solidImage(2, 2, color.RGBA{R: 200, A: 255}),
		"player": solidImage(4, 2, color.RGBA{G: 200, A: 255}),
		"coin":   solidImage(1, 1, color.RGBA{B: 200, A: 255}),
	})
	require.NoError(t, err)
	require.NoError(t, f.manager.Init(f.context, f.frames.CommandPool, f.context.GraphicsQueue, vk.Extent2D{Width: 800, Height: 600}))
	return f
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.DeInit())
	f.frames.Destroy(f.context)
	assert.Empty(t, f.driver.LiveTotal())
	assert.Empty(t, f.driver.Violations())
}

func box(name string, x float32) metadata.Rect {
	return metadata.NewBoxRect(name, x, 0, 1, 1, mgl32.Vec4{1, 0, 0, 1})
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	for _, config := range []Config{
		{MaxSprites: 0, MaxUserShapes: 1, MaxTextures: 1},
		{MaxSprites: 1, MaxUserShapes: 0, MaxTextures: 1},
		{MaxSprites: 1, MaxUserShapes: 1, MaxTextures: 0},
	} {
		_, err := New(config, nil)
		assert.Error(t, err)
	}
}

func TestNotInitialized(t *testing.T) {
	m, err := New(defaultConfig, nil)
	require.NoError(t, err)

	_, err = m.CreateUserDefinedBuffers(box("a", 0), false)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.ErrorIs(t, m.FreeUserDefinedBuffers(0), core.ErrNotInitialized)
	_, err = m.ShapedBuffer(0)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = m.PushSprites(nil)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = m.Texture(metadata.DefaultTextureName)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.ErrorIs(t, m.UpdateCamera(mgl32.Ident4(), mgl32.Ident4()), core.ErrNotInitialized)
	assert.ErrorIs(t, m.UpdatePointLights(nil, mgl32.Vec4{}), core.ErrNotInitialized)
	_, err = m.Layouts()
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = m.World()
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.NoError(t, m.DeInit(), "releasing twice is harmless")
}

func TestInitTwice(t *testing.T) {
	f := newFixture(t, defaultConfig)
	err := f.manager.Init(f.context, f.frames.CommandPool, f.context.GraphicsQueue, vk.Extent2D{Width: 1, Height: 1})
	assert.ErrorIs(t, err, core.ErrAlreadyInitialized)
	f.close(t)
}

func TestInitCreatesSharedObjects(t *testing.T) {
	f := newFixture(t, defaultConfig)

	layouts, err := f.manager.Layouts()
	require.NoError(t, err)
	assert.NotNil(t, layouts.Camera)
	assert.NotNil(t, layouts.Sprite)
	assert.NotNil(t, layouts.Lights)
	assert.Equal(t, 3, f.driver.Live(vulkantest.KindDescriptorSetLayout))
	assert.Equal(t, 1, f.driver.Live(vulkantest.KindSampler))
	assert.Equal(t, 1, f.manager.TextureCount(), "only the default texture")

	def, err := f.manager.Texture(metadata.DefaultTextureName)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), def.Width)

	world, err := f.manager.World()
	require.NoError(t, err)
	assert.Equal(t, 1, world.BodyCount(), "the ground body")

	// layout setup is idempotent
	require.NoError(t, f.manager.setUpCameraDescriptorSetLayout())
	require.NoError(t, f.manager.setUpSpriteDescriptorSetLayout())
	require.NoError(t, f.manager.setUpPointLightsDescriptorSetLayout())
	assert.Equal(t, 3, f.driver.Live(vulkantest.KindDescriptorSetLayout))

	f.close(t)
}

func TestUserShapeSlotReuse(t *testing.T) {
	f := newFixture(t, defaultConfig)
	m := f.manager

	for i := 0; i < 3; i++ {
		slot, err := m.CreateUserDefinedBuffers(box(fmt.Sprint(i), float32(i*2)), false)
		require.NoError(t, err)
		assert.Equal(t, i, slot)
	}
	freed, err := m.ShapedBuffer(1)
	require.NoError(t, err)
	oldVertexBuffer := freed.VertexBuffer
	oldID := freed.ID

	require.NoError(t, m.FreeUserDefinedBuffers(1))
	assert.Equal(t, []int{0, 2}, m.OccupiedShapes())
	_, err = m.ShapedBuffer(1)
	assert.ErrorIs(t, err, core.ErrInvalidSlot)

	slot, err := m.CreateUserDefinedBuffers(box("again", 10), false)
	require.NoError(t, err)
	assert.Equal(t, 1, slot, "the lowest free slot is reused")
	assert.Equal(t, []int{0, 1, 2}, m.OccupiedShapes())

	reused, err := m.ShapedBuffer(1)
	require.NoError(t, err)
	assert.Same(t, oldVertexBuffer, reused.VertexBuffer, "same sized shapes keep their buffers")
	assert.NotEqual(t, oldID, reused.ID)
	assert.Equal(t, "again", reused.Rect.Name)
	assert.Len(t, reused.Indices, 6)
	assert.Equal(t, metadata.IndicesBytes(reused.Indices), f.driver.BufferBytes(reused.IndexBuffer.Handle))

	f.close(t)
}

func TestUserShapeGrowsBuffers(t *testing.T) {
	f := newFixture(t, defaultConfig)
	m := f.manager

	slot, err := m.CreateUserDefinedBuffers(box("small", 0), false)
	require.NoError(t, err)
	require.NoError(t, m.FreeUserDefinedBuffers(slot))

	hexagon := metadata.Rect{Name: "hexagon", Points: []mgl32.Vec2{{1, 0}, {2, 0}, {3, 1}, {2, 2}, {1, 2}, {0, 1}}}
	slot, err = m.CreateUserDefinedBuffers(hexagon, false)
	require.NoError(t, err)
	shape, err := m.ShapedBuffer(slot)
	require.NoError(t, err)
	assert.Equal(t, uint64(6)*uint64(metadata.VertexStride), shape.VertexBuffer.Size)
	assert.Len(t, shape.Indices, 12)
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindBuffer)-5, "only the hexagon buffers next to the shared ones")

	f.close(t)
}

func TestUserShapeReverseY(t *testing.T) {
	f := newFixture(t, defaultConfig)

	slot, err := f.manager.CreateUserDefinedBuffers(metadata.NewBoxRect("flipped", 0, 1, 2, 3, mgl32.Vec4{}), true)
	require.NoError(t, err)
	shape, err := f.manager.ShapedBuffer(slot)
	require.NoError(t, err)
	for _, v := range shape.Vertices {
		assert.LessOrEqual(t, v.Position.Y(), float32(-1))
	}

	f.close(t)
}

func TestUserShapeErrors(t *testing.T) {
	config := defaultConfig
	config.MaxUserShapes = 2
	f := newFixture(t, config)
	m := f.manager

	for i := 0; i < 2; i++ {
		_, err := m.CreateUserDefinedBuffers(box(fmt.Sprint(i), 0), false)
		require.NoError(t, err)
	}
	_, err := m.CreateUserDefinedBuffers(box("one too many", 0), false)
	assert.ErrorIs(t, err, core.ErrSlotsExhausted)

	line := metadata.Rect{Name: "line", Points: []mgl32.Vec2{{0, 0}, {1, 1}, {2, 2}}}
	_, err = m.CreateUserDefinedBuffers(line, false)
	assert.ErrorIs(t, err, core.ErrInvalidPolygon)

	for _, slot := range []int{-1, 2, 99} {
		assert.ErrorIs(t, m.FreeUserDefinedBuffers(slot), core.ErrInvalidSlot)
	}
	require.NoError(t, m.FreeUserDefinedBuffers(0))
	assert.ErrorIs(t, m.FreeUserDefinedBuffers(0), core.ErrInvalidSlot, "freeing twice")

	f.close(t)
}

func TestPushSprites(t *testing.T) {
	f := newFixture(t, defaultConfig)
	m := f.manager
	stride := m.SpriteUniformStride()
	assert.Equal(t, uint64(256), stride)

	plain := metadata.NewSprite("plain", "", mgl32.Vec3{0, 0, 0}, mgl32.Vec2{1, 1})
	crate := metadata.NewSprite("crate", "crate", mgl32.Vec3{3, 4, 0}, mgl32.Vec2{2, 2})
	before := m.Generation()

	draws, err := m.PushSprites([]*metadata.Sprite{plain, crate})
	require.NoError(t, err)
	require.Len(t, draws, 2)
	assert.Greater(t, m.Generation(), before)

	def, err := m.Texture(metadata.DefaultTextureName)
	require.NoError(t, err)
	tex, err := m.Texture("crate")
	require.NoError(t, err)
	// descriptor sets are opaque handles, reflection must not walk them
	assert.True(t, draws[0].TextureSet == def.DescriptorSet)
	assert.True(t, draws[1].TextureSet == tex.DescriptorSet)
	draws[0].TextureSet, draws[1].TextureSet = nil, nil
	assert.Equal(t, SpriteDraw{DynamicOffset: 0, FirstIndex: 0, IndexCount: 6}, draws[0])
	assert.Equal(t, SpriteDraw{DynamicOffset: uint32(stride), FirstIndex: 6, IndexCount: 6}, draws[1])

	vertex, index, err := m.SpriteBuffers()
	require.NoError(t, err)
	indices := f.driver.BufferBytes(index.Handle)[:12*4]
	assert.Equal(t, metadata.IndicesBytes([]uint32{0, 1, 2, 2, 3, 0, 4, 5, 6, 6, 7, 4}), indices)
	assert.NotNil(t, vertex)

	model := crate.Model()
	uniforms := f.driver.BufferBytes(m.spriteUniformBuffer.Handle)
	assert.Equal(t, metadata.Mat4Bytes(&model), uniforms[stride:stride+metadata.SpriteUniformSize])

	f.close(t)
}

func TestPushSpritesCapacity(t *testing.T) {
	f := newFixture(t, defaultConfig)

	sprites := make([]*metadata.Sprite, defaultConfig.MaxSprites+1)
	for i := range sprites {
		sprites[i] = metadata.NewSprite(fmt.Sprint(i), "", mgl32.Vec3{}, mgl32.Vec2{1, 1})
	}
	_, err := f.manager.PushSprites(sprites)
	assert.ErrorIs(t, err, core.ErrSpriteCapacity)

	_, err = f.manager.PushSprites([]*metadata.Sprite{metadata.NewSprite("ghost", "missing", mgl32.Vec3{}, mgl32.Vec2{1, 1})})
	assert.Error(t, err)

	draws, err := f.manager.PushSprites(nil)
	assert.NoError(t, err)
	assert.Empty(t, draws)

	f.close(t)
}

func TestTextureCapacity(t *testing.T) {
	config := defaultConfig
	config.MaxTextures = 1
	f := newFixture(t, config)

	first, err := f.manager.Texture("crate")
	require.NoError(t, err)
	again, err := f.manager.Texture("crate")
	require.NoError(t, err)
	assert.Same(t, first, again, "textures are loaded once")
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, first.Image.Layout)

	_, err = f.manager.Texture("player")
	assert.ErrorIs(t, err, core.ErrTextureCapacity)
	assert.Equal(t, 2, f.manager.TextureCount())

	f.close(t)
}

func TestTextureDescriptorPoolExhausted(t *testing.T) {
	f := newFixture(t, defaultConfig)
	// use up the pool behind the manager's back
	for f.manager.pool.Remaining() > 0 {
		_, err := f.manager.pool.Allocate(f.context, f.manager.spriteLayout)
		require.NoError(t, err)
	}
	_, err := f.manager.Texture("coin")
	assert.ErrorIs(t, err, core.ErrDescriptorPoolExhausted)
	assert.Equal(t, 1, f.manager.TextureCount())
	assert.Equal(t, 1, f.driver.Live(vulkantest.KindImage), "the failed texture image is released")

	f.close(t)
}

func TestUpdateUniforms(t *testing.T) {
	f := newFixture(t, defaultConfig)
	m := f.manager

	view := mgl32.Translate3D(1, 2, 3)
	projection := mgl32.Ortho(0, 800, 0, 600, -1, 1)
	require.NoError(t, m.UpdateCamera(view, projection))
	camera := metadata.CameraUniform{View: view, Projection: projection}
	assert.Equal(t, camera.Bytes(), f.driver.BufferBytes(m.cameraBuffer.Handle)[:metadata.CameraUniformSize])

	lights := []metadata.PointLight{metadata.NewPointLight(mgl32.Vec3{1, 1, 0}, mgl32.Vec3{1, 0.5, 0}, 5)}
	require.NoError(t, m.UpdatePointLights(lights, mgl32.Vec4{0.1, 0.1, 0.1, 1}))
	block, err := metadata.NewPointLightsUniform(lights, mgl32.Vec4{0.1, 0.1, 0.1, 1})
	require.NoError(t, err)
	assert.Equal(t, block.Bytes(), f.driver.BufferBytes(m.lightsBuffer.Handle)[:metadata.PointLightsUniformSize])

	tooMany := make([]metadata.PointLight, metadata.MaxPointLights+1)
	assert.Error(t, m.UpdatePointLights(tooMany, mgl32.Vec4{}))

	f.close(t)
}

func TestDeInitReleasesEverything(t *testing.T) {
	f := newFixture(t, defaultConfig)
	m := f.manager

	_, err := m.CreateUserDefinedBuffers(box("a", 0), false)
	require.NoError(t, err)
	_, err = m.PushSprites([]*metadata.Sprite{metadata.NewSprite("c", "crate", mgl32.Vec3{}, mgl32.Vec2{1, 1})})
	require.NoError(t, err)

	require.NoError(t, m.DeInit())
	assert.False(t, m.Initialized())
	assert.Empty(t, m.OccupiedShapes())

	// a second round trip starts from scratch
	require.NoError(t, m.Init(f.context, f.frames.CommandPool, f.context.GraphicsQueue, vk.Extent2D{Width: 640, Height: 480}))
	assert.Equal(t, 1, m.TextureCount())
	extent, err := m.SwapchainExtent()
	require.NoError(t, err)
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, extent)

	f.close(t)
}

func TestInitFailureCleansUp(t *testing.T) {
	driver := vulkantest.NewDriver(vulkantest.DefaultOptions())
	context := vulkantest.NewContext(driver)
	frames, err := vulkan.FrameSubmitterCreate(context)
	require.NoError(t, err)

	m, err := New(defaultConfig, nil)
	require.NoError(t, err)
	driver.FailNext("CreateSampler", errors.New("out of samplers"))
	assert.Error(t, m.Init(context, frames.CommandPool, context.GraphicsQueue, vk.Extent2D{Width: 1, Height: 1}))
	assert.False(t, m.Initialized())

	frames.Destroy(context)
	assert.Empty(t, driver.LiveTotal())
}

func TestWorldPersistsAcrossSteps(t *testing.T) {
	f := newFixture(t, defaultConfig)

	world, err := f.manager.World()
	require.NoError(t, err)
	ground := world.GroundBody()
	require.NotNil(t, ground)
	groundAt := ground.GetPosition()
	id, err := world.AddBox(mgl32.Vec2{0, 3}, mgl32.Vec2{0.5, 0.5}, true)
	require.NoError(t, err)

	for i := 0; i < 120; i++ {
		current, err := f.manager.World()
		require.NoError(t, err)
		current.Step(1.0 / 60.0)
		assert.Same(t, world, current)
		assert.Same(t, ground, current.GroundBody())
	}

	assert.Equal(t, 2, world.BodyCount(), "ground and box")
	assert.Equal(t, groundAt, ground.GetPosition(), "the ground is static")
	pos, _, ok := world.Transform(id)
	require.True(t, ok)
	assert.Less(t, pos.Y(), float32(3), "the box fell")

	f.close(t)
}
