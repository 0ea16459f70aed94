package vulkan_test

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan/vulkantest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allShaders = []string{
	vulkan.SpriteVertexShader,
	vulkan.SpriteFragmentShader,
	vulkan.LinesVertexShader,
	vulkan.LinesFragmentShader,
}

type pipelineFixture struct {
	driver     *vulkantest.Driver
	context    *vulkan.VulkanContext
	renderpass *vulkan.VulkanRenderpass
	layouts    vulkan.PipelineLayouts
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{driver: vulkantest.NewDriver(vulkantest.DefaultOptions())}
	f.context = vulkantest.NewContext(f.driver)

	var err error
	f.renderpass, err = vulkan.RenderpassCreate(f.context, vk.FormatB8g8r8a8Unorm, [4]float32{}, 1, 0)
	require.NoError(t, err)
	for _, layout := range []*vk.DescriptorSetLayout{&f.layouts.Camera, &f.layouts.Sprite, &f.layouts.Lights} {
		*layout, err = vulkan.DescriptorSetLayoutCreate(f.context, []vulkan.DescriptorBinding{
			{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
		})
		require.NoError(t, err)
	}
	return f
}

func TestPipelineSetCreate(t *testing.T) {
	f := newPipelineFixture(t)

	ps, err := vulkan.PipelineSetCreate(f.context, vulkantest.NewShaders(allShaders...), f.renderpass, vk.Extent2D{Width: 800, Height: 600}, f.layouts)
	require.NoError(t, err)

	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipeline))
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipelineLayout))
	assert.Zero(t, f.driver.Live(vulkantest.KindShaderModule), "shader modules are released after pipeline creation")
	assert.Equal(t, 4, f.driver.Created(vulkantest.KindShaderModule))

	ps.Destroy(f.context)
	assert.Zero(t, f.driver.Live(vulkantest.KindPipeline))
	assert.Zero(t, f.driver.Live(vulkantest.KindPipelineLayout))
	assert.Empty(t, f.driver.Violations())
}

func TestPipelineSetMissingShader(t *testing.T) {
	f := newPipelineFixture(t)

	shaders := vulkantest.NewShaders(allShaders...)
	delete(shaders, vulkan.LinesFragmentShader)

	_, err := vulkan.PipelineSetCreate(f.context, shaders, f.renderpass, vk.Extent2D{Width: 800, Height: 600}, f.layouts)
	assert.ErrorIs(t, err, core.ErrShaderNotFound)
	// the sprite pipeline built before the failure is gone again
	assert.Zero(t, f.driver.Live(vulkantest.KindPipeline))
	assert.Zero(t, f.driver.Live(vulkantest.KindPipelineLayout))
	assert.Zero(t, f.driver.Live(vulkantest.KindShaderModule))
}

func TestPipelineSetRebuild(t *testing.T) {
	f := newPipelineFixture(t)
	shaders := vulkantest.NewShaders(allShaders...)
	extent := vk.Extent2D{Width: 800, Height: 600}

	ps, err := vulkan.PipelineSetCreate(f.context, shaders, f.renderpass, extent, f.layouts)
	require.NoError(t, err)
	oldMain := ps.Main.Handle

	assert.False(t, ps.NeedsRebuild())
	ps.Invalidate()
	assert.True(t, ps.NeedsRebuild())

	require.NoError(t, ps.Rebuild(f.context, f.renderpass, extent))
	assert.False(t, ps.NeedsRebuild())
	assert.True(t, oldMain != ps.Main.Handle)
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipeline))

	// a broken rebuild keeps the working pipelines
	current := ps.Main.Handle
	ps.Invalidate()
	f.driver.FailNext("CreateGraphicsPipeline", errors.New("compile error"))
	assert.Error(t, ps.Rebuild(f.context, f.renderpass, extent))
	assert.True(t, current == ps.Main.Handle)
	assert.False(t, ps.NeedsRebuild(), "a broken shader is not retried every frame")
	assert.Equal(t, 2, f.driver.Live(vulkantest.KindPipeline))

	ps.Destroy(f.context)
	assert.Empty(t, f.driver.Violations())
}

func TestShaderModuleCreateEmpty(t *testing.T) {
	f := newPipelineFixture(t)
	shaders := vulkantest.Shaders{"empty.spv": {}}

	_, err := vulkan.ShaderModuleCreate(f.context, shaders, "empty.spv", vk.ShaderStageVertexBit)
	assert.ErrorIs(t, err, core.ErrInvalidShader)
}

func TestBytesToSPIRV(t *testing.T) {
	words, err := vulkan.BytesToSPIRV([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = vulkan.BytesToSPIRV([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidShader)
	_, err = vulkan.BytesToSPIRV(nil)
	assert.ErrorIs(t, err, core.ErrInvalidShader)
}

func TestVertexAttributesMatchLayout(t *testing.T) {
	attributes := vulkan.VertexAttributes()
	require.Len(t, attributes, 3)
	assert.Equal(t, uint32(0), attributes[0].Offset)
	assert.Equal(t, uint32(12), attributes[1].Offset)
	assert.Equal(t, uint32(20), attributes[2].Offset)
}
