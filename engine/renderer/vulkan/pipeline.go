package vulkan

import (
	"fmt"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
)

const (
	SpriteVertexShader   = "sprite.vert.spv"
	SpriteFragmentShader = "sprite.frag.spv"
	LinesVertexShader    = "lines.vert.spv"
	LinesFragmentShader  = "lines.frag.spv"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	/** @brief A pointer to the renderpass to associate with the pipeline. */
	Renderpass *VulkanRenderpass
	/** @brief The stride of the vertex data to be used (ex: sizeof(Vertex)) */
	Stride uint32
	/** @brief An array of attributes. */
	Attributes []vk.VertexInputAttributeDescription
	/** @brief An array of descriptor set layouts. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	/** @brief An array of stages. */
	Stages []vk.PipelineShaderStageCreateInfo
	/** @brief The initial viewport and scissor size. Both are dynamic. */
	Extent vk.Extent2D
	/** @brief Indicates if this pipeline should use wireframe mode. */
	IsWireframe bool
	/** @brief Enables blending with src alpha. */
	AlphaBlend bool
	/** @brief An array of push constant data ranges. */
	PushConstantRanges []vk.PushConstantRange
}

// VertexAttributes describes metadata.Vertex: position, uv, color.
func VertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexPositionOffset},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: metadata.VertexTexCoordOffset},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: metadata.VertexColorOffset},
	}
}

func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	if config.Renderpass == nil {
		return nil, fmt.Errorf("func NewGraphicsPipeline: renderpass is required")
	}
	// NOTE: Vulkan only guarantees 128 bytes of push constants.
	if len(config.PushConstantRanges) > 32 {
		return nil, fmt.Errorf("func NewGraphicsPipeline: cannot have more than 32 push constant ranges. Passed count: %d", len(config.PushConstantRanges))
	}
	outPipeline := &VulkanPipeline{}

	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(config.Extent.Width),
			Height:   float32(config.Extent.Height),
			MaxDepth: 1.0,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: config.Extent}},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		// sprites may be mirrored by a negative scale, nothing is culled
		CullMode:        vk.CullModeFlags(vk.CullModeNone),
		FrontFace:       vk.FrontFaceCounterClockwise,
		DepthBiasEnable: vk.False,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Sprites are drawn in submission order, the depth buffer is only cleared.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vk.CompareOpLessOrEqual,
		StencilTestEnable: vk.False,
		MaxDepthBounds:    1.0,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if config.AlphaBlend {
		colorBlendAttachmentState.BlendEnable = vk.True
		colorBlendAttachmentState.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		colorBlendAttachmentState.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		colorBlendAttachmentState.ColorBlendOp = vk.BlendOpAdd
		colorBlendAttachmentState.SrcAlphaBlendFactor = vk.BlendFactorOne
		colorBlendAttachmentState.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		colorBlendAttachmentState.AlphaBlendOp = vk.BlendOpAdd
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}

	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0, // Binding index
		Stride:    config.Stride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}

	// Attributes
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
		PVertexAttributeDescriptions:    config.Attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:            config.DescriptorSetLayouts,
		PushConstantRangeCount: uint32(len(config.PushConstantRanges)),
		PPushConstantRanges:    config.PushConstantRanges,
	}

	// Create the pipeline layout.
	if err := context.Locks.SafeCall(PipelineManagement, func() error {
		layout, err := context.Driver.CreatePipelineLayout(&pipelineLayoutCreateInfo)
		if err != nil {
			return err
		}
		outPipeline.PipelineLayout = layout
		return nil
	}); err != nil {
		return nil, err
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		PTessellationState:  nil,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	if err := context.Locks.SafeCall(PipelineManagement, func() error {
		handle, err := context.Driver.CreateGraphicsPipeline(&pipelineCreateInfo)
		if err != nil {
			return err
		}
		outPipeline.Handle = handle
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}

	core.LogDebug("Graphics pipeline created!")
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	_ = context.Locks.SafeCall(PipelineManagement, func() error {
		// Destroy pipeline
		if pipeline.Handle != vk.NullPipeline {
			context.Driver.DestroyPipeline(pipeline.Handle)
			pipeline.Handle = vk.NullPipeline
		}
		// Destroy layout
		if pipeline.PipelineLayout != vk.NullPipelineLayout {
			context.Driver.DestroyPipelineLayout(pipeline.PipelineLayout)
			pipeline.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}

func (pipeline *VulkanPipeline) Bind(context *VulkanContext, commandBuffer *VulkanCommandBuffer) {
	context.Driver.CmdBindPipeline(commandBuffer.Handle, pipeline.Handle)
}

// PipelineLayouts are the descriptor set layouts the pipelines are built
// against. They belong to the resource manager.
type PipelineLayouts struct {
	Camera vk.DescriptorSetLayout
	Sprite vk.DescriptorSetLayout
	Lights vk.DescriptorSetLayout
}

// PipelineSet holds the filled sprite pipeline and the wireframe pipeline
// used for user shapes.
type PipelineSet struct {
	Main  *VulkanPipeline
	Lines *VulkanPipeline

	shaders ShaderSource
	layouts PipelineLayouts
	stale   atomic.Bool
}

// PipelineSetCreate builds both pipelines. A missing shader aborts with
// core.ErrShaderNotFound in the chain.
func PipelineSetCreate(context *VulkanContext, shaders ShaderSource, renderpass *VulkanRenderpass, extent vk.Extent2D, layouts PipelineLayouts) (*PipelineSet, error) {
	ps := &PipelineSet{shaders: shaders, layouts: layouts}
	if err := ps.build(context, renderpass, extent); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *PipelineSet) build(context *VulkanContext, renderpass *VulkanRenderpass, extent vk.Extent2D) error {
	main, err := ps.createPipeline(context, SpriteVertexShader, SpriteFragmentShader, &VulkanPipelineConfig{
		Renderpass:           renderpass,
		Stride:               metadata.VertexStride,
		Attributes:           VertexAttributes(),
		DescriptorSetLayouts: []vk.DescriptorSetLayout{ps.layouts.Camera, ps.layouts.Sprite, ps.layouts.Lights},
		Extent:               extent,
		AlphaBlend:           true,
	})
	if err != nil {
		return fmt.Errorf("failed to create sprite pipeline: %w", err)
	}

	lines, err := ps.createPipeline(context, LinesVertexShader, LinesFragmentShader, &VulkanPipelineConfig{
		Renderpass:           renderpass,
		Stride:               metadata.VertexStride,
		Attributes:           VertexAttributes(),
		DescriptorSetLayouts: []vk.DescriptorSetLayout{ps.layouts.Camera},
		Extent:               extent,
		IsWireframe:          true,
		AlphaBlend:           true,
		PushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       metadata.ShapePushConstantsSize,
		}},
	})
	if err != nil {
		main.Destroy(context)
		return fmt.Errorf("failed to create lines pipeline: %w", err)
	}

	ps.Main = main
	ps.Lines = lines
	return nil
}

// createPipeline loads the shader pair, builds the pipeline and drops the
// shader modules again; the pipeline keeps its own copy of the code.
func (ps *PipelineSet) createPipeline(context *VulkanContext, vertName, fragName string, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	vert, err := ShaderModuleCreate(context, ps.shaders, vertName, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	defer vert.Destroy(context)

	frag, err := ShaderModuleCreate(context, ps.shaders, fragName, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, err
	}
	defer frag.Destroy(context)

	config.Stages = []vk.PipelineShaderStageCreateInfo{vert.ShaderStageCreateInfo, frag.ShaderStageCreateInfo}
	return NewGraphicsPipeline(context, config)
}

// Invalidate marks the pipelines for a rebuild at the next frame boundary.
// Safe to call from the asset watcher goroutine.
func (ps *PipelineSet) Invalidate() {
	ps.stale.Store(true)
}

// NeedsRebuild reports whether Invalidate was called since the last Rebuild.
func (ps *PipelineSet) NeedsRebuild() bool {
	return ps.stale.Load()
}

// Rebuild recreates both pipelines. The device must be idle. When the new
// shaders fail to build the old pipelines are kept and the set is no longer
// stale; the next Invalidate triggers another attempt.
func (ps *PipelineSet) Rebuild(context *VulkanContext, renderpass *VulkanRenderpass, extent vk.Extent2D) error {
	oldMain, oldLines := ps.Main, ps.Lines
	ps.stale.Store(false)
	if err := ps.build(context, renderpass, extent); err != nil {
		ps.Main, ps.Lines = oldMain, oldLines
		return err
	}
	if oldMain != nil {
		oldMain.Destroy(context)
	}
	if oldLines != nil {
		oldLines.Destroy(context)
	}
	core.LogInfo("pipelines rebuilt")
	return nil
}

func (ps *PipelineSet) Destroy(context *VulkanContext) {
	if ps.Main != nil {
		ps.Main.Destroy(context)
		ps.Main = nil
	}
	if ps.Lines != nil {
		ps.Lines.Destroy(context)
		ps.Lines = nil
	}
}
