// Package renderer draws sprites and user defined shapes into a Vulkan
// swapchain. The Renderer owns the whole GPU object graph and is driven by
// the game loop through Summit.
package renderer

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/components"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/resources"
)

// Window is what the renderer needs from the platform window.
type Window interface {
	vulkan.SurfaceSource
	FramebufferSizer
}

// FramebufferSizer reports the drawable size in pixels. A minimized
// window reports zero.
type FramebufferSizer interface {
	GetFramebufferSize() (width, height int)
}

type Config struct {
	ApplicationName  string
	EnableValidation bool
	VSync            bool
	ClearColor       [4]float32
	// ShapeLineWidth is the width of the wireframe user shapes.
	ShapeLineWidth float32
	Resources      resources.Config
}

type Renderer struct {
	config Config
	window FramebufferSizer

	device    *vulkan.DeviceContext
	context   *vulkan.VulkanContext
	swapchain *vulkan.VulkanSwapchain
	targets   *vulkan.RenderTargetSet
	pipelines *vulkan.PipelineSet
	frames    *vulkan.FrameSubmitter
	resources *resources.Manager
	camera    *components.Camera

	sprites []*metadata.Sprite
	draws   []resources.SpriteDraw

	lights      []metadata.PointLight
	ambient     mgl32.Vec4
	lightsDirty bool

	// set while the window has no drawable area
	resizePending bool
}

// New creates the device for window and the full render graph on top of it.
func New(window Window, config Config, shaders vulkan.ShaderSource, images resources.ImageSource) (*Renderer, error) {
	device, err := vulkan.NewDeviceContext(vulkan.DeviceConfig{
		ApplicationName:  config.ApplicationName,
		EnableValidation: config.EnableValidation,
	}, window)
	if err != nil {
		return nil, err
	}
	r, err := NewWithContext(vulkan.NewVulkanContext(device), window, config, shaders, images)
	if err != nil {
		device.Destroy()
		return nil, err
	}
	r.device = device
	core.LogInfo("renderer running on %s", device.GpuName())
	return r, nil
}

// NewWithContext builds the render graph on an existing context. It does
// not own the device behind it.
func NewWithContext(context *vulkan.VulkanContext, window FramebufferSizer, config Config, shaders vulkan.ShaderSource, images resources.ImageSource) (*Renderer, error) {
	if config.ShapeLineWidth <= 0 {
		config.ShapeLineWidth = 1
	}
	manager, err := resources.New(config.Resources, images)
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		config:    config,
		window:    window,
		context:   context,
		resources: manager,
		ambient:   mgl32.Vec4{1, 1, 1, 1},
	}
	if err := r.build(shaders); err != nil {
		core.LogError("failed to create the renderer: %s", err)
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) build(shaders vulkan.ShaderSource) error {
	width, height := r.window.GetFramebufferSize()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("window has no drawable area (%dx%d)", width, height)
	}

	var err error
	if r.swapchain, err = vulkan.SwapchainCreate(r.context, uint32(width), uint32(height), r.config.VSync); err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}
	if r.targets, err = vulkan.RenderTargetSetCreate(r.context, r.swapchain, r.config.ClearColor); err != nil {
		return fmt.Errorf("render targets: %w", err)
	}
	if r.frames, err = vulkan.FrameSubmitterCreate(r.context); err != nil {
		return fmt.Errorf("frame submitter: %w", err)
	}
	if err := r.frames.AllocateFrameCommandBuffers(r.context, r.swapchain); err != nil {
		return err
	}
	if err := r.resources.Init(r.context, r.frames.CommandPool, r.context.GraphicsQueue, r.swapchain.Extent); err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	layouts, err := r.resources.Layouts()
	if err != nil {
		return err
	}
	if r.pipelines, err = vulkan.PipelineSetCreate(r.context, shaders, r.targets.Renderpass, r.swapchain.Extent, layouts); err != nil {
		return fmt.Errorf("pipelines: %w", err)
	}

	r.camera = components.NewCamera(r.swapchain.Extent.Width, r.swapchain.Extent.Height)
	r.lightsDirty = true
	return r.updateUniforms()
}

// release tears down whatever exists, in reverse creation order.
func (r *Renderer) release() {
	if r.context == nil {
		return
	}
	if err := r.context.WaitIdle(); err != nil {
		core.LogError("failed to wait for the device: %s", err)
	}
	if r.pipelines != nil {
		r.pipelines.Destroy(r.context)
		r.pipelines = nil
	}
	if err := r.resources.DeInit(); err != nil {
		core.LogError("failed to release resources: %s", err)
	}
	if r.frames != nil {
		r.frames.FreeFrameCommandBuffers(r.context, r.swapchain)
		r.frames.Destroy(r.context)
		r.frames = nil
	}
	if r.targets != nil {
		r.targets.Destroy(r.context, r.swapchain)
		r.targets = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy(r.context)
		r.swapchain = nil
	}
}

// Shutdown releases the render graph and, when the renderer created it,
// the device.
func (r *Renderer) Shutdown() {
	r.release()
	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}
	core.LogInfo("renderer shut down")
}

// Summit draws one frame. With useDynamicCmdBuffer the frame is recorded
// into the single dynamic command buffer; otherwise the per image buffers
// are reused until the scene changes. An outdated swapchain is rebuilt and
// the frame dropped.
func (r *Renderer) Summit(useDynamicCmdBuffer bool) error {
	if r.resizePending {
		if err := r.ReInitSwapchain(); err != nil {
			return err
		}
		if r.resizePending {
			return nil
		}
	}

	if r.pipelines.NeedsRebuild() {
		if err := r.rebuildPipelines(); err != nil {
			core.LogError("pipeline rebuild failed, keeping the previous pipelines: %s", err)
		}
	}

	if r.camera.IsDirty || r.lightsDirty {
		if err := r.frames.WaitIdleFrame(r.context); err != nil {
			return err
		}
		if err := r.updateUniforms(); err != nil {
			return err
		}
	}

	status, err := r.frames.Submit(r.context, r.swapchain, useDynamicCmdBuffer, r.resources.Generation(), r.record)
	if err != nil {
		return err
	}
	if status == vulkan.FrameResizeNeeded {
		return r.ReInitSwapchain()
	}
	return nil
}

func (r *Renderer) rebuildPipelines() error {
	if err := r.context.WaitIdle(); err != nil {
		return err
	}
	if err := r.pipelines.Rebuild(r.context, r.targets.Renderpass, r.swapchain.Extent); err != nil {
		return err
	}
	vulkan.InvalidateRecorded(r.swapchain)
	return nil
}

func (r *Renderer) updateUniforms() error {
	if err := r.resources.UpdateCamera(r.camera.GetView(), r.camera.GetProjection()); err != nil {
		return err
	}
	if r.lightsDirty {
		if err := r.resources.UpdatePointLights(r.lights, r.ambient); err != nil {
			return err
		}
		r.lightsDirty = false
	}
	return nil
}

// record fills cb with the sprite pass followed by the user shapes.
func (r *Renderer) record(cb *vulkan.VulkanCommandBuffer, frame *vulkan.SwapchainFrame) error {
	driver := r.context.Driver
	extent := r.swapchain.Extent

	r.targets.Renderpass.RenderpassBegin(r.context, cb, frame.Framebuffer)
	driver.CmdSetViewport(cb.Handle, vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1.0,
	})
	driver.CmdSetScissor(cb.Handle, vk.Rect2D{Extent: extent})

	cameraSet, err := r.resources.CameraSet()
	if err != nil {
		return err
	}

	if len(r.draws) > 0 {
		lightsSet, err := r.resources.PointLightsSet()
		if err != nil {
			return err
		}
		vertex, index, err := r.resources.SpriteBuffers()
		if err != nil {
			return err
		}
		layout := r.pipelines.Main.PipelineLayout
		r.pipelines.Main.Bind(r.context, cb)
		driver.CmdBindDescriptorSets(cb.Handle, layout, 0, []vk.DescriptorSet{cameraSet}, nil)
		driver.CmdBindDescriptorSets(cb.Handle, layout, 2, []vk.DescriptorSet{lightsSet}, nil)
		driver.CmdBindVertexBuffer(cb.Handle, vertex.Handle)
		driver.CmdBindIndexBuffer(cb.Handle, index.Handle)
		for _, draw := range r.draws {
			driver.CmdBindDescriptorSets(cb.Handle, layout, 1, []vk.DescriptorSet{draw.TextureSet}, []uint32{draw.DynamicOffset})
			driver.CmdDrawIndexed(cb.Handle, draw.IndexCount, draw.FirstIndex, 0)
		}
	}

	if slots := r.resources.OccupiedShapes(); len(slots) > 0 {
		layout := r.pipelines.Lines.PipelineLayout
		stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
		r.pipelines.Lines.Bind(r.context, cb)
		driver.CmdSetLineWidth(cb.Handle, r.config.ShapeLineWidth)
		driver.CmdBindDescriptorSets(cb.Handle, layout, 0, []vk.DescriptorSet{cameraSet}, nil)
		for _, slot := range slots {
			shape, err := r.resources.ShapedBuffer(slot)
			if err != nil {
				return err
			}
			constants := metadata.ShapePushConstants{Model: mgl32.Ident4(), Color: shape.Rect.Color}
			driver.CmdPushConstants(cb.Handle, layout, stages, 0, constants.Bytes())
			driver.CmdBindVertexBuffer(cb.Handle, shape.VertexBuffer.Handle)
			driver.CmdBindIndexBuffer(cb.Handle, shape.IndexBuffer.Handle)
			driver.CmdDrawIndexed(cb.Handle, uint32(len(shape.Indices)), 0, 0)
		}
	}

	r.targets.Renderpass.RenderpassEnd(r.context, cb)
	return nil
}

// ReInitSwapchain rebuilds the swapchain and everything sized by it after a
// resize. A window without drawable area is skipped and retried by the next
// Summit.
func (r *Renderer) ReInitSwapchain() error {
	width, height := r.window.GetFramebufferSize()
	if width <= 0 || height <= 0 {
		if !r.resizePending {
			core.LogDebug("window minimized, rendering suspended")
		}
		r.resizePending = true
		return nil
	}

	if err := r.context.WaitIdle(); err != nil {
		return err
	}
	if r.swapchain != nil {
		r.frames.FreeFrameCommandBuffers(r.context, r.swapchain)
		r.targets.Release(r.context, r.swapchain)
		r.swapchain.Destroy(r.context)
		r.swapchain = nil
	}

	swapchain, err := vulkan.SwapchainCreate(r.context, uint32(width), uint32(height), r.config.VSync)
	if err != nil {
		// retried by the next Summit
		r.resizePending = true
		core.LogError("failed to recreate the swapchain: %s", err)
		return err
	}
	r.swapchain = swapchain

	if !r.targets.IsCompatible(swapchain.ImageFormat.Format) {
		core.LogInfo("surface format changed, recreating the render pass")
		if err := r.targets.RecreateRenderpass(r.context, swapchain.ImageFormat.Format); err != nil {
			return err
		}
		if err := r.pipelines.Rebuild(r.context, r.targets.Renderpass, swapchain.Extent); err != nil {
			return err
		}
	}
	if err := r.targets.Build(r.context, swapchain); err != nil {
		return err
	}
	if err := r.frames.AllocateFrameCommandBuffers(r.context, swapchain); err != nil {
		return err
	}

	r.resources.SetSwapchainExtent(swapchain.Extent)
	r.camera.SetViewport(swapchain.Extent.Width, swapchain.Extent.Height)
	r.resizePending = false
	core.LogDebug("swapchain recreated at %dx%d with %d images", swapchain.Extent.Width, swapchain.Extent.Height, swapchain.ImageCount())
	return nil
}

// SetSprites replaces the sprite list. The GPU copy changes on the next
// PushSpritesToBuffers.
func (r *Renderer) SetSprites(sprites []*metadata.Sprite) {
	r.sprites = sprites
}

// PushSpritesToBuffers uploads the current sprite list. It waits for the
// device since the frame in flight reads the same buffers.
func (r *Renderer) PushSpritesToBuffers() error {
	if err := r.context.WaitIdle(); err != nil {
		return err
	}
	draws, err := r.resources.PushSprites(r.sprites)
	if err != nil {
		core.LogError("failed to push %d sprites: %s", len(r.sprites), err)
		return err
	}
	r.draws = draws
	return nil
}

// SetPointLights replaces the lights, at most metadata.MaxPointLights.
func (r *Renderer) SetPointLights(lights []metadata.PointLight) error {
	if len(lights) > metadata.MaxPointLights {
		return fmt.Errorf("%d point lights given, at most %d are supported", len(lights), metadata.MaxPointLights)
	}
	r.lights = append(r.lights[:0], lights...)
	r.lightsDirty = true
	return nil
}

func (r *Renderer) SetAmbientColor(color mgl32.Vec4) {
	r.ambient = color
	r.lightsDirty = true
}

// InvalidatePipelines asks for a pipeline rebuild at the next frame
// boundary. Safe to call from any goroutine.
func (r *Renderer) InvalidatePipelines() {
	r.pipelines.Invalidate()
}

func (r *Renderer) MainCamera() *components.Camera {
	return r.camera
}

func (r *Renderer) Resources() *resources.Manager {
	return r.resources
}

func (r *Renderer) GpuName() string {
	if r.device == nil {
		return ""
	}
	return r.device.GpuName()
}

// SwapchainExtent is zero while the swapchain is being rebuilt.
func (r *Renderer) SwapchainExtent() vk.Extent2D {
	if r.swapchain == nil {
		return vk.Extent2D{}
	}
	return r.swapchain.Extent
}

func (r *Renderer) ImageCount() int {
	if r.swapchain == nil {
		return 0
	}
	return r.swapchain.ImageCount()
}

// Suspended reports whether rendering waits for the window to get a
// drawable area again.
func (r *Renderer) Suspended() bool {
	return r.resizePending
}
