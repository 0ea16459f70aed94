// Package resources owns every GPU object the sprite renderer draws from:
// descriptor layouts and sets, the sprite, camera and light buffers,
// textures, user defined shapes and the physics world.
package resources

import (
	"fmt"
	"image"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/physics"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

// ImageSource decodes textures by name.
type ImageSource interface {
	LoadImage(name string) (*image.RGBA, error)
}

type Config struct {
	/** @brief The maximum number of sprites pushed in one PushSprites call. */
	MaxSprites uint32
	/** @brief The maximum number of user defined shapes alive at once. */
	MaxUserShapes uint32
	/** @brief The maximum number of textures, the default texture excluded. */
	MaxTextures uint32
	/** @brief Gravity of the physics world. */
	Gravity mgl32.Vec2
}

var hostVisible = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// Manager is created once by the renderer and lives between Init and
// DeInit. Every accessor fails with core.ErrNotInitialized outside that
// window.
type Manager struct {
	config Config
	images ImageSource

	context       *vulkan.VulkanContext
	commandPool   vk.CommandPool
	graphicsQueue vk.Queue
	extent        vk.Extent2D
	initialized   bool

	cameraLayout vk.DescriptorSetLayout
	spriteLayout vk.DescriptorSetLayout
	lightsLayout vk.DescriptorSetLayout

	pool    *vulkan.VulkanDescriptorPool
	sampler vk.Sampler

	cameraBuffer *vulkan.VulkanBuffer
	cameraSet    vk.DescriptorSet
	lightsBuffer *vulkan.VulkanBuffer
	lightsSet    vk.DescriptorSet

	spriteVertexBuffer  *vulkan.VulkanBuffer
	spriteIndexBuffer   *vulkan.VulkanBuffer
	spriteUniformBuffer *vulkan.VulkanBuffer
	spriteStride        uint64

	textures map[string]*Texture
	shapes   []*ShapedBuffers
	world    *physics.World

	generation atomic.Uint64
}

// New validates the capacities. Nothing touches the GPU before Init.
func New(config Config, images ImageSource) (*Manager, error) {
	if config.MaxSprites == 0 || config.MaxUserShapes == 0 || config.MaxTextures == 0 {
		err := fmt.Errorf("resource manager capacities must be > 0: %+v", config)
		core.LogError(err.Error())
		return nil, err
	}
	return &Manager{
		config:   config,
		images:   images,
		textures: make(map[string]*Texture),
	}, nil
}

// Init creates every shared GPU object. Calling it twice without DeInit
// returns core.ErrAlreadyInitialized.
func (m *Manager) Init(context *vulkan.VulkanContext, commandPool vk.CommandPool, graphicsQueue vk.Queue, extent vk.Extent2D) error {
	if m.initialized {
		return core.ErrAlreadyInitialized
	}
	m.context = context
	m.commandPool = commandPool
	m.graphicsQueue = graphicsQueue
	m.extent = extent

	if err := m.init(); err != nil {
		core.LogError("failed to initialize the resource manager: %s", err)
		m.release()
		return err
	}
	m.initialized = true
	m.generation.Add(1)
	core.LogInfo("resource manager initialized (sprites=%d shapes=%d textures=%d)",
		m.config.MaxSprites, m.config.MaxUserShapes, m.config.MaxTextures)
	return nil
}

func (m *Manager) init() error {
	if err := m.setUpCameraDescriptorSetLayout(); err != nil {
		return err
	}
	if err := m.setUpSpriteDescriptorSetLayout(); err != nil {
		return err
	}
	if err := m.setUpPointLightsDescriptorSetLayout(); err != nil {
		return err
	}

	// camera + lights + one sprite set per texture and the default one
	textureSets := m.config.MaxTextures + 1
	pool, err := vulkan.DescriptorPoolCreate(m.context, 2+textureSets, map[vk.DescriptorType]uint32{
		vk.DescriptorTypeUniformBuffer:        2,
		vk.DescriptorTypeUniformBufferDynamic: textureSets,
		vk.DescriptorTypeCombinedImageSampler: textureSets,
	})
	if err != nil {
		return err
	}
	m.pool = pool

	if m.sampler, err = vulkan.SamplerCreate(m.context); err != nil {
		return err
	}
	if err := m.createUniformBuffers(); err != nil {
		return err
	}
	if err := m.createSpriteBuffers(); err != nil {
		return err
	}
	if err := m.createDefaultTexture(); err != nil {
		return err
	}

	m.world = physics.NewWorld(m.config.Gravity, physics.GroundRect)
	return nil
}

func (m *Manager) setUpCameraDescriptorSetLayout() error {
	if m.cameraLayout != nil {
		return nil
	}
	layout, err := vulkan.DescriptorSetLayoutCreate(m.context, []vulkan.DescriptorBinding{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
	})
	if err != nil {
		return fmt.Errorf("camera descriptor set layout: %w", err)
	}
	m.cameraLayout = layout
	return nil
}

func (m *Manager) setUpSpriteDescriptorSetLayout() error {
	if m.spriteLayout != nil {
		return nil
	}
	layout, err := vulkan.DescriptorSetLayoutCreate(m.context, []vulkan.DescriptorBinding{
		{Binding: 0, Type: vk.DescriptorTypeUniformBufferDynamic, Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Stages: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	})
	if err != nil {
		return fmt.Errorf("sprite descriptor set layout: %w", err)
	}
	m.spriteLayout = layout
	return nil
}

func (m *Manager) setUpPointLightsDescriptorSetLayout() error {
	if m.lightsLayout != nil {
		return nil
	}
	layout, err := vulkan.DescriptorSetLayoutCreate(m.context, []vulkan.DescriptorBinding{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Stages: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	})
	if err != nil {
		return fmt.Errorf("point lights descriptor set layout: %w", err)
	}
	m.lightsLayout = layout
	return nil
}

func (m *Manager) createUniformBuffers() error {
	var err error
	usage := vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)

	if m.cameraBuffer, err = vulkan.BufferCreate(m.context, metadata.CameraUniformSize, usage, hostVisible); err != nil {
		return err
	}
	if m.cameraSet, err = m.pool.Allocate(m.context, m.cameraLayout); err != nil {
		return err
	}
	if m.lightsBuffer, err = vulkan.BufferCreate(m.context, metadata.PointLightsUniformSize, usage, hostVisible); err != nil {
		return err
	}
	if m.lightsSet, err = m.pool.Allocate(m.context, m.lightsLayout); err != nil {
		return err
	}
	m.context.Driver.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		vulkan.WriteUniformBuffer(m.cameraSet, 0, false, m.cameraBuffer, metadata.CameraUniformSize),
		vulkan.WriteUniformBuffer(m.lightsSet, 0, false, m.lightsBuffer, metadata.PointLightsUniformSize),
	})

	// start with an identity camera and no lights
	camera := metadata.CameraUniform{View: mgl32.Ident4(), Projection: mgl32.Ident4()}
	if err := m.cameraBuffer.LoadData(m.context, 0, camera.Bytes()); err != nil {
		return err
	}
	lights := metadata.PointLightsUniform{Ambient: mgl32.Vec4{1, 1, 1, 1}}
	return m.lightsBuffer.LoadData(m.context, 0, lights.Bytes())
}

// DeInit waits for the device and releases everything Init created. It is
// a no-op on a manager that is not initialized.
func (m *Manager) DeInit() error {
	if !m.initialized {
		return nil
	}
	if err := m.context.WaitIdle(); err != nil {
		core.LogError("failed to wait for the device before releasing resources: %s", err)
		return err
	}
	m.release()
	m.initialized = false
	m.generation.Add(1)
	core.LogInfo("resource manager released")
	return nil
}

// release destroys whatever exists; it also cleans up a failed Init.
func (m *Manager) release() {
	if m.world != nil {
		m.world.Destroy()
		m.world = nil
	}
	for _, shape := range m.shapes {
		shape.destroy(m.context)
	}
	m.shapes = nil
	for name, texture := range m.textures {
		texture.Image.Destroy(m.context)
		delete(m.textures, name)
	}
	for _, buffer := range []**vulkan.VulkanBuffer{
		&m.spriteVertexBuffer, &m.spriteIndexBuffer, &m.spriteUniformBuffer, &m.cameraBuffer, &m.lightsBuffer,
	} {
		if *buffer != nil {
			(*buffer).Destroy(m.context)
			*buffer = nil
		}
	}
	m.cameraSet, m.lightsSet = nil, nil
	if m.sampler != nil {
		m.context.Driver.DestroySampler(m.sampler)
		m.sampler = nil
	}
	// destroying the pool frees every set allocated from it
	if m.pool != nil {
		m.pool.Destroy(m.context)
		m.pool = nil
	}
	for _, layout := range []*vk.DescriptorSetLayout{&m.cameraLayout, &m.spriteLayout, &m.lightsLayout} {
		if *layout != nil {
			m.context.Driver.DestroyDescriptorSetLayout(*layout)
			*layout = nil
		}
	}
}

func (m *Manager) Initialized() bool {
	return m.initialized
}

func (m *Manager) Config() Config {
	return m.config
}

// Generation changes whenever command buffers recorded against the
// manager's buffers or descriptor sets must be recorded again.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

func (m *Manager) bump() {
	m.generation.Add(1)
}

// Layouts returns the descriptor set layouts the pipelines are built from.
func (m *Manager) Layouts() (vulkan.PipelineLayouts, error) {
	if !m.initialized {
		return vulkan.PipelineLayouts{}, core.ErrNotInitialized
	}
	return vulkan.PipelineLayouts{Camera: m.cameraLayout, Sprite: m.spriteLayout, Lights: m.lightsLayout}, nil
}

// CameraSet is set 0 of both pipelines.
func (m *Manager) CameraSet() (vk.DescriptorSet, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	return m.cameraSet, nil
}

// PointLightsSet is set 2 of the sprite pipeline.
func (m *Manager) PointLightsSet() (vk.DescriptorSet, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	return m.lightsSet, nil
}

func (m *Manager) Sampler() (vk.Sampler, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	return m.sampler, nil
}

func (m *Manager) World() (*physics.World, error) {
	if !m.initialized {
		return nil, core.ErrNotInitialized
	}
	return m.world, nil
}

// SwapchainExtent is the extent the manager was last told about.
func (m *Manager) SwapchainExtent() (vk.Extent2D, error) {
	if !m.initialized {
		return vk.Extent2D{}, core.ErrNotInitialized
	}
	return m.extent, nil
}

func (m *Manager) SetSwapchainExtent(extent vk.Extent2D) {
	m.extent = extent
}

// UpdateCamera writes the camera block read by both pipelines.
func (m *Manager) UpdateCamera(view, projection mgl32.Mat4) error {
	if !m.initialized {
		return core.ErrNotInitialized
	}
	camera := metadata.CameraUniform{View: view, Projection: projection}
	return m.cameraBuffer.LoadData(m.context, 0, camera.Bytes())
}

// UpdatePointLights writes the fixed size light block. At most
// metadata.MaxPointLights lights are accepted.
func (m *Manager) UpdatePointLights(lights []metadata.PointLight, ambient mgl32.Vec4) error {
	if !m.initialized {
		return core.ErrNotInitialized
	}
	block, err := metadata.NewPointLightsUniform(lights, ambient)
	if err != nil {
		return err
	}
	return m.lightsBuffer.LoadData(m.context, 0, block.Bytes())
}
