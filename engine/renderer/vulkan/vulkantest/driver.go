// Package vulkantest provides an in-memory vulkan.Driver. It hands out fake
// handles, keeps track of which objects are alive, backs device memory with
// Go byte slices and checks the synchronization rules the renderer relies
// on: fences waited before reuse, semaphores signaled before they are
// waited on, command buffers not reset while the GPU still owns them.
package vulkantest

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/vulkan"
)

type Kind string

const (
	KindSwapchain           Kind = "swapchain"
	KindBuffer              Kind = "buffer"
	KindImage               Kind = "image"
	KindMemory              Kind = "memory"
	KindImageView           Kind = "image-view"
	KindSampler             Kind = "sampler"
	KindRenderPass          Kind = "render-pass"
	KindFramebuffer         Kind = "framebuffer"
	KindShaderModule        Kind = "shader-module"
	KindPipelineLayout      Kind = "pipeline-layout"
	KindPipeline            Kind = "pipeline"
	KindDescriptorSetLayout Kind = "descriptor-set-layout"
	KindDescriptorPool      Kind = "descriptor-pool"
	KindCommandPool         Kind = "command-pool"
	KindCommandBuffer       Kind = "command-buffer"
	KindSemaphore           Kind = "semaphore"
	KindFence               Kind = "fence"
)

// Queue operations as they show up in Calls.
const (
	CallWaitFence  = "wait-fence"
	CallResetFence = "reset-fence"
	CallAcquire    = "acquire"
	CallSubmit     = "submit"
	CallPresent    = "present"
	CallWaitIdle   = "wait-idle"
)

// Options describe the surface the fake reports.
type Options struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
	// ImageCount overrides the number of swapchain images. Zero means
	// MinImageCount of the create info.
	ImageCount uint32
}

// DefaultOptions is an 800x600 surface with the preferred format and both
// FIFO and mailbox present modes.
func DefaultOptions() Options {
	return Options{
		Capabilities: vk.SurfaceCapabilities{
			MinImageCount:       2,
			MaxImageCount:       3,
			CurrentExtent:       vk.Extent2D{Width: 800, Height: 600},
			MinImageExtent:      vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:      vk.Extent2D{Width: 4096, Height: 4096},
			MaxImageArrayLayers: 1,
			CurrentTransform:    vk.SurfaceTransformIdentityBit,
		},
		Formats:      []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}},
		PresentModes: []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox},
	}
}

// Command is one recorded vkCmd* call.
type Command struct {
	Name           string
	Handle         unsafe.Pointer
	IndexCount     uint32
	FirstIndex     uint32
	VertexOffset   int32
	FirstSet       uint32
	SetCount       int
	DynamicOffsets []uint32
	Data           []byte
	LineWidth      float32
	Viewport       vk.Viewport
	Scissor        vk.Rect2D
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

type commandBuffer struct {
	pool     unsafe.Pointer
	state    cbState
	flags    vk.CommandBufferUsageFlags
	commands []Command
	ops      []func()
	fence    unsafe.Pointer
}

type fence struct {
	signaled bool
	// submitted and not waited on yet
	pending bool
}

type swapchain struct {
	images []vk.Image
	extent vk.Extent2D
	format vk.Format
	next   uint32
}

type memory struct {
	data   []byte
	mapped bool
}

// Driver is the in-memory vulkan.Driver.
type Driver struct {
	mu sync.Mutex

	opts Options

	live       map[unsafe.Pointer]Kind
	created    map[Kind]int
	violations []string
	calls      []string

	memories       map[unsafe.Pointer]*memory
	bufferSizes    map[unsafe.Pointer]uint64
	bufferMemory   map[unsafe.Pointer]unsafe.Pointer
	imageSizes     map[unsafe.Pointer]uint64
	fences         map[unsafe.Pointer]*fence
	semaphores     map[unsafe.Pointer]bool
	commandBuffers map[unsafe.Pointer]*commandBuffer
	swapchains     map[unsafe.Pointer]*swapchain
	descriptorSets map[unsafe.Pointer]uint32 // sets handed out per pool
	poolMaxSets    map[unsafe.Pointer]uint32
	framebuffers   map[unsafe.Pointer]vk.Extent2D

	descriptorWrites int

	// AcquireResults and PresentResults are consumed one per call; when
	// empty the call succeeds.
	AcquireResults []vk.Result
	PresentResults []vk.Result
	// FenceResults overrides the outcome of WaitForFence, one per call.
	FenceResults []vk.Result
	// Hold keeps submitted work pending until a fence wait returns.
	// Without it the GPU finishes instantly, but the fence still has to be
	// waited on before reuse.
	Hold bool

	failures map[string]error
}

var _ vulkan.Driver = (*Driver)(nil)

func NewDriver(opts Options) *Driver {
	return &Driver{
		opts:           opts,
		live:           make(map[unsafe.Pointer]Kind),
		created:        make(map[Kind]int),
		memories:       make(map[unsafe.Pointer]*memory),
		bufferSizes:    make(map[unsafe.Pointer]uint64),
		bufferMemory:   make(map[unsafe.Pointer]unsafe.Pointer),
		imageSizes:     make(map[unsafe.Pointer]uint64),
		fences:         make(map[unsafe.Pointer]*fence),
		semaphores:     make(map[unsafe.Pointer]bool),
		commandBuffers: make(map[unsafe.Pointer]*commandBuffer),
		swapchains:     make(map[unsafe.Pointer]*swapchain),
		descriptorSets: make(map[unsafe.Pointer]uint32),
		poolMaxSets:    make(map[unsafe.Pointer]uint32),
		framebuffers:   make(map[unsafe.Pointer]vk.Extent2D),
		failures:       make(map[string]error),
	}
}

// NewContext wraps d in a VulkanContext with a 256 byte uniform buffer
// offset alignment and a D32 depth format.
func NewContext(d *Driver) *vulkan.VulkanContext {
	var properties vk.PhysicalDeviceProperties
	properties.Limits.MinUniformBufferOffsetAlignment = 256
	context := vulkan.NewContextWithDriver(d, properties, vk.FormatD32Sfloat)
	context.GraphicsQueue = vk.Queue(newHandle())
	context.PresentQueue = context.GraphicsQueue
	return context
}

func newHandle() unsafe.Pointer {
	return unsafe.Pointer(new(uint64))
}

func (d *Driver) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Driver) add(kind Kind) unsafe.Pointer {
	h := newHandle()
	d.live[h] = kind
	d.created[kind]++
	return h
}

func (d *Driver) remove(h unsafe.Pointer, kind Kind) bool {
	if h == nil {
		d.violate("destroy of a null %s", kind)
		return false
	}
	got, ok := d.live[h]
	if !ok {
		d.violate("double destroy of %s %p", kind, h)
		return false
	}
	if got != kind {
		d.violate("%s %p destroyed as %s", got, h, kind)
	}
	delete(d.live, h)
	return true
}

func (d *Driver) fail(op string) error {
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

// FailNext makes the next call of op (the Driver method name) fail with err.
func (d *Driver) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// SetSurfaceExtent changes the extent the surface reports, as a window
// resize does.
func (d *Driver) SetSurfaceExtent(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.Capabilities.CurrentExtent = vk.Extent2D{Width: width, Height: height}
}

// SetImageCount changes the number of images of swapchains created from now on.
func (d *Driver) SetImageCount(count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.ImageCount = count
}

// SetFormats changes the surface formats reported from now on.
func (d *Driver) SetFormats(formats []vk.SurfaceFormat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.Formats = formats
}

// Live returns the number of live objects of kind.
func (d *Driver) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

// LiveTotal counts the live objects per kind.
func (d *Driver) LiveTotal() map[Kind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Kind]int)
	for _, k := range d.live {
		out[k]++
	}
	return out
}

// IsLive reports whether the handle behind h has been created and not
// destroyed yet.
func (d *Driver) IsLive(h unsafe.Pointer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[h]
	return ok
}

// Created returns how many objects of kind have been created in total.
func (d *Driver) Created(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Calls returns the queue level operations in call order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Driver) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Commands returns what was recorded into cb since its last begin.
func (d *Driver) Commands(cb vk.CommandBuffer) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.commandBuffers[unsafe.Pointer(cb)]
	if !ok {
		return nil
	}
	return append([]Command(nil), state.commands...)
}

// CommandNames is Commands reduced to the command names.
func (d *Driver) CommandNames(cb vk.CommandBuffer) []string {
	var names []string
	for _, c := range d.Commands(cb) {
		names = append(names, c.Name)
	}
	return names
}

// MemoryBytes returns the backing store of mem.
func (d *Driver) MemoryBytes(mem vk.DeviceMemory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memories[unsafe.Pointer(mem)]; ok {
		return m.data
	}
	return nil
}

// BufferBytes returns the memory bound to buffer.
func (d *Driver) BufferBytes(buffer vk.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.bufferMemory[unsafe.Pointer(buffer)]
	if !ok {
		return nil
	}
	return d.memories[mem].data[:d.bufferSizes[unsafe.Pointer(buffer)]]
}

// SwapchainExtent returns the extent sc was created with.
func (d *Driver) SwapchainExtent(sc vk.Swapchain) vk.Extent2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.swapchains[unsafe.Pointer(sc)]; ok {
		return s.extent
	}
	return vk.Extent2D{}
}

// FramebufferExtent returns the extent fb was created with.
func (d *Driver) FramebufferExtent(fb vk.Framebuffer) vk.Extent2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.framebuffers[unsafe.Pointer(fb)]
}

func (d *Driver) DescriptorWrites() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.descriptorWrites
}

// Kinds lists the kinds that still have live objects, for failure messages.
func (d *Driver) Kinds() []string {
	var out []string
	for k, n := range d.LiveTotal() {
		out = append(out, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(out)
	return out
}

func (d *Driver) DeviceWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallWaitIdle)
	d.finishAll()
	return d.fail("DeviceWaitIdle")
}

// finishAll completes every pending submission.
func (d *Driver) finishAll() {
	for _, f := range d.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
	for _, cb := range d.commandBuffers {
		if cb.state == cbPending {
			cb.state = cbExecutable
			cb.fence = nil
		}
	}
}

func (d *Driver) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	if typeBits == 0 {
		return 0, fmt.Errorf("no memory type matches bits %b", typeBits)
	}
	return 0, nil
}

func (d *Driver) FormatProperties(format vk.Format) vk.FormatProperties {
	return vk.FormatProperties{
		OptimalTilingFeatures: vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit),
	}
}

func (d *Driver) SurfaceSupport() (*vulkan.SwapchainSupportInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("SurfaceSupport"); err != nil {
		return nil, err
	}
	return &vulkan.SwapchainSupportInfo{
		Capabilities: d.opts.Capabilities,
		Formats:      append([]vk.SurfaceFormat(nil), d.opts.Formats...),
		PresentModes: append([]vk.PresentMode(nil), d.opts.PresentModes...),
	}, nil
}

func (d *Driver) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSwapchain"); err != nil {
		return vk.NullSwapchain, err
	}
	if info.ImageExtent.Width == 0 || info.ImageExtent.Height == 0 {
		d.violate("swapchain created with zero extent %dx%d", info.ImageExtent.Width, info.ImageExtent.Height)
	}
	count := d.opts.ImageCount
	if count == 0 {
		count = info.MinImageCount
	}
	sc := &swapchain{extent: info.ImageExtent, format: info.ImageFormat}
	for i := uint32(0); i < count; i++ {
		// owned by the swapchain, not tracked as live objects
		sc.images = append(sc.images, vk.Image(newHandle()))
	}
	h := d.add(KindSwapchain)
	d.swapchains[h] = sc
	return vk.Swapchain(h), nil
}

func (d *Driver) DestroySwapchain(sc vk.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remove(unsafe.Pointer(sc), KindSwapchain) {
		delete(d.swapchains, unsafe.Pointer(sc))
	}
}

func (d *Driver) GetSwapchainImages(sc vk.Swapchain) ([]vk.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[unsafe.Pointer(sc)]
	if !ok {
		return nil, fmt.Errorf("unknown swapchain")
	}
	return append([]vk.Image(nil), s.images...), nil
}

func (d *Driver) AcquireNextImage(sc vk.Swapchain, timeout uint64, semaphore vk.Semaphore) (uint32, vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallAcquire)

	result := vk.Success
	if len(d.AcquireResults) > 0 {
		result = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	if result != vk.Success && result != vk.Suboptimal {
		return math.MaxUint32, result
	}

	s, ok := d.swapchains[unsafe.Pointer(sc)]
	if !ok {
		d.violate("acquire on unknown swapchain")
		return math.MaxUint32, vk.ErrorOutOfDate
	}
	if d.semaphores[unsafe.Pointer(semaphore)] {
		d.violate("acquire signals semaphore %p that is already signaled", unsafe.Pointer(semaphore))
	}
	d.semaphores[unsafe.Pointer(semaphore)] = true
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return index, result
}

func (d *Driver) QueuePresent(queue vk.Queue, info *vk.PresentInfo) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallPresent)
	for _, s := range info.PWaitSemaphores {
		if !d.semaphores[unsafe.Pointer(s)] {
			d.violate("present waits on semaphore %p that nothing signals", unsafe.Pointer(s))
		}
		d.semaphores[unsafe.Pointer(s)] = false
	}
	if len(d.PresentResults) > 0 {
		result := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		return result
	}
	return vk.Success
}

func (d *Driver) CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBuffer"); err != nil {
		return vk.NullBuffer, err
	}
	h := d.add(KindBuffer)
	d.bufferSizes[h] = uint64(info.Size)
	return vk.Buffer(h), nil
}

func (d *Driver) DestroyBuffer(buffer vk.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := unsafe.Pointer(buffer)
	if d.remove(h, KindBuffer) {
		delete(d.bufferSizes, h)
		delete(d.bufferMemory, h)
	}
}

func (d *Driver) BufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(d.bufferSizes[unsafe.Pointer(buffer)]),
		Alignment:      16,
		MemoryTypeBits: 1,
	}
}

func (d *Driver) BindBufferMemory(buffer vk.Buffer, mem vk.DeviceMemory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.memories[unsafe.Pointer(mem)]; !ok {
		d.violate("bind of unknown memory")
	}
	d.bufferMemory[unsafe.Pointer(buffer)] = unsafe.Pointer(mem)
	return nil
}

func (d *Driver) CreateImage(info *vk.ImageCreateInfo) (vk.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImage"); err != nil {
		return vk.NullImage, err
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		d.violate("image created with zero extent")
	}
	h := d.add(KindImage)
	d.imageSizes[h] = uint64(info.Extent.Width) * uint64(info.Extent.Height) * 4
	return vk.Image(h), nil
}

func (d *Driver) DestroyImage(image vk.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remove(unsafe.Pointer(image), KindImage) {
		delete(d.imageSizes, unsafe.Pointer(image))
	}
}

func (d *Driver) ImageMemoryRequirements(image vk.Image) vk.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(d.imageSizes[unsafe.Pointer(image)]),
		Alignment:      16,
		MemoryTypeBits: 1,
	}
}

func (d *Driver) BindImageMemory(image vk.Image, mem vk.DeviceMemory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.memories[unsafe.Pointer(mem)]; !ok {
		d.violate("bind of unknown memory")
	}
	return nil
}

func (d *Driver) AllocateMemory(info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	h := d.add(KindMemory)
	d.memories[h] = &memory{data: make([]byte, info.AllocationSize)}
	return vk.DeviceMemory(h), nil
}

func (d *Driver) FreeMemory(mem vk.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := unsafe.Pointer(mem)
	if m, ok := d.memories[h]; ok && m.mapped {
		d.violate("memory %p freed while mapped", h)
	}
	if d.remove(h, KindMemory) {
		delete(d.memories, h)
	}
}

func (d *Driver) MapMemory(mem vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[unsafe.Pointer(mem)]
	if !ok {
		return nil, fmt.Errorf("map of unknown memory")
	}
	if m.mapped {
		d.violate("memory %p mapped twice", unsafe.Pointer(mem))
	}
	if uint64(offset)+uint64(size) > uint64(len(m.data)) || len(m.data) == 0 {
		return nil, fmt.Errorf("map of %d bytes at %d exceeds allocation of %d", size, offset, len(m.data))
	}
	m.mapped = true
	return unsafe.Pointer(&m.data[offset]), nil
}

func (d *Driver) UnmapMemory(mem vk.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memories[unsafe.Pointer(mem)]; ok {
		if !m.mapped {
			d.violate("unmap of memory that is not mapped")
		}
		m.mapped = false
	}
}

func (d *Driver) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImageView"); err != nil {
		return vk.NullImageView, err
	}
	return vk.ImageView(d.add(KindImageView)), nil
}

func (d *Driver) DestroyImageView(view vk.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(view), KindImageView)
}

func (d *Driver) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSampler"); err != nil {
		return vk.NullSampler, err
	}
	return vk.Sampler(d.add(KindSampler)), nil
}

func (d *Driver) DestroySampler(sampler vk.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(sampler), KindSampler)
}

func (d *Driver) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateRenderPass"); err != nil {
		return vk.NullRenderPass, err
	}
	return vk.RenderPass(d.add(KindRenderPass)), nil
}

func (d *Driver) DestroyRenderPass(renderPass vk.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(renderPass), KindRenderPass)
}

func (d *Driver) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateFramebuffer"); err != nil {
		return vk.NullFramebuffer, err
	}
	if _, ok := d.live[unsafe.Pointer(info.RenderPass)]; !ok {
		d.violate("framebuffer created for a render pass that does not exist")
	}
	for _, view := range info.PAttachments {
		if _, ok := d.live[unsafe.Pointer(view)]; !ok {
			d.violate("framebuffer attachment %p does not exist", unsafe.Pointer(view))
		}
	}
	h := d.add(KindFramebuffer)
	d.framebuffers[h] = vk.Extent2D{Width: info.Width, Height: info.Height}
	return vk.Framebuffer(h), nil
}

func (d *Driver) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remove(unsafe.Pointer(framebuffer), KindFramebuffer) {
		delete(d.framebuffers, unsafe.Pointer(framebuffer))
	}
}

func (d *Driver) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateShaderModule"); err != nil {
		return vk.NullShaderModule, err
	}
	if info.CodeSize == 0 || info.CodeSize%4 != 0 {
		d.violate("shader module with code size %d", info.CodeSize)
	}
	if info.CodeSize != uint64(len(info.PCode))*4 {
		d.violate("shader module code size %d does not match %d words", info.CodeSize, len(info.PCode))
	}
	return vk.ShaderModule(d.add(KindShaderModule)), nil
}

func (d *Driver) DestroyShaderModule(module vk.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(module), KindShaderModule)
}

func (d *Driver) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, layout := range info.PSetLayouts {
		if _, ok := d.live[unsafe.Pointer(layout)]; !ok {
			d.violate("pipeline layout references a descriptor set layout that does not exist")
		}
	}
	return vk.PipelineLayout(d.add(KindPipelineLayout)), nil
}

func (d *Driver) DestroyPipelineLayout(layout vk.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(layout), KindPipelineLayout)
}

func (d *Driver) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return vk.NullPipeline, err
	}
	if _, ok := d.live[unsafe.Pointer(info.RenderPass)]; !ok {
		d.violate("pipeline created for a render pass that does not exist")
	}
	for _, stage := range info.PStages {
		if _, ok := d.live[unsafe.Pointer(stage.Module)]; !ok {
			d.violate("pipeline stage uses a shader module that does not exist")
		}
	}
	return vk.Pipeline(d.add(KindPipeline)), nil
}

func (d *Driver) DestroyPipeline(pipeline vk.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(pipeline), KindPipeline)
}

func (d *Driver) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vk.DescriptorSetLayout(d.add(KindDescriptorSetLayout)), nil
}

func (d *Driver) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(unsafe.Pointer(layout), KindDescriptorSetLayout)
}

func (d *Driver) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.add(KindDescriptorPool)
	d.poolMaxSets[h] = info.MaxSets
	return vk.DescriptorPool(h), nil
}

func (d *Driver) DestroyDescriptorPool(pool vk.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := unsafe.Pointer(pool)
	if d.remove(h, KindDescriptorPool) {
		delete(d.poolMaxSets, h)
		delete(d.descriptorSets, h)
	}
}

func (d *Driver) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := unsafe.Pointer(pool)
	if _, ok := d.live[unsafe.Pointer(layout)]; !ok {
		d.violate("descriptor set allocated with a layout that does not exist")
	}
	if d.descriptorSets[h] >= d.poolMaxSets[h] {
		return nil, vulkan.ResultError("vkAllocateDescriptorSets", vk.ErrorOutOfPoolMemory)
	}
	d.descriptorSets[h]++
	// sets die with their pool, they are not tracked on their own
	return vk.DescriptorSet(newHandle()), nil
}

func (d *Driver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.descriptorWrites += len(writes)
}

func (d *Driver) CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vk.CommandPool(d.add(KindCommandPool)), nil
}

// DestroyCommandPool frees every command buffer still allocated from pool.
func (d *Driver) DestroyCommandPool(pool vk.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := unsafe.Pointer(pool)
	if !d.remove(h, KindCommandPool) {
		return
	}
	for cbh, cb := range d.commandBuffers {
		if cb.pool == h {
			if cb.state == cbPending {
				d.violate("command pool destroyed while command buffer %p is pending", cbh)
			}
			delete(d.commandBuffers, cbh)
			delete(d.live, cbh)
		}
	}
}

func (d *Driver) AllocateCommandBuffers(pool vk.CommandPool, level vk.CommandBufferLevel, count uint32) ([]vk.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	if _, ok := d.live[unsafe.Pointer(pool)]; !ok {
		d.violate("command buffers allocated from a pool that does not exist")
	}
	out := make([]vk.CommandBuffer, count)
	for i := range out {
		h := d.add(KindCommandBuffer)
		d.commandBuffers[h] = &commandBuffer{pool: unsafe.Pointer(pool)}
		out[i] = vk.CommandBuffer(h)
	}
	return out, nil
}

func (d *Driver) FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range buffers {
		h := unsafe.Pointer(b)
		if cb, ok := d.commandBuffers[h]; ok && cb.state == cbPending {
			d.violate("command buffer %p freed while pending", h)
		}
		if d.remove(h, KindCommandBuffer) {
			delete(d.commandBuffers, h)
		}
	}
}

func (d *Driver) commandBuffer(b vk.CommandBuffer) *commandBuffer {
	cb, ok := d.commandBuffers[unsafe.Pointer(b)]
	if !ok {
		d.violate("use of unknown command buffer %p", unsafe.Pointer(b))
		return &commandBuffer{}
	}
	return cb
}

func (d *Driver) BeginCommandBuffer(b vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.commandBuffer(b)
	if cb.state == cbPending {
		d.violate("command buffer %p begun while the GPU still uses it", unsafe.Pointer(b))
	}
	if cb.state == cbRecording {
		d.violate("command buffer %p begun twice", unsafe.Pointer(b))
	}
	cb.state = cbRecording
	cb.flags = flags
	cb.commands = nil
	cb.ops = nil
	return nil
}

func (d *Driver) EndCommandBuffer(b vk.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.commandBuffer(b)
	if cb.state != cbRecording {
		d.violate("command buffer %p ended without begin", unsafe.Pointer(b))
	}
	cb.state = cbExecutable
	return nil
}

func (d *Driver) ResetCommandBuffer(b vk.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.commandBuffer(b)
	if cb.state == cbPending {
		d.violate("command buffer %p reset while the GPU still uses it", unsafe.Pointer(b))
	}
	cb.state = cbInitial
	cb.commands = nil
	cb.ops = nil
	return nil
}

func (d *Driver) CreateSemaphore() (vk.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.add(KindSemaphore)
	d.semaphores[h] = false
	return vk.Semaphore(h), nil
}

func (d *Driver) DestroySemaphore(semaphore vk.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remove(unsafe.Pointer(semaphore), KindSemaphore) {
		delete(d.semaphores, unsafe.Pointer(semaphore))
	}
}

func (d *Driver) CreateFence(signaled bool) (vk.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.add(KindFence)
	d.fences[h] = &fence{signaled: signaled}
	return vk.Fence(h), nil
}

func (d *Driver) DestroyFence(f vk.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remove(unsafe.Pointer(f), KindFence) {
		delete(d.fences, unsafe.Pointer(f))
	}
}

func (d *Driver) WaitForFence(f vk.Fence, timeout uint64) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallWaitFence)
	h := unsafe.Pointer(f)
	state, ok := d.fences[h]
	if !ok {
		d.violate("wait on unknown fence")
		return vk.ErrorDeviceLost
	}
	if len(d.FenceResults) > 0 {
		result := d.FenceResults[0]
		d.FenceResults = d.FenceResults[1:]
		if result != vk.Success {
			return result
		}
	} else if state.pending && d.Hold {
		return vk.Timeout
	}
	state.pending = false
	state.signaled = true
	for _, cb := range d.commandBuffers {
		if cb.state == cbPending && cb.fence == h {
			cb.state = cbExecutable
			cb.fence = nil
		}
	}
	return vk.Success
}

func (d *Driver) ResetFence(f vk.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallResetFence)
	state, ok := d.fences[unsafe.Pointer(f)]
	if !ok {
		d.violate("reset of unknown fence")
		return nil
	}
	if state.pending {
		d.violate("fence %p reset while work is pending on it", unsafe.Pointer(f))
	}
	state.signaled = false
	return nil
}

func (d *Driver) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, f vk.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	d.calls = append(d.calls, CallSubmit)

	fh := unsafe.Pointer(f)
	var state *fence
	if f != vk.NullFence {
		var ok bool
		if state, ok = d.fences[fh]; !ok {
			d.violate("submit with unknown fence")
		} else if state.signaled || state.pending {
			d.violate("submit with fence %p that was not reset", fh)
		}
	}

	for _, submit := range submits {
		for _, s := range submit.PWaitSemaphores {
			if !d.semaphores[unsafe.Pointer(s)] {
				d.violate("submit waits on semaphore %p that nothing signals", unsafe.Pointer(s))
			}
			d.semaphores[unsafe.Pointer(s)] = false
		}
		for _, b := range submit.PCommandBuffers {
			cb := d.commandBuffer(b)
			if cb.state == cbPending && cb.flags&vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit) == 0 {
				d.violate("command buffer %p submitted again while pending", unsafe.Pointer(b))
			} else if cb.state != cbExecutable && cb.state != cbPending {
				d.violate("command buffer %p submitted without being recorded", unsafe.Pointer(b))
			}
			// the GPU is instant: run copies now
			for _, op := range cb.ops {
				op()
			}
			if state != nil {
				cb.state = cbPending
				cb.fence = fh
			}
		}
		for _, s := range submit.PSignalSemaphores {
			d.semaphores[unsafe.Pointer(s)] = true
		}
	}

	if state != nil {
		// even an instant GPU needs the fence waited before reuse
		state.pending = true
	}
	return nil
}

func (d *Driver) QueueWaitIdle(queue vk.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, CallWaitIdle)
	d.finishAll()
	return nil
}

func (d *Driver) record(b vk.CommandBuffer, c Command) *commandBuffer {
	cb := d.commandBuffer(b)
	if cb.state != cbRecording {
		d.violate("%s recorded outside begin/end", c.Name)
	}
	cb.commands = append(cb.commands, c)
	return cb
}

func (d *Driver) CmdBeginRenderPass(b vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[unsafe.Pointer(info.Framebuffer)]; !ok {
		d.violate("render pass begun on a framebuffer that does not exist")
	}
	d.record(b, Command{Name: "BeginRenderPass", Handle: unsafe.Pointer(info.Framebuffer)})
}

func (d *Driver) CmdEndRenderPass(b vk.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "EndRenderPass"})
}

func (d *Driver) CmdBindPipeline(b vk.CommandBuffer, pipeline vk.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "BindPipeline", Handle: unsafe.Pointer(pipeline)})
}

func (d *Driver) CmdBindVertexBuffer(b vk.CommandBuffer, buffer vk.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "BindVertexBuffer", Handle: unsafe.Pointer(buffer)})
}

func (d *Driver) CmdBindIndexBuffer(b vk.CommandBuffer, buffer vk.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "BindIndexBuffer", Handle: unsafe.Pointer(buffer)})
}

func (d *Driver) CmdBindDescriptorSets(b vk.CommandBuffer, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{
		Name:           "BindDescriptorSets",
		Handle:         unsafe.Pointer(layout),
		FirstSet:       firstSet,
		SetCount:       len(sets),
		DynamicOffsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (d *Driver) CmdPushConstants(b vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "PushConstants", Handle: unsafe.Pointer(layout), Data: append([]byte(nil), data...)})
}

func (d *Driver) CmdSetViewport(b vk.CommandBuffer, viewport vk.Viewport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "SetViewport", Viewport: viewport})
}

func (d *Driver) CmdSetScissor(b vk.CommandBuffer, scissor vk.Rect2D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "SetScissor", Scissor: scissor})
}

func (d *Driver) CmdSetLineWidth(b vk.CommandBuffer, width float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "SetLineWidth", LineWidth: width})
}

func (d *Driver) CmdDrawIndexed(b vk.CommandBuffer, indexCount, firstIndex uint32, vertexOffset int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "DrawIndexed", IndexCount: indexCount, FirstIndex: firstIndex, VertexOffset: vertexOffset})
}

func (d *Driver) CmdCopyBuffer(b vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.record(b, Command{Name: "CopyBuffer", Handle: unsafe.Pointer(dst)})
	srcH, dstH := unsafe.Pointer(src), unsafe.Pointer(dst)
	cb.ops = append(cb.ops, func() {
		srcMem, ok1 := d.bufferMemory[srcH]
		dstMem, ok2 := d.bufferMemory[dstH]
		if !ok1 || !ok2 {
			d.violate("copy between buffers without memory")
			return
		}
		copy(d.memories[dstMem].data[:size], d.memories[srcMem].data[:size])
	})
}

func (d *Driver) CmdCopyBufferToImage(b vk.CommandBuffer, src vk.Buffer, dst vk.Image, width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "CopyBufferToImage", Handle: unsafe.Pointer(dst)})
}

func (d *Driver) CmdImageBarrier(b vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(b, Command{Name: "ImageBarrier", Handle: unsafe.Pointer(barrier.Image)})
}
