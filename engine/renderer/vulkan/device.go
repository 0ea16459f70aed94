package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

type DeviceConfig struct {
	ApplicationName  string
	EnableValidation bool
}

// DeviceContext owns the instance, the surface, the chosen physical device
// and the logical device with its queues. Creation runs instance, surface,
// physical device, logical device; Destroy runs the exact reverse.
type DeviceContext struct {
	config DeviceConfig

	Instance      vk.Instance
	debugCallback vk.DebugReportCallback
	Surface       vk.Surface

	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	GraphicsQueue  vk.Queue
	PresentQueue   vk.Queue
	QueueFamilies  QueueFamilyIndices

	Properties  vk.PhysicalDeviceProperties
	Features    vk.PhysicalDeviceFeatures
	DepthFormat vk.Format

	gpuName string
}

// QueueFamilyIndices are the families chosen for graphics and present.
type QueueFamilyIndices struct {
	Graphics    uint32
	Present     uint32
	hasGraphics bool
	hasPresent  bool
}

func (q QueueFamilyIndices) IsComplete() bool {
	return q.hasGraphics && q.hasPresent
}

// Unique returns the distinct family indices, graphics first.
func (q QueueFamilyIndices) Unique() []uint32 {
	if q.Graphics == q.Present {
		return []uint32{q.Graphics}
	}
	return []uint32{q.Graphics, q.Present}
}

// DeviceCandidate is everything the selection needs to know about one
// physical device.
type DeviceCandidate struct {
	Name             string
	Type             vk.PhysicalDeviceType
	QueueFamilies    []vk.QueueFamilyProperties
	PresentSupport   []bool
	Extensions       []string
	Support          *SwapchainSupportInfo
	FillModeNonSolid bool
}

// RequiredDeviceExtensions are enabled on the logical device.
var RequiredDeviceExtensions = []string{vk.KhrSwapchainExtensionName}

var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// NewDeviceContext creates the whole device graph for window. On failure
// everything created so far is destroyed again.
func NewDeviceContext(config DeviceConfig, window SurfaceSource) (*DeviceContext, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}
	dc := &DeviceContext{config: config}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"instance", func() error { return dc.createInstance(window) }},
		{"surface", func() error { return dc.createSurface(window) }},
		{"physical device", dc.selectPhysicalDevice},
		{"logical device", dc.createLogicalDevice},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			core.LogError("failed to create %s: %s", step.name, err)
			dc.Destroy()
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return dc, nil
}

// FindQueueFamilies prefers one family that can both draw and present,
// otherwise it takes the first of each.
func FindQueueFamilies(families []vk.QueueFamilyProperties, presentSupport []bool) QueueFamilyIndices {
	var indices QueueFamilyIndices
	for i, family := range families {
		graphics := family.QueueCount > 0 && family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		present := i < len(presentSupport) && presentSupport[i]
		if graphics && present {
			return QueueFamilyIndices{Graphics: uint32(i), Present: uint32(i), hasGraphics: true, hasPresent: true}
		}
		if graphics && !indices.hasGraphics {
			indices.Graphics = uint32(i)
			indices.hasGraphics = true
		}
		if present && !indices.hasPresent {
			indices.Present = uint32(i)
			indices.hasPresent = true
		}
	}
	return indices
}

// MissingExtensions returns the entries of required not found in available.
func MissingExtensions(available, required []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[name] = struct{}{}
	}
	var missing []string
	for _, name := range required {
		if _, ok := set[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// EvaluateDevice checks the candidate against the engine requirements and
// returns the queue families to use.
func EvaluateDevice(candidate DeviceCandidate, requiredExtensions []string) (QueueFamilyIndices, error) {
	indices := FindQueueFamilies(candidate.QueueFamilies, candidate.PresentSupport)
	if !indices.IsComplete() {
		return indices, fmt.Errorf("%s: no graphics and present queue families: %w", candidate.Name, core.ErrNoSuitableDevice)
	}
	if missing := MissingExtensions(candidate.Extensions, requiredExtensions); len(missing) > 0 {
		return indices, fmt.Errorf("%s: missing %v: %w", candidate.Name, missing, core.ErrMissingExtension)
	}
	if candidate.Support == nil || len(candidate.Support.Formats) == 0 || len(candidate.Support.PresentModes) == 0 {
		return indices, fmt.Errorf("%s: required swapchain support not present: %w", candidate.Name, core.ErrNoSuitableDevice)
	}
	// the line pipeline draws with VK_POLYGON_MODE_LINE
	if !candidate.FillModeNonSolid {
		return indices, fmt.Errorf("%s: fillModeNonSolid not supported: %w", candidate.Name, core.ErrNoSuitableDevice)
	}
	return indices, nil
}

// DetectDepthFormat returns the first candidate usable as a depth attachment.
func DetectDepthFormat(formatProperties func(vk.Format) vk.FormatProperties) (vk.Format, bool) {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range depthFormatCandidates {
		properties := formatProperties(candidate)
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			return candidate, true
		}
	}
	return vk.FormatUndefined, false
}

func (dc *DeviceContext) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(dc.Instance, &count, nil); res != vk.Success {
		return ResultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNoSuitableDevice)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(dc.Instance, &count, devices); res != vk.Success {
		return ResultError("vkEnumeratePhysicalDevices", res)
	}

	var lastErr error
	selected := -1
	for i, device := range devices {
		candidate, properties, features, err := describeDevice(device, dc.Surface)
		if err != nil {
			lastErr = err
			continue
		}
		indices, err := EvaluateDevice(candidate, RequiredDeviceExtensions)
		if err != nil {
			core.LogInfo("Skipping device: %s", err)
			lastErr = err
			continue
		}
		// Any suitable device will do, a discrete one wins.
		if selected >= 0 && candidate.Type != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}
		selected = i
		dc.PhysicalDevice = device
		dc.QueueFamilies = indices
		dc.Properties = properties
		dc.Features = features
		dc.gpuName = candidate.Name
		if candidate.Type == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if selected < 0 {
		if lastErr == nil {
			lastErr = core.ErrNoSuitableDevice
		}
		return lastErr
	}

	core.LogInfo("Selected device: '%s'.", dc.gpuName)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(dc.Properties.ApiVersion).Major(),
		vk.Version(dc.Properties.ApiVersion).Minor(),
		vk.Version(dc.Properties.ApiVersion).Patch(),
	)
	core.LogDebug("Graphics Family Index: %d", dc.QueueFamilies.Graphics)
	core.LogDebug("Present Family Index:  %d", dc.QueueFamilies.Present)

	depth, ok := DetectDepthFormat(func(format vk.Format) vk.FormatProperties {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(dc.PhysicalDevice, format, &properties)
		properties.Deref()
		return properties
	})
	if !ok {
		return fmt.Errorf("no supported depth format: %w", core.ErrNoSuitableDevice)
	}
	dc.DepthFormat = depth
	core.LogInfo("Physical device selected.")
	return nil
}

func describeDevice(device vk.PhysicalDevice, surface vk.Surface) (DeviceCandidate, vk.PhysicalDeviceProperties, vk.PhysicalDeviceFeatures, error) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()

	candidate := DeviceCandidate{
		Name:             CString(properties.DeviceName[:]),
		Type:             properties.DeviceType,
		FillModeNonSolid: features.FillModeNonSolid == vk.True,
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	candidate.QueueFamilies = make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, candidate.QueueFamilies)
	candidate.PresentSupport = make([]bool, familyCount)
	for i := range candidate.QueueFamilies {
		candidate.QueueFamilies[i].Deref()
		var supported vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supported); res != vk.Success {
			return candidate, properties, features, ResultError("vkGetPhysicalDeviceSurfaceSupportKHR", res)
		}
		candidate.PresentSupport[i] = supported == vk.True
	}

	var extensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, nil); res != vk.Success {
		return candidate, properties, features, ResultError("vkEnumerateDeviceExtensionProperties", res)
	}
	extensions := make([]vk.ExtensionProperties, extensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, extensions); res != vk.Success {
		return candidate, properties, features, ResultError("vkEnumerateDeviceExtensionProperties", res)
	}
	for i := range extensions {
		extensions[i].Deref()
		candidate.Extensions = append(candidate.Extensions, CString(extensions[i].ExtensionName[:]))
	}

	support, err := QuerySurfaceSupport(device, surface)
	if err != nil {
		return candidate, properties, features, err
	}
	candidate.Support = support
	return candidate, properties, features, nil
}

func (dc *DeviceContext) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	families := dc.QueueFamilies.Unique()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		FillModeNonSolid: vk.True,
	}
	if dc.Features.WideLines == vk.True {
		deviceFeatures.WideLines = vk.True
	}

	extensionNames := append([]string(nil), RequiredDeviceExtensions...)
	// MoltenVK exposes the portability subset and requires it to be enabled.
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(dc.PhysicalDevice, "", &count, nil); res == vk.Success && count > 0 {
		available := make([]vk.ExtensionProperties, count)
		vk.EnumerateDeviceExtensionProperties(dc.PhysicalDevice, "", &count, available)
		for i := range available {
			available[i].Deref()
			if CString(available[i].ExtensionName[:]) == "VK_KHR_portability_subset" {
				core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
				extensionNames = append(extensionNames, "VK_KHR_portability_subset")
				break
			}
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(dc.PhysicalDevice, &deviceCreateInfo, nil, &device); res != vk.Success {
		return ResultError("vkCreateDevice", res)
	}
	dc.Device = device
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(dc.Device, dc.QueueFamilies.Graphics, 0, &dc.GraphicsQueue)
	vk.GetDeviceQueue(dc.Device, dc.QueueFamilies.Present, 0, &dc.PresentQueue)
	core.LogInfo("Queues obtained.")
	return nil
}

// GpuName is the name of the selected physical device.
func (dc *DeviceContext) GpuName() string {
	return dc.gpuName
}

// Destroy releases the device graph in reverse creation order. It is safe
// to call on a partially created context.
func (dc *DeviceContext) Destroy() {
	dc.GraphicsQueue = nil
	dc.PresentQueue = nil

	if dc.Device != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(dc.Device, nil)
		dc.Device = nil
	}
	// Physical devices are not destroyed.
	dc.PhysicalDevice = nil

	if dc.Surface != vk.NullSurface {
		vk.DestroySurface(dc.Instance, dc.Surface, nil)
		dc.Surface = vk.NullSurface
	}
	if dc.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(dc.Instance, dc.debugCallback, nil)
		dc.debugCallback = vk.NullDebugReportCallback
	}
	if dc.Instance != nil {
		vk.DestroyInstance(dc.Instance, nil)
		dc.Instance = nil
	}
}
