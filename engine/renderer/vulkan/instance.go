package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// SurfaceSource is the part of the native window the device needs: the
// instance extensions for presentation and the surface itself.
// *glfw.Window satisfies it.
type SurfaceSource interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// loadVulkan resolves the loader entry point through GLFW. It must run once
// before any other vk call.
func loadVulkan() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}
	return nil
}

func (dc *DeviceContext) createInstance(window SurfaceSource) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(dc.config.ApplicationName),
		PEngineName:        VulkanSafeString("VulkanMonkey"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if dc.config.EnableValidation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required instance extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var layers []string
	if dc.config.EnableValidation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := availableLayers()
		if err != nil {
			return err
		}
		if missing := MissingExtensions(available, []string{validationLayerName}); len(missing) > 0 {
			return fmt.Errorf("required validation layer %v is missing: %w", missing, core.ErrMissingExtension)
		}
		core.LogInfo("All required validation layers are present.")
		layers = []string{validationLayerName}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return ResultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(instance); err != nil {
		return err
	}
	dc.Instance = instance
	core.LogInfo("Vulkan Instance created.")

	if dc.config.EnableValidation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(dc.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return ResultError("vkCreateDebugReportCallbackEXT", res)
		}
		dc.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func availableLayers() ([]string, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, ResultError("vkEnumerateInstanceLayerProperties", res)
	}
	properties := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, properties); res != vk.Success {
		return nil, ResultError("vkEnumerateInstanceLayerProperties", res)
	}
	names := make([]string, 0, count)
	for i := range properties {
		properties[i].Deref()
		names = append(names, CString(properties[i].LayerName[:]))
	}
	return names, nil
}

func (dc *DeviceContext) createSurface(window SurfaceSource) error {
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(dc.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	dc.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
