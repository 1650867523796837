package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

// VulkanDevice bundles the physical device selection with the logical device
// built from it. Exactly one graphics-capable and one present-capable queue
// family are resolved before any dependent object is created.
type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport VulkanSwapchainSupportInfo

	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type vulkanQueueFamilyInfo struct {
	graphicsFamilyIndex int32
	presentFamilyIndex  int32
}

// DeviceCreate selects a physical device, creates the logical device with the
// required queues and the graphics command pool. Selection takes the first
// device that meets the requirements; there is no scoring or ranking. That is
// a documented limitation, not an accident.
func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}

	device := context.Device
	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	presentSharesGraphicsQueue := device.GraphicsQueueIndex == device.PresentQueueIndex
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if !presentSharesGraphicsQueue {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if portabilitySubsetRequired(device.PhysicalDevice) {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice); res != vk.Success {
		core.LogError("vkCreateDevice failed: %s", VulkanResultString(res))
		return core.ErrDeviceCreationFailed
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	context.Locks.SetQueueFamily(uint32(device.GraphicsQueueIndex))
	context.Locks.SetQueueFamily(uint32(device.PresentQueueIndex))
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &device.GraphicsCommandPool); res != vk.Success {
		return fmt.Errorf("failed to create graphics command pool: %s", VulkanResultString(res))
	}
	core.LogInfo("Graphics command pool created.")

	return nil
}

// MinUniformBufferOffsetAlignment reports the device's minimum alignment for
// dynamic uniform offsets. Used to pad per-instance uniform strides.
func (device *VulkanDevice) MinUniformBufferOffsetAlignment() vk.DeviceSize {
	device.Properties.Limits.Deref()
	return vk.DeviceSize(device.Properties.Limits.MinUniformBufferOffsetAlignment)
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device

	device.GraphicsQueue = nil
	device.PresentQueue = nil

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
}

// DeviceQuerySwapchainSupport fills supportInfo with the surface
// capabilities, formats and present modes of the given device. Called at
// selection time and again before every swapchain rebuild.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return fmt.Errorf("failed to get surface capabilities: %s", VulkanResultString(res))
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return fmt.Errorf("failed to count surface formats: %s", VulkanResultString(res))
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res))
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return fmt.Errorf("failed to count present modes: %s", VulkanResultString(res))
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return fmt.Errorf("failed to get present modes: %s", VulkanResultString(res))
		}
	}
	return nil
}

// DeviceDetectDepthFormat picks the first depth format with depth-stencil
// attachment support, preferring the higher precision candidates.
func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if (vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&flags) == flags ||
			(vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags) == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func selectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %s", VulkanResultString(res))
	}
	if physicalDeviceCount == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return core.ErrNoCapableDevice
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %s", VulkanResultString(res))
	}

	for _, candidate := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(candidate, &features)

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)

		queueInfo, err := deviceMeetsRequirements(candidate, context.Surface, &context.Device.SwapchainSupport)
		if err != nil {
			core.LogDebug("Device '%s' skipped: %s", vk.ToString(properties.DeviceName[:]), err)
			continue
		}

		core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}
		core.LogInfo(
			"GPU driver version: %d.%d.%d",
			vk.Version(properties.DriverVersion).Major(),
			vk.Version(properties.DriverVersion).Minor(),
			vk.Version(properties.DriverVersion).Patch(),
		)

		context.Device.PhysicalDevice = candidate
		context.Device.GraphicsQueueIndex = queueInfo.graphicsFamilyIndex
		context.Device.PresentQueueIndex = queueInfo.presentFamilyIndex
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory

		core.LogDebug("Graphics family index: %d", queueInfo.graphicsFamilyIndex)
		core.LogDebug("Present family index:  %d", queueInfo.presentFamilyIndex)
		return nil
	}

	core.LogError("No physical devices were found which meet the requirements.")
	return core.ErrNoCapableDevice
}

// deviceMeetsRequirements checks a candidate device against the mandatory
// requirements: a graphics queue family, a present-capable family for the
// surface, the swapchain extension, and at least one surface format and
// present mode.
func deviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, outSwapchainSupport *VulkanSwapchainSupportInfo) (*vulkanQueueFamilyInfo, error) {
	queueInfo := &vulkanQueueFamilyInfo{
		graphicsFamilyIndex: -1,
		presentFamilyIndex:  -1,
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()

		if queueInfo.graphicsFamilyIndex < 0 && vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			queueInfo.graphicsFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent); res != vk.Success {
			return nil, fmt.Errorf("surface support query failed: %s", VulkanResultString(res))
		}
		if queueInfo.presentFamilyIndex < 0 && supportsPresent == vk.True {
			queueInfo.presentFamilyIndex = int32(i)
		}
	}

	if queueInfo.graphicsFamilyIndex < 0 || queueInfo.presentFamilyIndex < 0 {
		return nil, core.ErrNoCapableQueueFamily
	}

	if !deviceSupportsExtension(device, vk.KhrSwapchainExtensionName) {
		return nil, fmt.Errorf("required extension %s not supported", vk.KhrSwapchainExtensionName)
	}

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return nil, err
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		return nil, fmt.Errorf("required swapchain support not present")
	}

	return queueInfo, nil
}

func deviceSupportsExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func portabilitySubsetRequired(device vk.PhysicalDevice) bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	return deviceSupportsExtension(device, "VK_KHR_portability_subset")
}
