package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

// VulkanContext owns the GPU connection: instance, surface, device, and the
// allocation primitives every other wrapper in this package depends on. It is
// created once at startup and destroyed last, in strict reverse-dependency
// order (see VulkanRenderer.Shutdown).
type VulkanContext struct {
	// The framebuffer's current width and height.
	FramebufferWidth  uint32
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain *VulkanSwapchain

	// Serializes access to the graphics and present queues.
	Locks *VulkanLockPool
}

// FindMemoryIndex returns the index of a device memory type that matches both
// the type filter and the requested property flags, or -1 when none does.
func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

// CreateBuffer allocates a buffer and backing device memory of a type
// satisfying both the buffer's requirements and the requested property flags
// (host-visible vs device-local). The two handles are bound before returning.
func (vc *VulkanContext) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, memoryProperties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(vc.Device.LogicalDevice, &bufferInfo, vc.Allocator, &buffer); res != vk.Success {
		return vk.NullBuffer, vk.NullDeviceMemory, fmt.Errorf("failed to create buffer: %s", VulkanResultString(res))
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vc.Device.LogicalDevice, buffer, &requirements)
	requirements.Deref()

	memoryIndex := vc.FindMemoryIndex(requirements.MemoryTypeBits, uint32(memoryProperties))
	if memoryIndex < 0 {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, core.ErrNoSuitableMemoryType
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.Device.LogicalDevice, &allocInfo, vc.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, fmt.Errorf("failed to allocate %d bytes of device memory: %s", size, VulkanResultString(res))
	}

	if res := vk.BindBufferMemory(vc.Device.LogicalDevice, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(vc.Device.LogicalDevice, memory, vc.Allocator)
		vk.DestroyBuffer(vc.Device.LogicalDevice, buffer, vc.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, fmt.Errorf("failed to bind buffer memory: %s", VulkanResultString(res))
	}

	return buffer, memory, nil
}
