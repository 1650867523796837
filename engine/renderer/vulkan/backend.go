package vulkan

import (
	"bytes"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/engine/platform"
)

// RendererOptions are the init-time knobs of the backend, filled from the
// application config by the engine shell.
type RendererOptions struct {
	ApplicationName   string
	Width             uint32
	Height            uint32
	MaxFramesInFlight uint8
	VSync             bool
	EnableDepth       bool
	EnableValidation  bool
	FenceTimeoutNs    uint64
}

// VulkanRenderer owns the GPU connection and implements FrameSurface for the
// frame scheduler. Everything is created in Initialize and destroyed in
// Shutdown in strict reverse order.
type VulkanRenderer struct {
	platform *platform.Platform
	context  *VulkanContext
	options  RendererOptions

	// One recording buffer per frame slot, reuse gated by the slot's
	// in-flight fence.
	commandBuffers []*VulkanCommandBuffer
}

func New(p *platform.Platform, options RendererOptions) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		options:  options,
		context: &VulkanContext{
			FramebufferWidth:  options.Width,
			FramebufferHeight: options.Height,
			Allocator:         nil,
			Locks:             NewVulkanLockPool(),
		},
	}
}

// Context exposes the GPU connection to the scene layer for resource
// creation. Valid only between Initialize and Shutdown.
func (vr *VulkanRenderer) Context() *VulkanContext {
	return vr.context
}

func (vr *VulkanRenderer) Initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("vulkan loader not available: GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vulkan bindings: %w", err)
	}

	if err := vr.createInstance(); err != nil {
		return err
	}

	if vr.options.EnableValidation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	surface, err := vr.platform.CreateSurface(vr.context.Instance)
	if err != nil {
		return err
	}
	vr.context.Surface = surface

	if err := DeviceCreate(vr.context); err != nil {
		return err
	}

	swapchain, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, SwapchainConfig{
		MaxFramesInFlight: vr.options.MaxFramesInFlight,
		VSync:             vr.options.VSync,
		EnableDepth:       vr.options.EnableDepth,
		FenceTimeoutNs:    vr.options.FenceTimeoutNs,
	}, vk.NullSwapchain)
	if err != nil {
		return err
	}
	vr.context.Swapchain = swapchain

	if err := vr.createCommandBuffers(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized.")
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.options.ApplicationName),
		PEngineName:        VulkanSafeString("Ember Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// InstanceCreateFlagBits: enumerate portability.
		createInfo.Flags |= 1
	}
	if vr.options.EnableValidation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var requiredLayers []string
	if vr.options.EnableValidation {
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := verifyLayerSupport(requiredLayers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		return fmt.Errorf("failed to create vulkan instance: %s", VulkanResultString(res))
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		return err
	}

	core.LogDebug("Vulkan instance created.")
	return nil
}

// verifyLayerSupport checks that every requested instance layer exists, so a
// missing validation layer fails loudly at startup rather than silently.
func verifyLayerSupport(required []string) error {
	var availableCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}
	available := make([]vk.LayerProperties, availableCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableCount, available); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res))
	}

	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			end := bytes.IndexByte(available[i].LayerName[:], 0)
			if end < 0 {
				end = len(available[i].LayerName)
			}
			if name == string(available[i].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required instance layer is missing: %s", name)
		}
	}
	return nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
		return fmt.Errorf("failed to create debug callback: %s", VulkanResultString(res))
	}
	vr.context.debugMessenger = dbg

	core.LogDebug("Vulkan debug callback created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] %s", pLayerPrefix, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] %s", pLayerPrefix, pMessage)
	default:
		core.LogInfo("[%s] %s", pLayerPrefix, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	vr.commandBuffers = make([]*VulkanCommandBuffer, vr.options.MaxFramesInFlight)
	for i := range vr.commandBuffers {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vr.commandBuffers[i] = cb
	}
	return nil
}

// AcquireNextImage waits on the slot's in-flight fence, then acquires the next
// presentable image.
func (vr *VulkanRenderer) AcquireNextImage(slot uint8) (uint32, error) {
	return vr.context.Swapchain.AcquireNextImage(vr.context, slot)
}

// BeginRecording resets the slot's command buffer and begins a fresh
// recording. Safe because the in-flight fence was already waited on in
// AcquireNextImage.
func (vr *VulkanRenderer) BeginRecording(slot uint8) (*VulkanCommandBuffer, error) {
	cb := vr.commandBuffers[slot]
	if res := vk.ResetCommandBuffer(cb.Handle, 0); res != vk.Success {
		return nil, fmt.Errorf("failed to reset command buffer: %s", VulkanResultString(res))
	}
	cb.Reset()
	if err := cb.Begin(false, false, false); err != nil {
		return nil, err
	}
	return cb, nil
}

func (vr *VulkanRenderer) EndRecording(slot uint8) error {
	return vr.commandBuffers[slot].End()
}

func (vr *VulkanRenderer) SubmitAndPresent(slot uint8, imageIndex uint32) (PresentStatus, error) {
	return vr.context.Swapchain.SubmitAndPresent(vr.context, slot, vr.commandBuffers[slot], imageIndex)
}

// Rebuild replaces the swapchain for a new drawable extent. The extent must be
// non-degenerate; the scheduler blocks on minimize before calling this.
func (vr *VulkanRenderer) Rebuild(width, height uint32) error {
	replacement, err := vr.context.Swapchain.Recreate(vr.context, width, height)
	if err != nil {
		return err
	}
	vr.context.Swapchain = replacement
	vr.context.FramebufferWidth = replacement.Extent.Width
	vr.context.FramebufferHeight = replacement.Extent.Height
	core.LogDebug("swapchain rebuilt at %dx%d", replacement.Extent.Width, replacement.Extent.Height)
	return nil
}

// WaitIdle blocks until the device finishes all queued work. Called before any
// teardown.
func (vr *VulkanRenderer) WaitIdle() {
	if vr.context.Device != nil && vr.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
	}
}

// Shutdown destroys everything in reverse creation order: command buffers,
// swapchain, device, surface, debug callback, instance.
func (vr *VulkanRenderer) Shutdown() {
	vr.WaitIdle()

	for _, cb := range vr.commandBuffers {
		if cb != nil && cb.Handle != nil {
			cb.Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.commandBuffers = nil

	if vr.context.Swapchain != nil {
		vr.context.Swapchain.Destroy(vr.context)
		vr.context.Swapchain = nil
	}

	DeviceDestroy(vr.context)

	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}

	core.LogInfo("Vulkan renderer shut down.")
}
