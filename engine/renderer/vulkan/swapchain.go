package vulkan

import (
	"fmt"
	stdmath "math"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/engine/math"
)

// PresentStatus is the outcome of a submit-and-present cycle. OutOfDate and
// Suboptimal both mean "rebuild needed"; neither is a hard error.
type PresentStatus int

const (
	PresentSuccess PresentStatus = iota
	PresentSuboptimal
	PresentOutOfDate
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// SwapchainConfig carries the init-time constants of the presentation
// surface. Passed explicitly so tests can run with a different frame count or
// forced fallbacks.
type SwapchainConfig struct {
	MaxFramesInFlight uint8
	VSync             bool
	EnableDepth       bool
	FenceTimeoutNs    uint64
}

// VulkanSyncSlot is one frame slot's synchronization triple. The
// image-available and render-finished semaphores order GPU work without CPU
// involvement; the in-flight fence is the sole mechanism gating CPU reuse of
// the slot's command buffer and per-frame resources.
type VulkanSyncSlot struct {
	ImageAvailable vk.Semaphore
	RenderFinished vk.Semaphore
	InFlight       *VulkanFence
}

// VulkanSwapchain owns the presentable images, their views and framebuffers,
// the shared render target description, and the per-slot sync objects. It is
// replaced wholesale on resize or staleness, never mutated in place; callers
// hold a reference only until the next rebuild.
type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	Renderpass *VulkanRenderpass

	// Framebuffers used for on-screen rendering, one per image.
	Framebuffers []*VulkanFramebuffer

	// One sync triple per frame slot.
	Slots []VulkanSyncSlot

	config SwapchainConfig
}

// SwapchainCreate builds a fresh presentation surface for the given drawable
// extent. When an old swapchain handle is passed, the platform may reuse its
// resources during the transition.
func SwapchainCreate(context *VulkanContext, width, height uint32, config SwapchainConfig, oldSwapchain vk.Swapchain) (*VulkanSwapchain, error) {
	return createSwapchain(context, width, height, config, oldSwapchain)
}

// Recreate tears the swapchain down and builds its replacement in place,
// handing the old handle to the platform.
func (vs *VulkanSwapchain) Recreate(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}

	oldHandle := vs.Handle
	replacement, err := createSwapchain(context, width, height, vs.config, oldHandle)
	if err != nil {
		return nil, err
	}
	vs.destroy(context, true)
	return replacement, nil
}

// Destroy tears everything down in the strict reverse-dependency order the
// API requires: image views, swapchain handle, framebuffers, depth image,
// render pass, then the per-slot fences and semaphores. This is the only
// teardown path; fields are never destroyed piecemeal.
func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	vs.destroy(context, false)
}

func (vs *VulkanSwapchain) destroy(context *VulkanContext, handleReused bool) {
	vk.DeviceWaitIdle(context.Device.LogicalDevice)

	// Only the views are destroyed, not the images; those are owned by the
	// swapchain handle.
	for i := 0; i < int(vs.ImageCount); i++ {
		vk.DestroyImageView(context.Device.LogicalDevice, vs.Views[i], context.Allocator)
	}
	vs.Views = nil

	// The old handle must be destroyed even when it seeded the replacement.
	_ = handleReused
	vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	vs.Handle = vk.NullSwapchain

	for _, fb := range vs.Framebuffers {
		fb.Destroy(context)
	}
	vs.Framebuffers = nil

	if vs.DepthAttachment != nil {
		vs.DepthAttachment.Destroy(context)
		vs.DepthAttachment = nil
	}

	vs.Renderpass.Destroy(context)

	for i := range vs.Slots {
		vs.Slots[i].InFlight.Destroy(context)
		if vs.Slots[i].RenderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, vs.Slots[i].RenderFinished, context.Allocator)
			vs.Slots[i].RenderFinished = vk.NullSemaphore
		}
		if vs.Slots[i].ImageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, vs.Slots[i].ImageAvailable, context.Allocator)
			vs.Slots[i].ImageAvailable = vk.NullSemaphore
		}
	}
	vs.Slots = nil
}

// AcquireNextImage waits on the slot's in-flight fence, then asks the
// platform for the next presentable image, signaling the slot's
// image-available semaphore on completion. Reports ErrSwapchainOutOfDate
// without mutating any state when the surface is stale.
func (vs *VulkanSwapchain) AcquireNextImage(context *VulkanContext, slot uint8) (uint32, error) {
	// The fence being free is what allows this slot's resources to be
	// touched again by the CPU.
	if err := vs.Slots[slot].InFlight.Wait(context, vs.config.FenceTimeoutNs); err != nil {
		return 0, err
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(
		context.Device.LogicalDevice,
		vs.Handle,
		vs.config.FenceTimeoutNs,
		vs.Slots[slot].ImageAvailable,
		vk.NullFence,
		&imageIndex,
	)

	switch result {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost:
		return 0, core.ErrDeviceLost
	default:
		return 0, fmt.Errorf("failed to acquire swapchain image: %s", VulkanResultString(result))
	}
}

// SubmitAndPresent resets the slot's fence, submits the command buffer to the
// graphics queue (GPU-ordered after acquisition, before presentation via the
// slot's semaphore pair), then presents the image on the present queue.
func (vs *VulkanSwapchain) SubmitAndPresent(context *VulkanContext, slot uint8, commandBuffer *VulkanCommandBuffer, imageIndex uint32) (PresentStatus, error) {
	if err := vs.Slots[slot].InFlight.Reset(context); err != nil {
		return PresentSuccess, err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer.Handle},
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.Slots[slot].ImageAvailable},
		// Color attachment writes wait for the image; earlier pipeline
		// stages may run before the semaphore signals.
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vs.Slots[slot].RenderFinished},
	}

	err := context.Locks.SafeQueueCall(uint32(context.Device.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vs.Slots[slot].InFlight.Handle); res != vk.Success {
			return fmt.Errorf("vkQueueSubmit failed: %s", VulkanResultString(res))
		}
		return nil
	})
	if err != nil {
		return PresentSuccess, err
	}
	commandBuffer.UpdateSubmitted()

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.Slots[slot].RenderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var presentResult vk.Result
	err = context.Locks.SafeQueueCall(uint32(context.Device.PresentQueueIndex), func() error {
		presentResult = vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
		return nil
	})
	if err != nil {
		return PresentSuccess, err
	}

	switch presentResult {
	case vk.Success:
		return PresentSuccess, nil
	case vk.Suboptimal:
		return PresentSuboptimal, nil
	case vk.ErrorOutOfDate:
		return PresentOutOfDate, nil
	case vk.ErrorDeviceLost:
		return PresentSuccess, core.ErrDeviceLost
	default:
		return PresentSuccess, fmt.Errorf("vkQueuePresent failed: %s", VulkanResultString(presentResult))
	}
}

func (vs *VulkanSwapchain) MaxFramesInFlight() uint8 {
	return vs.config.MaxFramesInFlight
}

func createSwapchain(context *VulkanContext, width, height uint32, config SwapchainConfig, oldSwapchain vk.Swapchain) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{
		config: config,
	}
	support := &context.Device.SwapchainSupport

	swapchain.ImageFormat = chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes, config.VSync)
	swapchain.Extent = chooseExtent(width, height, &support.Capabilities)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     oldSwapchain,
	}

	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		return nil, fmt.Errorf("failed to create swapchain: %s", VulkanResultString(res))
	}
	swapchain.Handle = swapchainHandle

	// Images
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to count swapchain images: %s", VulkanResultString(res))
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images); res != vk.Success {
		return nil, fmt.Errorf("failed to get swapchain images: %s", VulkanResultString(res))
	}

	// Every in-flight frame slot must be able to occupy a distinct image.
	if uint32(config.MaxFramesInFlight) > swapchain.ImageCount {
		return nil, fmt.Errorf("platform provided %d swapchain images, fewer than the %d frame slots requested",
			swapchain.ImageCount, config.MaxFramesInFlight)
	}

	// Views
	for i := 0; i < int(swapchain.ImageCount); i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &swapchain.Views[i]); res != vk.Success {
			return nil, fmt.Errorf("failed to create image view: %s", VulkanResultString(res))
		}
	}

	// Depth resources
	if config.EnableDepth {
		if !DeviceDetectDepthFormat(context.Device) {
			context.Device.DepthFormat = vk.FormatUndefined
			return nil, fmt.Errorf("failed to find a supported depth format")
		}
		depthAttachment, err := ImageCreate(
			context,
			swapchain.Extent.Width,
			swapchain.Extent.Height,
			context.Device.DepthFormat,
			vk.ImageTilingOptimal,
			vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			true,
			vk.ImageAspectFlags(vk.ImageAspectDepthBit))
		if err != nil {
			return nil, err
		}
		swapchain.DepthAttachment = depthAttachment
	}

	// Render target description.
	rp, err := RenderpassCreate(
		context,
		swapchain.ImageFormat.Format,
		0, 0, float32(swapchain.Extent.Width), float32(swapchain.Extent.Height),
		0.0, 0.0, 0.2, 1.0,
		1.0,
		0,
		config.EnableDepth)
	if err != nil {
		return nil, err
	}
	swapchain.Renderpass = rp

	// One framebuffer per image, bound to the shared render pass.
	swapchain.Framebuffers = make([]*VulkanFramebuffer, swapchain.ImageCount)
	for i := 0; i < int(swapchain.ImageCount); i++ {
		attachments := []vk.ImageView{swapchain.Views[i]}
		if swapchain.DepthAttachment != nil {
			attachments = append(attachments, swapchain.DepthAttachment.View)
		}
		fb, err := FramebufferCreate(context, rp, swapchain.Extent.Width, swapchain.Extent.Height, attachments)
		if err != nil {
			return nil, err
		}
		swapchain.Framebuffers[i] = fb
	}

	// Sync triples, fences created signaled so the first wait never blocks.
	swapchain.Slots = make([]VulkanSyncSlot, config.MaxFramesInFlight)
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	for i := range swapchain.Slots {
		if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &swapchain.Slots[i].ImageAvailable); res != vk.Success {
			return nil, fmt.Errorf("failed to create image-available semaphore: %s", VulkanResultString(res))
		}
		if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &swapchain.Slots[i].RenderFinished); res != vk.Success {
			return nil, fmt.Errorf("failed to create render-finished semaphore: %s", VulkanResultString(res))
		}
		fence, err := NewFence(context, true)
		if err != nil {
			return nil, err
		}
		swapchain.Slots[i].InFlight = fence
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, %d frame slots.",
		swapchain.Extent.Width, swapchain.Extent.Height, swapchain.ImageCount, config.MaxFramesInFlight)

	return swapchain, nil
}

// chooseSurfaceFormat prefers 8-bit sRGB with the sRGB-nonlinear colorspace
// and falls back to whatever the platform lists first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode prefers mailbox (low-latency triple buffering) unless
// vsync is forced; FIFO is the only mode guaranteed to exist.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(width, height uint32, capabilities *vk.SurfaceCapabilities) vk.Extent2D {
	if capabilities.CurrentExtent.Width != stdmath.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  math.Clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: math.Clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}
