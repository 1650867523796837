package core

import (
	"errors"
)

// Fatal, unrecoverable conditions. These terminate the render loop.
var (
	ErrNoCapableDevice      = errors.New("no Vulkan device meets the engine requirements")
	ErrNoCapableQueueFamily = errors.New("no graphics or present capable queue family found")
	ErrDeviceCreationFailed = errors.New("logical device creation failed")
	ErrNoSuitableMemoryType = errors.New("no device memory type satisfies the requested properties")
	ErrDeviceLost           = errors.New("device lost")
)

// Transient, expected conditions. Handled locally by rebuild-and-retry and
// never surfaced to the user.
var (
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
)

// Caller misuse. These indicate a bug in the caller, not a runtime condition
// to recover from.
var (
	ErrFrameAlreadyStarted = errors.New("begin frame called while a frame is already recording")
	ErrFrameNotStarted     = errors.New("frame operation called while no frame is recording")
	ErrRenderPassOpen      = errors.New("render pass already open on this command buffer")
	ErrRenderPassNotOpen   = errors.New("no render pass open on this command buffer")
	ErrBufferNotMapped     = errors.New("buffer is not mapped")
	ErrBufferOutOfRange    = errors.New("write exceeds buffer size")
	ErrUnknownBinding      = errors.New("binding not declared by the descriptor set layout")
	ErrBindingTypeMismatch = errors.New("resource type does not match the layout binding")
	ErrIncompleteWrite     = errors.New("descriptor writer did not supply every layout binding")
)

// Resource exhaustion. Returned as a typed error so the caller can decide to
// enlarge the budget or reject the request.
var (
	ErrDescriptorPoolExhausted = errors.New("descriptor pool budget exhausted")
)
