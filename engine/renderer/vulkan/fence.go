package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

// NewFence creates a fence, signaled when createSignaled is set. In-flight
// fences start signaled so the very first frame's wait never blocks.
func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		return nil, fmt.Errorf("failed to create fence: %s", VulkanResultString(res))
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals or the timeout expires. A timeout is
// treated as device-lost territory by the caller; this function only reports
// it.
func (vf *VulkanFence) Wait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}

	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogError("fence wait timed out after %d ns", timeoutNs)
		return core.ErrDeviceLost
	case vk.ErrorDeviceLost:
		return core.ErrDeviceLost
	default:
		return fmt.Errorf("fence wait failed: %s", VulkanResultString(result))
	}
}

func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return fmt.Errorf("failed to reset fence: %s", VulkanResultString(res))
	}
	vf.IsSignaled = false
	return nil
}
