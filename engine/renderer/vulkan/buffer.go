package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/engine/math"
)

// VulkanBuffer wraps a device-memory-backed buffer sized to hold
// instanceCount instances, each padded to the device's minimum offset
// alignment. Mapping is explicit: Map, Write, Flush, Unmap. Writes are bounds
// checked against the buffer's byte length.
type VulkanBuffer struct {
	Handle        vk.Buffer
	Memory        vk.DeviceMemory
	TotalSize     vk.DeviceSize
	InstanceSize  vk.DeviceSize
	InstanceCount uint32
	AlignmentSize vk.DeviceSize
	Usage         vk.BufferUsageFlags
	MemoryFlags   vk.MemoryPropertyFlags
	ID            core.ResourceID

	mapped unsafe.Pointer
}

// GetAlignment rounds instanceSize up to the next multiple of
// minOffsetAlignment. An alignment of zero or one leaves the size unchanged.
func GetAlignment(instanceSize, minOffsetAlignment vk.DeviceSize) vk.DeviceSize {
	return math.AlignUp(instanceSize, minOffsetAlignment)
}

func NewBuffer(
	context *VulkanContext,
	instanceSize vk.DeviceSize,
	instanceCount uint32,
	usage vk.BufferUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	minOffsetAlignment vk.DeviceSize,
) (*VulkanBuffer, error) {
	alignmentSize := GetAlignment(instanceSize, minOffsetAlignment)
	totalSize := alignmentSize * vk.DeviceSize(instanceCount)

	handle, memory, err := context.CreateBuffer(totalSize, usage, memoryFlags)
	if err != nil {
		return nil, err
	}

	return &VulkanBuffer{
		Handle:        handle,
		Memory:        memory,
		TotalSize:     totalSize,
		InstanceSize:  instanceSize,
		InstanceCount: instanceCount,
		AlignmentSize: alignmentSize,
		Usage:         usage,
		MemoryFlags:   memoryFlags,
		ID:            core.NewResourceID(),
	}, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.mapped != nil {
		vb.Unmap(context)
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
}

// Map establishes a persistent host mapping over the whole buffer. Requires
// host-visible memory.
func (vb *VulkanBuffer) Map(context *VulkanContext) error {
	if vb.mapped != nil {
		return nil
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vb.TotalSize, 0, &data); res != vk.Success {
		return fmt.Errorf("failed to map %d bytes: %s", vb.TotalSize, VulkanResultString(res))
	}
	vb.mapped = data
	return nil
}

func (vb *VulkanBuffer) Unmap(context *VulkanContext) {
	if vb.mapped == nil {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	vb.mapped = nil
}

func (vb *VulkanBuffer) IsMapped() bool {
	return vb.mapped != nil
}

// Write copies data into the mapped region at the given byte offset. The
// buffer must already be mapped, and the write must fit inside the buffer's
// declared byte length.
func (vb *VulkanBuffer) Write(data []byte, offset vk.DeviceSize) error {
	if err := vb.checkWrite(vk.DeviceSize(len(data)), offset); err != nil {
		return err
	}
	dst := unsafe.Add(vb.mapped, uintptr(offset))
	vk.Memcopy(dst, data)
	return nil
}

// checkWrite validates a write without touching memory.
func (vb *VulkanBuffer) checkWrite(size, offset vk.DeviceSize) error {
	if vb.mapped == nil {
		return core.ErrBufferNotMapped
	}
	if offset+size > vb.TotalSize {
		return fmt.Errorf("%w: offset %d + size %d > %d", core.ErrBufferOutOfRange, offset, size, vb.TotalSize)
	}
	return nil
}

// Flush makes a written range visible to the device. Mandatory after every
// write to memory allocated without the host-coherent property; without it,
// visibility to the GPU is not guaranteed. A no-op hint on coherent memory.
func (vb *VulkanBuffer) Flush(context *VulkanContext, size, offset vk.DeviceSize) error {
	if vb.MemoryFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		return nil
	}
	mappedRange := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: vb.Memory,
		Offset: offset,
		Size:   size,
	}
	if res := vk.FlushMappedMemoryRanges(context.Device.LogicalDevice, 1, []vk.MappedMemoryRange{mappedRange}); res != vk.Success {
		return fmt.Errorf("failed to flush mapped range: %s", VulkanResultString(res))
	}
	return nil
}

// DescriptorInfo describes one instance-sized slice of the buffer for a
// descriptor write.
func (vb *VulkanBuffer) DescriptorInfo(size, offset vk.DeviceSize) vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: vb.Handle,
		Offset: offset,
		Range:  size,
	}
}

// CopyTo records and submits a single-use transfer of this buffer into dst.
// Used to move staged data into device-local memory; blocks until the copy
// completes.
func (vb *VulkanBuffer) CopyTo(context *VulkanContext, dst *VulkanBuffer, size vk.DeviceSize) error {
	if size > dst.TotalSize || size > vb.TotalSize {
		return fmt.Errorf("%w: copy of %d bytes between buffers of %d and %d", core.ErrBufferOutOfRange, size, vb.TotalSize, dst.TotalSize)
	}

	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	}
	vk.CmdCopyBuffer(cb.Handle, vb.Handle, dst.Handle, 1, []vk.BufferCopy{copyRegion})

	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue, uint32(context.Device.GraphicsQueueIndex))
}
