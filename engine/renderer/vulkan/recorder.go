package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

// CommandRecorder brackets render-pass begin/end around the draw calls of a
// frame and owns the dynamic viewport/scissor state. It refuses unbalanced or
// nested begin/end pairs with an explicit error rather than handing the
// driver an invalid command buffer.
type CommandRecorder struct {
	context  *VulkanContext
	passOpen bool
}

func NewCommandRecorder(context *VulkanContext) *CommandRecorder {
	return &CommandRecorder{
		context: context,
	}
}

// BeginRenderPass starts the swapchain render pass on the framebuffer of the
// acquired image and sets a full-surface viewport and scissor. The viewport's
// Y axis is flipped (negative height, offset at the bottom edge) so a
// conventional right-handed, Y-up view convention displays un-mirrored.
func (cr *CommandRecorder) BeginRenderPass(commandBuffer *VulkanCommandBuffer, imageIndex uint32) error {
	if cr.passOpen {
		return core.ErrRenderPassOpen
	}
	if commandBuffer.State != COMMAND_BUFFER_STATE_RECORDING {
		return core.ErrFrameNotStarted
	}

	swapchain := cr.context.Swapchain
	width := swapchain.Extent.Width
	height := swapchain.Extent.Height

	viewport := vk.Viewport{
		X:        0.0,
		Y:        float32(height),
		Width:    float32(width),
		Height:   -float32(height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	swapchain.Renderpass.W = float32(width)
	swapchain.Renderpass.H = float32(height)
	swapchain.Renderpass.Begin(commandBuffer, swapchain.Framebuffers[imageIndex].Handle)

	cr.passOpen = true
	return nil
}

func (cr *CommandRecorder) EndRenderPass(commandBuffer *VulkanCommandBuffer) error {
	if !cr.passOpen {
		return core.ErrRenderPassNotOpen
	}
	cr.context.Swapchain.Renderpass.End(commandBuffer)
	cr.passOpen = false
	return nil
}

// BindPipeline binds a graphics pipeline for subsequent draws.
func (cr *CommandRecorder) BindPipeline(commandBuffer *VulkanCommandBuffer, pipeline *VulkanPipeline) {
	vk.CmdBindPipeline(commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}

// BindDescriptorSet binds one descriptor set at the given set index. The
// scene layer decides what the set contains; this subsystem only plumbs it.
func (cr *CommandRecorder) BindDescriptorSet(commandBuffer *VulkanCommandBuffer, pipeline *VulkanPipeline, setIndex uint32, set vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(
		commandBuffer.Handle,
		vk.PipelineBindPointGraphics,
		pipeline.Layout,
		setIndex, 1,
		[]vk.DescriptorSet{set},
		0, nil,
	)
}

// Draw issues a draw over a bound vertex buffer, optionally indexed. Vertex
// layout semantics belong to the scene layer; only byte offsets are handled
// here.
func (cr *CommandRecorder) Draw(commandBuffer *VulkanCommandBuffer, vertexBuffer *VulkanBuffer, indexBuffer *VulkanBuffer, count uint32) {
	vk.CmdBindVertexBuffers(commandBuffer.Handle, 0, 1, []vk.Buffer{vertexBuffer.Handle}, []vk.DeviceSize{0})
	if indexBuffer != nil {
		vk.CmdBindIndexBuffer(commandBuffer.Handle, indexBuffer.Handle, 0, vk.IndexTypeUint32)
		vk.CmdDrawIndexed(commandBuffer.Handle, count, 1, 0, 0, 0)
		return
	}
	vk.CmdDraw(commandBuffer.Handle, count, 1, 0, 0)
}
