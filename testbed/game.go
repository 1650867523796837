package testbed

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine"
	"github.com/davlio/ember/engine/config"
	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/engine/renderer/vulkan"
)

// Vertex is the testbed's vertex layout: 2D position and an RGB color.
type Vertex struct {
	Position [2]float32
	Color    [3]float32
}

const vertexStride = uint32(unsafe.Sizeof(Vertex{}))

// GlobalUniform is the per-frame uniform block. Kept vec4-sized for std140.
type GlobalUniform struct {
	Tint [4]float32
}

type gameState struct {
	engine *engine.Engine
	cfg    *config.ApplicationConfig

	pipeline     *vulkan.VulkanPipeline
	vertexBuffer *vulkan.VulkanBuffer
	indexBuffer  *vulkan.VulkanBuffer
	indexCount   uint32

	setLayout      *vulkan.DescriptorSetLayout
	descriptorPool *vulkan.DescriptorPool

	// Per frame slot, written while the slot's fence guarantees the GPU is
	// done with it.
	uniformBuffers []*vulkan.VulkanBuffer
	descriptorSets []vk.DescriptorSet

	elapsed float64
}

type TestGame struct {
	*engine.Game
}

func NewTestGame(cfg *config.ApplicationConfig) *TestGame {
	state := &gameState{cfg: cfg}
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  state,
		},
	}

	tg.FnInitialize = state.initialize
	tg.FnUpdate = state.update
	tg.FnRender = state.render
	tg.FnOnResize = state.onResize
	tg.FnShutdown = state.shutdown

	return tg
}

func sliceBytes[T any](items []T) []byte {
	size := len(items) * int(unsafe.Sizeof(items[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&items[0])), size)
}

func structBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}

func (gs *gameState) initialize(e *engine.Engine) error {
	gs.engine = e
	ctx := e.Renderer().Context()

	vertices := []Vertex{
		{Position: [2]float32{0.0, -0.5}, Color: [3]float32{1, 0, 0}},
		{Position: [2]float32{0.5, 0.5}, Color: [3]float32{0, 1, 0}},
		{Position: [2]float32{-0.5, 0.5}, Color: [3]float32{0, 0, 1}},
	}
	indices := []uint32{0, 1, 2}
	gs.indexCount = uint32(len(indices))

	if err := gs.createGeometry(ctx, vertices, indices); err != nil {
		return err
	}
	if err := gs.createDescriptors(ctx); err != nil {
		return err
	}
	return gs.createPipeline(ctx)
}

// createGeometry uploads the mesh through a host-visible staging buffer into
// device-local memory.
func (gs *gameState) createGeometry(ctx *vulkan.VulkanContext, vertices []Vertex, indices []uint32) error {
	upload := func(data []byte, usage vk.BufferUsageFlagBits) (*vulkan.VulkanBuffer, error) {
		size := vk.DeviceSize(len(data))

		staging, err := vulkan.NewBuffer(ctx, size, 1,
			vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
			1)
		if err != nil {
			return nil, err
		}
		defer staging.Destroy(ctx)

		if err := staging.Map(ctx); err != nil {
			return nil, err
		}
		if err := staging.Write(data, 0); err != nil {
			return nil, err
		}
		staging.Unmap(ctx)

		deviceLocal, err := vulkan.NewBuffer(ctx, size, 1,
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit|usage),
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			1)
		if err != nil {
			return nil, err
		}
		if err := staging.CopyTo(ctx, deviceLocal, size); err != nil {
			deviceLocal.Destroy(ctx)
			return nil, err
		}
		return deviceLocal, nil
	}

	vertexBuffer, err := upload(sliceBytes(vertices), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return err
	}
	gs.vertexBuffer = vertexBuffer

	indexBuffer, err := upload(sliceBytes(indices), vk.BufferUsageIndexBufferBit)
	if err != nil {
		return err
	}
	gs.indexBuffer = indexBuffer
	return nil
}

func (gs *gameState) createDescriptors(ctx *vulkan.VulkanContext) error {
	frameCount := gs.cfg.Renderer.MaxFramesInFlight

	layout, err := vulkan.NewDescriptorSetLayoutBuilder(ctx).
		AddBinding(0, vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit), 1).
		Build()
	if err != nil {
		return err
	}
	gs.setLayout = layout

	pool, err := vulkan.NewDescriptorPool(ctx, uint32(frameCount), []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: uint32(frameCount)},
	})
	if err != nil {
		return err
	}
	gs.descriptorPool = pool

	alignment := ctx.Device.MinUniformBufferOffsetAlignment()
	gs.uniformBuffers = make([]*vulkan.VulkanBuffer, frameCount)
	gs.descriptorSets = make([]vk.DescriptorSet, frameCount)

	for i := range gs.uniformBuffers {
		ub, err := vulkan.NewBuffer(ctx, vk.DeviceSize(unsafe.Sizeof(GlobalUniform{})), 1,
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
			alignment)
		if err != nil {
			return err
		}
		if err := ub.Map(ctx); err != nil {
			return err
		}
		gs.uniformBuffers[i] = ub

		writer := vulkan.NewDescriptorWriter(layout, pool)
		if err := writer.WriteBuffer(0, ub.DescriptorInfo(vk.DeviceSize(unsafe.Sizeof(GlobalUniform{})), 0)); err != nil {
			return err
		}
		set, err := writer.Build(ctx)
		if err != nil {
			return err
		}
		gs.descriptorSets[i] = set
	}
	return nil
}

func (gs *gameState) createPipeline(ctx *vulkan.VulkanContext) error {
	vertCode, err := gs.engine.Shaders().Load("triangle.vert")
	if err != nil {
		return err
	}
	fragCode, err := gs.engine.Shaders().Load("triangle.frag")
	if err != nil {
		return err
	}

	pipeline, err := vulkan.NewGraphicsPipeline(ctx, &vulkan.PipelineConfig{
		Renderpass:         ctx.Swapchain.Renderpass,
		VertexShaderCode:   vertCode,
		FragmentShaderCode: fragCode,
		Stride:             vertexStride,
		Attributes: []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Position))},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Color))},
		},
		DescriptorSetLayouts: []vk.DescriptorSetLayout{gs.setLayout.Handle},
		EnableDepth:          gs.cfg.Renderer.EnableDepth,
	})
	if err != nil {
		return err
	}
	gs.pipeline = pipeline
	return nil
}

func (gs *gameState) update(deltaTime float64) error {
	gs.elapsed += deltaTime
	return nil
}

func (gs *gameState) render(frame *engine.RenderFrame) error {
	// The slot's fence has been waited on, so its uniform buffer is free.
	pulse := float32(0.5 + 0.5*oscillate(gs.elapsed))
	uniform := GlobalUniform{Tint: [4]float32{pulse, pulse, pulse, 1}}
	if err := gs.uniformBuffers[frame.FrameIndex].Write(structBytes(&uniform), 0); err != nil {
		return err
	}

	recorder := gs.engine.Recorder()
	recorder.BindPipeline(frame.CommandBuffer, gs.pipeline)
	recorder.BindDescriptorSet(frame.CommandBuffer, gs.pipeline, 0, gs.descriptorSets[frame.FrameIndex])
	recorder.Draw(frame.CommandBuffer, gs.vertexBuffer, gs.indexBuffer, gs.indexCount)
	return nil
}

// oscillate maps elapsed seconds onto [-1, 1] without pulling in a math dep
// for a demo effect.
func oscillate(t float64) float64 {
	const period = 2.0
	phase := t/period - float64(int64(t/period))
	if phase < 0.5 {
		return 4*phase - 1
	}
	return 3 - 4*phase
}

func (gs *gameState) onResize(width, height uint32) error {
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (gs *gameState) shutdown() error {
	ctx := gs.engine.Renderer().Context()
	gs.engine.Renderer().WaitIdle()

	if gs.pipeline != nil {
		gs.pipeline.Destroy(ctx)
	}
	for _, ub := range gs.uniformBuffers {
		if ub != nil {
			ub.Destroy(ctx)
		}
	}
	if gs.descriptorPool != nil {
		gs.descriptorPool.Destroy(ctx)
	}
	if gs.setLayout != nil {
		gs.setLayout.Destroy(ctx)
	}
	if gs.indexBuffer != nil {
		gs.indexBuffer.Destroy(ctx)
	}
	if gs.vertexBuffer != nil {
		gs.vertexBuffer.Destroy(ctx)
	}
	return nil
}
