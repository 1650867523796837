package engine

import (
	"github.com/davlio/ember/engine/config"
	"github.com/davlio/ember/engine/renderer/vulkan"
)

// RenderFrame is what a game's render callback receives each tick: the open
// command buffer of the current frame slot, inside the main render pass.
type RenderFrame struct {
	CommandBuffer *vulkan.VulkanCommandBuffer
	FrameIndex    uint8
	ImageIndex    uint32
	DeltaTime     float64
}

// Game is the application half of the engine contract. The engine owns the
// loop and the GPU; the game fills in behavior through these callbacks.
type Game struct {
	Config *config.ApplicationConfig
	State  interface{}

	FnInitialize func(e *Engine) error
	FnUpdate     func(deltaTime float64) error
	FnRender     func(frame *RenderFrame) error
	FnOnResize   func(width, height uint32) error
	FnShutdown   func() error
}
