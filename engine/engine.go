package engine

import (
	"errors"
	"fmt"

	"github.com/davlio/ember/engine/assets"
	"github.com/davlio/ember/engine/core"
	"github.com/davlio/ember/engine/platform"
	"github.com/davlio/ember/engine/renderer/vulkan"
)

// Engine owns the run loop and the frame lifecycle: window events in,
// recorded and presented frames out. The game hangs its behavior off the
// callbacks in Game.
type Engine struct {
	gameInstance *Game
	platform     *platform.Platform
	renderer     *vulkan.VulkanRenderer
	scheduler    *vulkan.FrameScheduler
	recorder     *vulkan.CommandRecorder
	shaders      *assets.ShaderLibrary

	clock       *core.Clock
	lastTime    float64
	isRunning   bool
	isSuspended bool
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		return nil, fmt.Errorf("game carries no configuration")
	}
	core.SetLogLevel(g.Config.ParsedLogLevel())

	return &Engine{
		gameInstance: g,
		platform:     platform.New(),
		clock:        core.NewClock(),
		isRunning:    true,
	}, nil
}

func (e *Engine) Initialize() error {
	cfg := e.gameInstance.Config

	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onQuit)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)

	if err := e.platform.Startup(cfg.Name, cfg.StartPosX, cfg.StartPosY, cfg.StartWidth, cfg.StartHeight); err != nil {
		return err
	}

	e.renderer = vulkan.New(e.platform, vulkan.RendererOptions{
		ApplicationName:   cfg.Name,
		Width:             cfg.StartWidth,
		Height:            cfg.StartHeight,
		MaxFramesInFlight: cfg.Renderer.MaxFramesInFlight,
		VSync:             cfg.Renderer.VSync,
		EnableDepth:       cfg.Renderer.EnableDepth,
		EnableValidation:  cfg.Renderer.EnableValidation,
		FenceTimeoutNs:    cfg.Renderer.FenceTimeoutNs,
	})
	if err := e.renderer.Initialize(); err != nil {
		return err
	}

	scheduler, err := vulkan.NewFrameScheduler(e.renderer, vulkan.SchedulerOptions{
		MaxFramesInFlight:  cfg.Renderer.MaxFramesInFlight,
		MaxRebuildAttempts: cfg.Renderer.MaxRebuildAttempts,
		Extent:             e.platform.DrawableExtent,
		ConsumeResized:     e.platform.ConsumeResized,
		WaitEvents:         e.platform.WaitMessages,
	})
	if err != nil {
		return err
	}
	e.scheduler = scheduler
	e.recorder = vulkan.NewCommandRecorder(e.renderer.Context())

	shaders, err := assets.NewShaderLibrary(cfg.Renderer.ShaderDir)
	if err != nil {
		return err
	}
	if err := shaders.Watch(); err != nil {
		return err
	}
	e.shaders = shaders

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}

	core.LogInfo("Engine initialized.")
	return nil
}

// Run drives the main loop until a quit event or a fatal frame error.
func (e *Engine) Run() error {
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()

		if e.isSuspended {
			// Nothing to render while minimized; block until the window
			// state changes instead of spinning.
			e.platform.WaitMessages()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				return fmt.Errorf("game update failed: %w", err)
			}
		}

		if err := e.drawFrame(delta); err != nil {
			return err
		}

		core.MetricsUpdate(delta)
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	commandBuffer, err := e.scheduler.BeginFrame()
	if err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			// Swapchain was rebuilt; skip this tick and draw on the next.
			return nil
		}
		return fmt.Errorf("begin frame failed: %w", err)
	}

	if err := e.recorder.BeginRenderPass(commandBuffer, e.scheduler.ImageIndex()); err != nil {
		return err
	}

	if e.gameInstance.FnRender != nil {
		frame := &RenderFrame{
			CommandBuffer: commandBuffer,
			FrameIndex:    e.scheduler.CurrentFrameIndex(),
			ImageIndex:    e.scheduler.ImageIndex(),
			DeltaTime:     delta,
		}
		if err := e.gameInstance.FnRender(frame); err != nil {
			return fmt.Errorf("game render failed: %w", err)
		}
	}

	if err := e.recorder.EndRenderPass(commandBuffer); err != nil {
		return err
	}
	return e.scheduler.EndFrame()
}

func (e *Engine) Shutdown() error {
	core.LogInfo("Engine shutting down.")
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown: %s", err)
		}
	}
	if e.shaders != nil {
		e.shaders.Close()
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	return e.platform.Shutdown()
}

// Renderer exposes the GPU backend for resource creation in game code.
func (e *Engine) Renderer() *vulkan.VulkanRenderer {
	return e.renderer
}

// Recorder exposes the draw-command surface of the open frame.
func (e *Engine) Recorder() *vulkan.CommandRecorder {
	return e.recorder
}

// Shaders exposes the SPIR-V blob library.
func (e *Engine) Shaders() *assets.ShaderLibrary {
	return e.shaders
}

func (e *Engine) onQuit(core.EventContext) {
	core.LogInfo("quit event received, stopping the loop")
	e.isRunning = false
}

func (e *Engine) onKey(data core.EventContext) {
	// Escape quits; everything else belongs to the game.
	const keyEscape = 256 // glfw.KeyEscape
	if data.Data.U16[0] == keyEscape {
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
	}
}

func (e *Engine) onResized(data core.EventContext) {
	width := data.Data.U32[0]
	height := data.Data.U32[1]

	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize handler: %s", err)
		}
	}
}
