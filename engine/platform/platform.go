package platform

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the window and is the single source of the drawable extent
// and of the resized flag. The flag is set here on every framebuffer size
// callback and cleared by exactly one consumer, the frame scheduler, through
// ConsumeResized.
type Platform struct {
	Window  *glfw.Window
	resized atomic.Bool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		p.resized.Store(true)

		ctx := core.EventContext{}
		ctx.Data.U32[0] = uint32(width)
		ctx.Data.U32[1] = uint32(height)
		core.EventFire(core.EVENT_CODE_RESIZED, ctx)
	})
	p.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		code := core.EVENT_CODE_KEY_PRESSED
		if action == glfw.Release {
			code = core.EVENT_CODE_KEY_RELEASED
		}
		ctx := core.EventContext{}
		ctx.Data.U16[0] = uint16(key)
		core.EventFire(code, ctx)
	})
	p.Window.SetCloseCallback(func(w *glfw.Window) {
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
	})

	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until an OS event arrives. Used while the window is
// minimized so the rebuild loop does not spin.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

// DrawableExtent reports the current framebuffer size in pixels. Both
// dimensions are zero while the window is minimized.
func (p *Platform) DrawableExtent() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// WasResized reports the flag without clearing it.
func (p *Platform) WasResized() bool {
	return p.resized.Load()
}

// ConsumeResized atomically reads and clears the resized flag. Only the frame
// scheduler's end-frame path may call this.
func (p *Platform) ConsumeResized() bool {
	return p.resized.Swap(false)
}

// GetRequiredExtensionNames reports the instance extensions the windowing
// layer needs for surface creation.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a presentable surface for the given instance.
func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("surface creation failed: %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}
