package vulkan

import (
	"errors"
	"fmt"

	"github.com/davlio/ember/engine/core"
)

// FrameSurface is the slice of the presentation surface the scheduler drives.
// The production implementation lives on VulkanRenderer; tests substitute a
// fake to exercise the state machine without a device.
type FrameSurface interface {
	// AcquireNextImage waits on the slot's in-flight fence and acquires the
	// next presentable image. Reports core.ErrSwapchainOutOfDate on a stale
	// surface.
	AcquireNextImage(slot uint8) (uint32, error)
	// BeginRecording resets the slot's command buffer and begins recording.
	BeginRecording(slot uint8) (*VulkanCommandBuffer, error)
	// EndRecording ends recording on the slot's command buffer.
	EndRecording(slot uint8) error
	// SubmitAndPresent submits the slot's command buffer and presents the
	// image.
	SubmitAndPresent(slot uint8, imageIndex uint32) (PresentStatus, error)
	// Rebuild replaces the swapchain for the given non-degenerate extent.
	Rebuild(width, height uint32) error
}

// SchedulerOptions wires the scheduler to its collaborators. Extent reports
// the current drawable size; ConsumeResized atomically reads and clears the
// window layer's resized flag — the scheduler's end-frame path is the single
// consumer of that flag. WaitEvents, when set, blocks until the next OS event
// and is used while the window is minimized so the rebuild loop does not
// spin.
type SchedulerOptions struct {
	MaxFramesInFlight  uint8
	MaxRebuildAttempts int
	Extent             func() (uint32, uint32)
	ConsumeResized     func() bool
	WaitEvents         func()
}

// FrameScheduler drives the begin/end-frame protocol: it acquires an image,
// tracks which of the N frame slots is active, detects staleness and triggers
// swapchain rebuilds. Begin and end must alternate strictly; the frame index
// advances only on a successful end.
type FrameScheduler struct {
	surface FrameSurface
	opts    SchedulerOptions

	currentFrame   uint8
	isFrameStarted bool
	imageIndex     uint32
}

func NewFrameScheduler(surface FrameSurface, opts SchedulerOptions) (*FrameScheduler, error) {
	if opts.MaxFramesInFlight == 0 {
		return nil, fmt.Errorf("scheduler requires at least one frame slot")
	}
	if opts.MaxRebuildAttempts == 0 {
		opts.MaxRebuildAttempts = 8
	}
	return &FrameScheduler{
		surface: surface,
		opts:    opts,
	}, nil
}

// BeginFrame acquires the next swapchain image for the current slot and
// begins command recording on the slot's buffer. On a stale surface it
// rebuilds the swapchain and reports core.ErrSwapchainBooting; the caller
// skips drawing this tick. Calling BeginFrame while a frame is already
// recording is caller misuse and fails with core.ErrFrameAlreadyStarted.
func (fs *FrameScheduler) BeginFrame() (*VulkanCommandBuffer, error) {
	if fs.isFrameStarted {
		return nil, core.ErrFrameAlreadyStarted
	}

	imageIndex, err := fs.surface.AcquireNextImage(fs.currentFrame)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			if rebuildErr := fs.rebuildSwapchain(); rebuildErr != nil {
				return nil, rebuildErr
			}
			return nil, core.ErrSwapchainBooting
		}
		// Anything else here is fatal: device lost, allocation failure.
		return nil, err
	}
	fs.imageIndex = imageIndex

	commandBuffer, err := fs.surface.BeginRecording(fs.currentFrame)
	if err != nil {
		return nil, err
	}

	fs.isFrameStarted = true
	return commandBuffer, nil
}

// EndFrame ends recording, submits the slot's buffer and presents the
// acquired image. A pending resize never skips presentation: the image was
// already acquired and rendered, so it is shown before the rebuild. The
// resized flag is read and cleared here and nowhere else. Calling EndFrame
// while idle logs and no-ops; it is recoverable caller misuse.
func (fs *FrameScheduler) EndFrame() error {
	if !fs.isFrameStarted {
		core.LogWarn("end frame called while no frame is recording")
		return nil
	}

	if err := fs.surface.EndRecording(fs.currentFrame); err != nil {
		return err
	}

	status, err := fs.surface.SubmitAndPresent(fs.currentFrame, fs.imageIndex)
	if err != nil {
		return err
	}

	resized := false
	if fs.opts.ConsumeResized != nil {
		resized = fs.opts.ConsumeResized()
	}
	if status == PresentOutOfDate || status == PresentSuboptimal || resized {
		if err := fs.rebuildSwapchain(); err != nil {
			return err
		}
	}

	fs.isFrameStarted = false
	fs.currentFrame = (fs.currentFrame + 1) % fs.opts.MaxFramesInFlight
	return nil
}

// rebuildSwapchain blocks until the drawable extent is non-degenerate (the
// window may be minimized), then rebuilds. Rebuild failures are bounded;
// exceeding the bound escalates to a fatal error instead of spinning.
func (fs *FrameScheduler) rebuildSwapchain() error {
	var lastErr error
	for attempt := 0; attempt < fs.opts.MaxRebuildAttempts; attempt++ {
		width, height := fs.opts.Extent()
		for width == 0 || height == 0 {
			if fs.opts.WaitEvents != nil {
				fs.opts.WaitEvents()
			}
			width, height = fs.opts.Extent()
		}

		if lastErr = fs.surface.Rebuild(width, height); lastErr == nil {
			return nil
		}
		core.LogWarn("swapchain rebuild attempt %d failed: %s", attempt+1, lastErr)
	}
	return fmt.Errorf("swapchain rebuild failed after %d attempts: %w", fs.opts.MaxRebuildAttempts, lastErr)
}

// CurrentFrameIndex reports the active frame slot.
func (fs *FrameScheduler) CurrentFrameIndex() uint8 {
	return fs.currentFrame
}

// ImageIndex reports the acquired swapchain image for the frame being
// recorded. Only meaningful while IsFrameStarted.
func (fs *FrameScheduler) ImageIndex() uint32 {
	return fs.imageIndex
}

func (fs *FrameScheduler) IsFrameStarted() bool {
	return fs.isFrameStarted
}
