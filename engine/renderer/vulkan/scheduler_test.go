package vulkan

import (
	"errors"
	"fmt"
	"testing"

	"github.com/davlio/ember/engine/core"
)

// fakeSurface records every call the scheduler makes so the tests can assert
// on ordering without a device.
type fakeSurface struct {
	log []string

	acquireErr    error
	acquireErrs   []error // consumed one per call when set
	recordErr     error
	presentStatus PresentStatus
	presentErr    error
	rebuildErrs   []error // consumed one per call when set

	nextImage uint32
	buffers   map[uint8]*VulkanCommandBuffer
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		buffers: make(map[uint8]*VulkanCommandBuffer),
	}
}

func (f *fakeSurface) AcquireNextImage(slot uint8) (uint32, error) {
	f.log = append(f.log, fmt.Sprintf("acquire(%d)", slot))
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	} else if f.acquireErr != nil {
		return 0, f.acquireErr
	}
	image := f.nextImage
	f.nextImage = (f.nextImage + 1) % 3
	return image, nil
}

func (f *fakeSurface) BeginRecording(slot uint8) (*VulkanCommandBuffer, error) {
	f.log = append(f.log, fmt.Sprintf("begin(%d)", slot))
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	cb, ok := f.buffers[slot]
	if !ok {
		cb = &VulkanCommandBuffer{State: COMMAND_BUFFER_STATE_RECORDING}
		f.buffers[slot] = cb
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return cb, nil
}

func (f *fakeSurface) EndRecording(slot uint8) error {
	f.log = append(f.log, fmt.Sprintf("end(%d)", slot))
	return nil
}

func (f *fakeSurface) SubmitAndPresent(slot uint8, imageIndex uint32) (PresentStatus, error) {
	f.log = append(f.log, fmt.Sprintf("present(%d,%d)", slot, imageIndex))
	return f.presentStatus, f.presentErr
}

func (f *fakeSurface) Rebuild(width, height uint32) error {
	f.log = append(f.log, fmt.Sprintf("rebuild(%dx%d)", width, height))
	if len(f.rebuildErrs) > 0 {
		err := f.rebuildErrs[0]
		f.rebuildErrs = f.rebuildErrs[1:]
		return err
	}
	return nil
}

func newTestScheduler(t *testing.T, surface FrameSurface, opts SchedulerOptions) *FrameScheduler {
	t.Helper()
	if opts.MaxFramesInFlight == 0 {
		opts.MaxFramesInFlight = 2
	}
	if opts.Extent == nil {
		opts.Extent = func() (uint32, uint32) { return 800, 600 }
	}
	fs, err := NewFrameScheduler(surface, opts)
	if err != nil {
		t.Fatalf("NewFrameScheduler: %v", err)
	}
	return fs
}

func TestSchedulerRejectsZeroSlots(t *testing.T) {
	_, err := NewFrameScheduler(newFakeSurface(), SchedulerOptions{})
	if err == nil {
		t.Fatal("expected an error for zero frame slots")
	}
}

func TestSchedulerBeginEndAlternation(t *testing.T) {
	surface := newFakeSurface()
	fs := newTestScheduler(t, surface, SchedulerOptions{})

	if _, err := fs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if !fs.IsFrameStarted() {
		t.Fatal("frame should be marked started")
	}

	// A second begin while recording is misuse.
	if _, err := fs.BeginFrame(); !errors.Is(err, core.ErrFrameAlreadyStarted) {
		t.Fatalf("expected ErrFrameAlreadyStarted, got %v", err)
	}

	if err := fs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if fs.IsFrameStarted() {
		t.Fatal("frame should be idle after EndFrame")
	}
}

func TestSchedulerEndWhileIdleIsNoOp(t *testing.T) {
	surface := newFakeSurface()
	fs := newTestScheduler(t, surface, SchedulerOptions{})

	if err := fs.EndFrame(); err != nil {
		t.Fatalf("EndFrame while idle should no-op, got %v", err)
	}
	if len(surface.log) != 0 {
		t.Fatalf("EndFrame while idle must not touch the surface, saw %v", surface.log)
	}
	if fs.CurrentFrameIndex() != 0 {
		t.Fatalf("frame index must not advance on a no-op end, got %d", fs.CurrentFrameIndex())
	}
}

func TestSchedulerFrameIndexWrapsAround(t *testing.T) {
	surface := newFakeSurface()
	fs := newTestScheduler(t, surface, SchedulerOptions{MaxFramesInFlight: 2})

	want := []uint8{0, 1, 0, 1, 0}
	for i, slot := range want {
		if got := fs.CurrentFrameIndex(); got != slot {
			t.Fatalf("frame %d: slot = %d, want %d", i, got, slot)
		}
		if _, err := fs.BeginFrame(); err != nil {
			t.Fatalf("frame %d BeginFrame: %v", i, err)
		}
		if err := fs.EndFrame(); err != nil {
			t.Fatalf("frame %d EndFrame: %v", i, err)
		}
	}
}

func TestSchedulerFrameIndexDoesNotAdvanceOnFailedEnd(t *testing.T) {
	surface := newFakeSurface()
	surface.presentErr = core.ErrDeviceLost
	fs := newTestScheduler(t, surface, SchedulerOptions{})

	if _, err := fs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := fs.EndFrame(); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", err)
	}
	if fs.CurrentFrameIndex() != 0 {
		t.Fatalf("frame index advanced on a failed end, got %d", fs.CurrentFrameIndex())
	}
}

func TestSchedulerRebuildsOnStaleAcquire(t *testing.T) {
	surface := newFakeSurface()
	surface.acquireErrs = []error{core.ErrSwapchainOutOfDate}
	fs := newTestScheduler(t, surface, SchedulerOptions{})

	_, err := fs.BeginFrame()
	if !errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("expected ErrSwapchainBooting, got %v", err)
	}
	if fs.IsFrameStarted() {
		t.Fatal("a skipped frame must not be marked started")
	}

	want := []string{"acquire(0)", "rebuild(800x600)"}
	if len(surface.log) != len(want) {
		t.Fatalf("surface log = %v, want %v", surface.log, want)
	}
	for i := range want {
		if surface.log[i] != want[i] {
			t.Fatalf("surface log = %v, want %v", surface.log, want)
		}
	}

	// The next tick proceeds normally on the rebuilt swapchain.
	if _, err := fs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame after rebuild: %v", err)
	}
}

func TestSchedulerPresentsBeforeRebuildOnResize(t *testing.T) {
	surface := newFakeSurface()
	fs := newTestScheduler(t, surface, SchedulerOptions{
		ConsumeResized: func() bool { return true },
	})

	if _, err := fs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := fs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	// The already-rendered image is shown first; the rebuild follows.
	var presentAt, rebuildAt = -1, -1
	for i, entry := range surface.log {
		switch entry {
		case "present(0,0)":
			presentAt = i
		case "rebuild(800x600)":
			rebuildAt = i
		}
	}
	if presentAt < 0 || rebuildAt < 0 || presentAt > rebuildAt {
		t.Fatalf("present must precede rebuild, log: %v", surface.log)
	}
}

func TestSchedulerRebuildsOnSuboptimalPresent(t *testing.T) {
	surface := newFakeSurface()
	surface.presentStatus = PresentSuboptimal
	fs := newTestScheduler(t, surface, SchedulerOptions{})

	if _, err := fs.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := fs.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	last := surface.log[len(surface.log)-1]
	if last != "rebuild(800x600)" {
		t.Fatalf("expected a rebuild after a suboptimal present, log: %v", surface.log)
	}
	if fs.CurrentFrameIndex() != 1 {
		t.Fatalf("successful end must advance the frame index, got %d", fs.CurrentFrameIndex())
	}
}

func TestSchedulerResizeFlagConsumedOnce(t *testing.T) {
	surface := newFakeSurface()
	consumed := 0
	resized := true
	fs := newTestScheduler(t, surface, SchedulerOptions{
		ConsumeResized: func() bool {
			consumed++
			r := resized
			resized = false
			return r
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := fs.BeginFrame(); err != nil {
			t.Fatalf("frame %d BeginFrame: %v", i, err)
		}
		if err := fs.EndFrame(); err != nil {
			t.Fatalf("frame %d EndFrame: %v", i, err)
		}
	}

	if consumed != 2 {
		t.Fatalf("flag must be read exactly once per successful end, got %d reads", consumed)
	}
	rebuilds := 0
	for _, entry := range surface.log {
		if entry == "rebuild(800x600)" {
			rebuilds++
		}
	}
	if rebuilds != 1 {
		t.Fatalf("one resize must trigger exactly one rebuild, got %d", rebuilds)
	}
}

func TestSchedulerBlocksWhileExtentDegenerate(t *testing.T) {
	surface := newFakeSurface()
	surface.acquireErrs = []error{core.ErrSwapchainOutOfDate}

	// A single zero dimension counts as minimized too.
	extents := [][2]uint32{{0, 0}, {0, 0}, {0, 5}, {1024, 768}}
	waits := 0
	fs := newTestScheduler(t, surface, SchedulerOptions{
		Extent: func() (uint32, uint32) {
			e := extents[0]
			if len(extents) > 1 {
				extents = extents[1:]
			}
			return e[0], e[1]
		},
		WaitEvents: func() { waits++ },
	})

	if _, err := fs.BeginFrame(); !errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("expected ErrSwapchainBooting, got %v", err)
	}
	if waits != 3 {
		t.Fatalf("expected 3 event waits while minimized, got %d", waits)
	}
	last := surface.log[len(surface.log)-1]
	if last != "rebuild(1024x768)" {
		t.Fatalf("rebuild must use the restored extent, log: %v", surface.log)
	}
}

func TestSchedulerBoundedRebuildFailures(t *testing.T) {
	surface := newFakeSurface()
	surface.acquireErrs = []error{core.ErrSwapchainOutOfDate}
	boom := errors.New("surface lost")
	surface.rebuildErrs = []error{boom, boom, boom}
	fs := newTestScheduler(t, surface, SchedulerOptions{MaxRebuildAttempts: 3})

	_, err := fs.BeginFrame()
	if err == nil || errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("exhausted rebuild attempts must escalate, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("escalated error should wrap the last failure, got %v", err)
	}

	rebuilds := 0
	for _, entry := range surface.log {
		if entry == "rebuild(800x600)" {
			rebuilds++
		}
	}
	if rebuilds != 3 {
		t.Fatalf("expected exactly 3 rebuild attempts, got %d", rebuilds)
	}
}

func TestSchedulerRebuildRecoversWithinBound(t *testing.T) {
	surface := newFakeSurface()
	surface.acquireErrs = []error{core.ErrSwapchainOutOfDate}
	surface.rebuildErrs = []error{errors.New("transient"), nil}
	fs := newTestScheduler(t, surface, SchedulerOptions{MaxRebuildAttempts: 3})

	if _, err := fs.BeginFrame(); !errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("recovered rebuild should report booting, got %v", err)
	}
}
