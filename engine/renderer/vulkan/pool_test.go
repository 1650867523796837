package vulkan

import (
	"errors"
	"testing"
)

func TestSafeQueueCallRunsRegisteredFamily(t *testing.T) {
	locks := NewVulkanLockPool()
	locks.SetQueueFamily(0)

	ran := false
	if err := locks.SafeQueueCall(0, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("SafeQueueCall: %v", err)
	}
	if !ran {
		t.Fatal("callback never ran")
	}
}

func TestSafeQueueCallPropagatesError(t *testing.T) {
	locks := NewVulkanLockPool()
	locks.SetQueueFamily(1)

	boom := errors.New("submit failed")
	if err := locks.SafeQueueCall(1, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped callback error, got %v", err)
	}
}

func TestSafeQueueCallRejectsUnknownFamily(t *testing.T) {
	locks := NewVulkanLockPool()

	ran := false
	err := locks.SafeQueueCall(7, func() error {
		ran = true
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for an unregistered family")
	}
	if ran {
		t.Fatal("callback must not run without a registered family")
	}
}
