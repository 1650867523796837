package vulkan

import (
	"fmt"
	"sync"
)

// Queues are externally synchronized in Vulkan. The renderer is single
// threaded today, but transfer submissions from asset uploads may come from
// other goroutines, so every queue access goes through this pool.
type VulkanLockPool struct {
	mu           sync.Mutex
	queueMutexes map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// SetQueueFamily registers a queue family index. Must be called before the
// first SafeQueueCall for that family.
func (vl *VulkanLockPool) SetQueueFamily(index uint32) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if _, exists := vl.queueMutexes[index]; !exists {
		vl.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn while holding the mutex of the given queue family.
// Fails when the family was never registered, rather than panicking inside fn's
// caller.
func (vl *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	vl.mu.Lock()
	l := vl.queueMutexes[queueFamilyIndex]
	vl.mu.Unlock()

	if l == nil {
		return fmt.Errorf("queue family %d was never registered", queueFamilyIndex)
	}

	l.Lock()
	defer l.Unlock()

	return fn()
}
