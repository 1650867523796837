package core

import (
	"fmt"
	"sync"
)

// EventContext carries a fixed-size payload so firing an event never
// allocates on the hot path.
type EventContext struct {
	Data struct {
		U64 [2]uint64
		F64 [2]float64
		U32 [4]uint32
		I32 [4]int32
		U16 [8]uint16
	}
}

// System internal event codes. Applications should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * u16 key_code = data.data.u16[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Window resized/restored.
	/* Context usage:
	 * u32 width = data.data.u32[0];
	 * u32 height = data.data.u32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x10

	// The maximum internal code. Anything above is application space.
	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventCallback func(data EventContext)

type registeredEvent struct {
	listener uint32
	callback EventCallback
}

type eventSystem struct {
	mu       sync.RWMutex
	registry map[SystemEventCode][]registeredEvent
	nextID   uint32
}

var events = &eventSystem{
	registry: make(map[SystemEventCode][]registeredEvent),
}

// EventRegister subscribes a callback to a code and returns a listener id
// usable with EventUnregister.
func EventRegister(code SystemEventCode, callback EventCallback) uint32 {
	events.mu.Lock()
	defer events.mu.Unlock()

	events.nextID++
	id := events.nextID
	events.registry[code] = append(events.registry[code], registeredEvent{
		listener: id,
		callback: callback,
	})
	return id
}

func EventUnregister(code SystemEventCode, listener uint32) error {
	events.mu.Lock()
	defer events.mu.Unlock()

	subs := events.registry[code]
	for i, s := range subs {
		if s.listener == listener {
			events.registry[code] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("listener %d is not registered for code %#x", listener, code)
}

// EventFire invokes every callback registered for the code, synchronously and
// in registration order.
func EventFire(code SystemEventCode, data EventContext) {
	events.mu.RLock()
	subs := make([]registeredEvent, len(events.registry[code]))
	copy(subs, events.registry[code])
	events.mu.RUnlock()

	for _, s := range subs {
		s.callback(data)
	}
}
