package core

import "testing"

func TestEventFireReachesListeners(t *testing.T) {
	const code = SystemEventCode(0x100)

	var got []uint32
	id := EventRegister(code, func(data EventContext) {
		got = append(got, data.Data.U32[0])
	})
	defer EventUnregister(code, id)

	ctx := EventContext{}
	ctx.Data.U32[0] = 42
	EventFire(code, ctx)

	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("listener saw %v, want [42]", got)
	}
}

func TestEventUnregisterStopsDelivery(t *testing.T) {
	const code = SystemEventCode(0x101)

	fired := 0
	id := EventRegister(code, func(EventContext) { fired++ })

	EventFire(code, EventContext{})
	if err := EventUnregister(code, id); err != nil {
		t.Fatalf("EventUnregister: %v", err)
	}
	EventFire(code, EventContext{})

	if fired != 1 {
		t.Fatalf("listener fired %d times, want 1", fired)
	}
}

func TestEventUnregisterUnknownListener(t *testing.T) {
	if err := EventUnregister(SystemEventCode(0x102), 9999); err == nil {
		t.Fatal("expected an error for an unknown listener")
	}
}

func TestEventFireInRegistrationOrder(t *testing.T) {
	const code = SystemEventCode(0x103)

	var order []int
	a := EventRegister(code, func(EventContext) { order = append(order, 1) })
	b := EventRegister(code, func(EventContext) { order = append(order, 2) })
	defer EventUnregister(code, a)
	defer EventUnregister(code, b)

	EventFire(code, EventContext{})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("delivery order = %v, want [1 2]", order)
	}
}
