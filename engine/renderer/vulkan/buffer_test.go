package vulkan

import (
	"errors"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

func TestGetAlignment(t *testing.T) {
	tests := []struct {
		name      string
		size      vk.DeviceSize
		alignment vk.DeviceSize
		want      vk.DeviceSize
	}{
		{"identity when alignment is one", 48, 1, 48},
		{"identity when alignment is zero", 48, 0, 48},
		{"already aligned", 256, 64, 256},
		{"rounds up", 60, 64, 64},
		{"rounds up across multiples", 65, 64, 128},
		{"typical uniform stride", 48, 256, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetAlignment(tt.size, tt.alignment); got != tt.want {
				t.Fatalf("GetAlignment(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
			}
		})
	}
}

// mappedTestBuffer builds a buffer whose mapping points at host memory, so the
// write path can be exercised without a device.
func mappedTestBuffer(size int) (*VulkanBuffer, []byte) {
	backing := make([]byte, size)
	return &VulkanBuffer{
		TotalSize: vk.DeviceSize(size),
		mapped:    unsafe.Pointer(&backing[0]),
	}, backing
}

func TestBufferWriteRequiresMapping(t *testing.T) {
	vb := &VulkanBuffer{TotalSize: 64}
	err := vb.Write([]byte{1, 2, 3}, 0)
	if !errors.Is(err, core.ErrBufferNotMapped) {
		t.Fatalf("expected ErrBufferNotMapped, got %v", err)
	}
}

func TestBufferWriteBoundsChecked(t *testing.T) {
	vb, _ := mappedTestBuffer(16)

	tests := []struct {
		name   string
		data   []byte
		offset vk.DeviceSize
		ok     bool
	}{
		{"fits exactly", make([]byte, 16), 0, true},
		{"fits at offset", make([]byte, 8), 8, true},
		{"overruns from zero", make([]byte, 17), 0, false},
		{"overruns at offset", make([]byte, 9), 8, false},
		{"offset past end", make([]byte, 1), 16, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vb.Write(tt.data, tt.offset)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, core.ErrBufferOutOfRange) {
				t.Fatalf("expected ErrBufferOutOfRange, got %v", err)
			}
		})
	}
}

func TestBufferWriteLandsAtOffset(t *testing.T) {
	vb, backing := mappedTestBuffer(8)

	if err := vb.Write([]byte{0xAA, 0xBB}, 4); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := []byte{0, 0, 0, 0, 0xAA, 0xBB, 0, 0}
	for i := range want {
		if backing[i] != want[i] {
			t.Fatalf("backing = %v, want %v", backing, want)
		}
	}
}

func TestBufferIsMapped(t *testing.T) {
	vb := &VulkanBuffer{TotalSize: 8}
	if vb.IsMapped() {
		t.Fatal("fresh buffer must not report mapped")
	}
	mapped, _ := mappedTestBuffer(8)
	if !mapped.IsMapped() {
		t.Fatal("mapped buffer must report mapped")
	}
}
