package vulkan

import "testing"

func TestBytecodeRejectsBadBlobs(t *testing.T) {
	if _, err := bytecode(nil); err == nil {
		t.Fatal("empty blob must be rejected")
	}
	if _, err := bytecode(make([]byte, 7)); err == nil {
		t.Fatal("non-word-aligned blob must be rejected")
	}
}

func TestBytecodeReinterpretsWords(t *testing.T) {
	// SPIR-V magic number in little-endian byte order.
	blob := []byte{0x03, 0x02, 0x23, 0x07}
	words, err := bytecode(blob)
	if err != nil {
		t.Fatalf("bytecode: %v", err)
	}
	if len(words) != 1 || words[0] != 0x07230203 {
		t.Fatalf("words = %#x, want [0x07230203]", words)
	}
}
