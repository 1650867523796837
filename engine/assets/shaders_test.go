package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func spirvBlob(words ...uint32) []byte {
	blob := make([]byte, 0, (len(words)+1)*4)
	blob = binary.LittleEndian.AppendUint32(blob, spirvMagic)
	for _, w := range words {
		blob = binary.LittleEndian.AppendUint32(blob, w)
	}
	return blob
}

func writeShader(t *testing.T, dir, name string, blob []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), blob, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLibraryLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert.spv", spirvBlob(1, 2, 3))

	lib, err := NewShaderLibrary(dir)
	if err != nil {
		t.Fatalf("NewShaderLibrary: %v", err)
	}
	defer lib.Close()

	blob, err := lib.Load("triangle.vert")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(blob) != 16 {
		t.Fatalf("blob length = %d, want 16", len(blob))
	}

	// A cached load survives the file disappearing.
	if err := os.Remove(filepath.Join(dir, "triangle.vert.spv")); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Load("triangle.vert"); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
}

func TestLibraryRejectsMissingShader(t *testing.T) {
	lib, err := NewShaderLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewShaderLibrary: %v", err)
	}
	defer lib.Close()

	if _, err := lib.Load("nope.frag"); err == nil {
		t.Fatal("expected an error for a missing shader")
	}
}

func TestLibraryRejectsInvalidBlobs(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "truncated.vert.spv", []byte{0x03, 0x02})
	writeShader(t, dir, "foreign.frag.spv", []byte{1, 2, 3, 4, 5, 6, 7, 8})

	lib, err := NewShaderLibrary(dir)
	if err != nil {
		t.Fatalf("NewShaderLibrary: %v", err)
	}
	defer lib.Close()

	if _, err := lib.Load("truncated.vert"); err == nil {
		t.Fatal("expected an error for a truncated blob")
	}
	if _, err := lib.Load("foreign.frag"); err == nil {
		t.Fatal("expected an error for a blob without the magic number")
	}
}

func TestLibraryRejectsNonDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewShaderLibrary(file); err == nil {
		t.Fatal("expected an error for a non-directory path")
	}
}

func TestShaderName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/shaders/triangle.vert.spv", "triangle.vert"},
		{"triangle.frag.spv", "triangle.frag"},
		{"/shaders/readme.txt", ""},
		{"/shaders/triangle.vert", ""},
	}
	for _, tt := range tests {
		if got := shaderName(tt.path); got != tt.want {
			t.Errorf("shaderName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
