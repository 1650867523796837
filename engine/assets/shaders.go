package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/davlio/ember/engine/core"
)

// spirvMagic is the first word of every valid SPIR-V module.
const spirvMagic = 0x07230203

// ShaderLibrary indexes compiled .spv blobs under one directory and hands
// them out by logical name ("triangle.vert", "triangle.frag"). A filesystem
// watcher invalidates cached blobs on write, so the next Load picks up a
// recompiled shader; reload notifications are published for anything that
// wants to rebuild pipelines live.
type ShaderLibrary struct {
	dir string

	mutex sync.RWMutex
	blobs map[string][]byte

	watcher *fsnotify.Watcher
	reloads chan string
	done    chan struct{}
}

func NewShaderLibrary(dir string) (*ShaderLibrary, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("shader directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shader path %s is not a directory", dir)
	}

	return &ShaderLibrary{
		dir:     dir,
		blobs:   make(map[string][]byte),
		reloads: make(chan string, 16),
		done:    make(chan struct{}),
	}, nil
}

// shaderName maps a blob path to its logical name: the filename with the
// trailing .spv stripped. Non-shader files map to "".
func shaderName(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".spv") {
		return ""
	}
	return strings.TrimSuffix(base, ".spv")
}

// Load returns the SPIR-V blob for the named shader, reading it from disk on
// the first request or after the file changed. The blob is validated before it
// is cached; a truncated or foreign file never reaches the pipeline layer.
func (sl *ShaderLibrary) Load(name string) ([]byte, error) {
	sl.mutex.RLock()
	blob, ok := sl.blobs[name]
	sl.mutex.RUnlock()
	if ok {
		return blob, nil
	}

	path := filepath.Join(sl.dir, name+".spv")
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}
	if err := validateSpirv(blob); err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}

	sl.mutex.Lock()
	sl.blobs[name] = blob
	sl.mutex.Unlock()
	return blob, nil
}

func validateSpirv(blob []byte) error {
	if len(blob) < 4 || len(blob)%4 != 0 {
		return fmt.Errorf("invalid SPIR-V length %d", len(blob))
	}
	if binary.LittleEndian.Uint32(blob[:4]) != spirvMagic {
		return fmt.Errorf("missing SPIR-V magic number")
	}
	return nil
}

// Watch starts the filesystem watcher over the shader directory. Safe to skip
// entirely; Load works without it.
func (sl *ShaderLibrary) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(sl.dir); err != nil {
		watcher.Close()
		return err
	}
	sl.watcher = watcher

	go sl.run()
	return nil
}

// Reloads delivers the logical names of shaders rewritten on disk. Only
// populated after Watch.
func (sl *ShaderLibrary) Reloads() <-chan string {
	return sl.reloads
}

func (sl *ShaderLibrary) run() {
	for {
		select {
		case event, ok := <-sl.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := shaderName(event.Name)
			if name == "" {
				continue
			}
			sl.invalidate(name)
			core.LogInfo("shader %s changed on disk", name)
			select {
			case sl.reloads <- name:
			default:
				// A slow consumer drops notifications rather than
				// stalling the watcher.
			}

		case err, ok := <-sl.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sl.done:
			return
		}
	}
}

func (sl *ShaderLibrary) invalidate(name string) {
	sl.mutex.Lock()
	delete(sl.blobs, name)
	sl.mutex.Unlock()
}

func (sl *ShaderLibrary) Close() error {
	close(sl.done)
	if sl.watcher != nil {
		return sl.watcher.Close()
	}
	return nil
}
