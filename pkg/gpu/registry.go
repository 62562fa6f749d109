package gpu

import (
	"fmt"
	"sort"
	"sync"
)

// Options configures a device at Open.
type Options struct {
	// SkipValidation disables the ordering and binding checks backends
	// perform on each submission.
	SkipValidation bool

	// CompileShaders asks hardware backends to compile WGSL to SPIR-V
	// before creating shader modules.
	CompileShaders bool

	// MemoryLimit caps the total bytes of buffers a backend will allocate.
	// Zero means no limit.
	MemoryLimit uint64
}

// Factory opens a device.
type Factory func(opts Options) (Device, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register makes a device backend available by name. It is typically
// called from init in the backend package:
//
//	func init() {
//	    gpu.Register("soft", Open)
//	}
//
// Register panics if factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("gpu: Register factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("gpu: Register called twice for " + name)
	}
	backends[name] = factory
}

// Unregister removes a backend. It is a no-op for unknown names.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Open opens a device from the named backend.
func Open(name string, opts Options) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (forgotten import?)", ErrUnknownBackend, name)
	}
	return factory(opts)
}

// Backends returns the sorted names of registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
