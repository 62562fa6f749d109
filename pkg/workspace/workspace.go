// Package workspace holds the per-frame-in-flight resources of the
// renderer: a command recorder, the dynamic data streams and the bind
// groups that reference them.
package workspace

import (
	"errors"
	"fmt"

	"github.com/taigrr/lumen/pkg/binding"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/stream"
)

// ErrInvalidSize is returned when creating a ring with no workspaces.
var ErrInvalidSize = errors.New("workspace: ring needs at least one workspace")

var streamUsage = [...]gpu.BufferUsage{
	binding.Lines:      gpu.UsageVertex,
	binding.Camera:     gpu.UsageUniform,
	binding.World:      gpu.UsageUniform,
	binding.Transforms: gpu.UsageStorage,
}

// Workspace is the state one frame in flight records into.
type Workspace struct {
	Recorder *gpu.Recorder
	Bindings *binding.Table

	streams [len(streamUsage)]*stream.Stream
}

// New creates a workspace with empty streams.
func New(dev gpu.Device, label string) *Workspace {
	ws := &Workspace{
		Recorder: gpu.NewRecorder(label),
		Bindings: binding.NewTable(dev),
	}
	for _, s := range binding.Streams() {
		ws.streams[s] = stream.New(dev, fmt.Sprintf("%s %s", label, s), streamUsage[s])
	}
	ws.Bindings.Register(binding.Lines, nil, 0)
	ws.Bindings.Register(binding.Camera, []gpu.BindingKind{gpu.BindUniform}, 0)
	ws.Bindings.Register(binding.World, []gpu.BindingKind{gpu.BindUniform}, 0)
	ws.Bindings.Register(binding.Transforms, []gpu.BindingKind{gpu.BindStorage}, 0)
	return ws
}

// Stream returns the buffer pair of s.
func (ws *Workspace) Stream(s binding.Stream) *stream.Stream {
	return ws.streams[s]
}

// Rebind points s's binding at the stream's current device buffer.
func (ws *Workspace) Rebind(s binding.Stream) error {
	return ws.Bindings.Rebind(s, ws.streams[s].Device())
}

// Stage grows s to hold data, rebinding when the stream reallocates, and
// writes data to the staging buffer. It reports whether the stream
// reallocated.
func (ws *Workspace) Stage(s binding.Stream, data []byte) (bool, error) {
	st := ws.streams[s]
	grew, err := st.EnsureCapacity(uint64(len(data)))
	if err != nil {
		return false, err
	}
	if grew {
		if err := ws.Rebind(s); err != nil {
			return true, err
		}
	}
	return grew, st.Write(0, data)
}

// Validate reports gpu.ErrStaleBinding if any allocated stream's binding
// does not reference its current device buffer.
func (ws *Workspace) Validate() error {
	for _, s := range binding.Streams() {
		st := ws.streams[s]
		if st.Capacity() == 0 {
			continue
		}
		if err := ws.Bindings.Check(s, st.Device()); err != nil {
			return err
		}
	}
	return ws.Bindings.Validate()
}

// Release frees the streams and bind groups.
func (ws *Workspace) Release() {
	ws.Bindings.Release()
	for _, st := range ws.streams {
		st.Release()
	}
	ws.Recorder.Reset()
}

// Ring is a fixed set of workspaces indexed by the caller.
type Ring struct {
	slots []*Workspace
}

// NewRing creates n workspaces on dev.
func NewRing(dev gpu.Device, n int) (*Ring, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	r := &Ring{slots: make([]*Workspace, n)}
	for i := range r.slots {
		r.slots[i] = New(dev, fmt.Sprintf("workspace %d", i))
	}
	return r, nil
}

// Len returns the number of workspaces.
func (r *Ring) Len() int { return len(r.slots) }

// At returns workspace i.
func (r *Ring) At(i int) (*Workspace, error) {
	if i < 0 || i >= len(r.slots) {
		return nil, fmt.Errorf("workspace %d of %d: %w", i, len(r.slots), gpu.ErrOutOfRange)
	}
	return r.slots[i], nil
}

// Release frees every workspace.
func (r *Ring) Release() {
	for _, ws := range r.slots {
		ws.Release()
	}
}
