// Package binding keeps bind groups pointing at the current buffer of
// each dynamic data stream.
//
// When a stream reallocates, its bind group still references the buffer
// that was just released. Rebind must run for that stream before the next
// draw that reads it; Validate and Check detect the case where it did not.
package binding

import (
	"errors"
	"fmt"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
)

// Stream identifies one dynamic data stream of a workspace.
type Stream uint8

const (
	Lines Stream = iota
	Camera
	World
	Transforms
	numStreams
)

var streamNames = [...]string{
	Lines:      "lines",
	Camera:     "camera",
	World:      "world",
	Transforms: "transforms",
}

func (s Stream) String() string {
	if s < numStreams {
		return streamNames[s]
	}
	return fmt.Sprintf("Stream(%d)", uint8(s))
}

// Streams lists every stream in order.
func Streams() []Stream {
	return []Stream{Lines, Camera, World, Transforms}
}

// ErrNotRegistered is returned for a stream with no registered entry.
var ErrNotRegistered = errors.New("binding: stream not registered")

// Entry is the binding state of one stream.
type Entry struct {
	Stream Stream

	// Layout is the bind group layout the buffer is placed in. An empty
	// layout means the buffer is bound directly as a vertex buffer.
	Layout  []gpu.BindingKind
	Binding uint32

	Group  gpu.BindGroup
	Buffer gpu.Buffer

	// Epoch counts rebinds.
	Epoch uint64
}

// Table holds the binding entries of one workspace.
type Table struct {
	dev     gpu.Device
	entries [numStreams]*Entry
}

// NewTable creates an empty table for dev.
func NewTable(dev gpu.Device) *Table {
	return &Table{dev: dev}
}

// Register declares how stream is bound.
func (t *Table) Register(stream Stream, layout []gpu.BindingKind, binding uint32) {
	if stream >= numStreams {
		panic(fmt.Sprintf("binding: register %s", stream))
	}
	if len(layout) > 0 && int(binding) >= len(layout) {
		panic(fmt.Sprintf("binding: register %s: binding %d outside layout", stream, binding))
	}
	t.entries[stream] = &Entry{Stream: stream, Layout: layout, Binding: binding}
}

func (t *Table) entry(stream Stream) (*Entry, error) {
	if stream >= numStreams || t.entries[stream] == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, stream)
	}
	return t.entries[stream], nil
}

// Rebind points stream's entry at buf. The bind group is created on the
// first call and updated in place afterwards.
func (t *Table) Rebind(stream Stream, buf gpu.Buffer) error {
	e, err := t.entry(stream)
	if err != nil {
		return err
	}
	if len(e.Layout) > 0 {
		entries := []gpu.BindingEntry{{Binding: e.Binding, Buffer: buf}}
		if e.Group.IsZero() {
			g, err := t.dev.CreateBindGroup(gpu.BindGroupDesc{
				Label:   stream.String(),
				Layout:  e.Layout,
				Entries: entries,
			})
			if err != nil {
				return fmt.Errorf("binding: create %s group: %w", stream, err)
			}
			e.Group = g
		} else if err := t.dev.UpdateBindGroup(e.Group, entries); err != nil {
			return fmt.Errorf("binding: update %s group: %w", stream, err)
		}
	}
	e.Buffer = buf
	e.Epoch++
	logging.Logger().Debug("rebound stream", "stream", stream, "epoch", e.Epoch)
	return nil
}

// Check reports ErrStaleBinding unless stream is bound to current.
func (t *Table) Check(stream Stream, current gpu.Buffer) error {
	e, err := t.entry(stream)
	if err != nil {
		return err
	}
	if e.Buffer.ID != current.ID {
		return fmt.Errorf("binding %s holds %v, stream buffer is %v: %w", stream, e.Buffer.ID, current.ID, gpu.ErrStaleBinding)
	}
	return nil
}

// Validate reports ErrStaleBinding for the first bound entry whose
// buffer is no longer alive on the device. Entries that were never bound
// have no group to draw through and are skipped.
func (t *Table) Validate() error {
	for _, e := range t.entries {
		if e == nil || e.Epoch == 0 {
			continue
		}
		if !t.dev.BufferAlive(e.Buffer) {
			return fmt.Errorf("binding %s (epoch %d): %w", e.Stream, e.Epoch, gpu.ErrStaleBinding)
		}
	}
	return nil
}

// Group returns the bind group of stream, zero until the first Rebind or
// for vertex-only streams.
func (t *Table) Group(stream Stream) gpu.BindGroup {
	if e, err := t.entry(stream); err == nil {
		return e.Group
	}
	return gpu.BindGroup{}
}

// Entry returns a copy of stream's entry.
func (t *Table) Entry(stream Stream) (Entry, error) {
	e, err := t.entry(stream)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

// Release destroys the table's bind groups.
func (t *Table) Release() {
	for _, e := range t.entries {
		if e != nil && !e.Group.IsZero() {
			t.dev.DestroyBindGroup(e.Group)
			e.Group = gpu.BindGroup{}
		}
	}
}
