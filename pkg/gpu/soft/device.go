// Package soft implements gpu.Device on the CPU.
//
// Submissions execute synchronously through the software rasterizer, so
// a fence is signaled by the time Submit returns. Unless validation is
// skipped, the device rejects draws that read a transfer destination
// without an intervening barrier and draws that read through bindings to
// destroyed resources.
package soft

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/render"
)

// Name is the backend name registered with gpu.Register.
const Name = "soft"

func init() {
	gpu.Register(Name, func(opts gpu.Options) (gpu.Device, error) {
		return New(opts), nil
	})
}

// ErrUnknownProgram is returned for a pipeline whose program the device
// does not implement.
var ErrUnknownProgram = errors.New("soft: unknown program")

type buffer struct {
	desc gpu.BufferDesc
	data []byte
}

type img struct {
	desc  gpu.ImageDesc
	fb    *render.Framebuffer
	depth []float32
}

// texture views the image's pixels for sampling without copying.
func (i *img) texture() *render.Texture {
	return &render.Texture{
		Width:  i.fb.Width,
		Height: i.fb.Height,
		Pixels: i.fb.Pixels,
	}
}

type pipeline struct {
	desc    gpu.PipelineDesc
	program program
}

type bindGroup struct {
	desc    gpu.BindGroupDesc
	entries []gpu.BindingEntry
}

type fence struct{ signaled bool }

type semaphore struct{ signaled bool }

// Stats counts the work in a submission.
type Stats struct {
	Submits   int
	Copies    int
	Bytes     uint64
	Barriers  int
	Passes    int
	Draws     int
	Fragments int
}

func (s *Stats) add(o Stats) {
	s.Submits += o.Submits
	s.Copies += o.Copies
	s.Bytes += o.Bytes
	s.Barriers += o.Barriers
	s.Passes += o.Passes
	s.Draws += o.Draws
	s.Fragments += o.Fragments
}

// Device is a software gpu.Device. It is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	opts gpu.Options

	buffers    gpu.Arena[*buffer]
	images     gpu.Arena[*img]
	pipelines  gpu.Arena[*pipeline]
	groups     gpu.Arena[*bindGroup]
	fences     gpu.Arena[*fence]
	semaphores gpu.Arena[*semaphore]

	allocated uint64
	closed    bool

	last   Stats
	totals Stats
	trace  []gpu.CommandType
}

var (
	_ gpu.Device      = (*Device)(nil)
	_ gpu.ImageReader = (*Device)(nil)
)

// New creates a software device.
func New(opts gpu.Options) *Device {
	logging.Logger().Info("gpu device opened", "backend", Name, "validation", !opts.SkipValidation)
	return &Device{opts: opts}
}

// Name implements gpu.Device.
func (d *Device) Name() string { return Name }

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.Buffer{}, gpu.ErrClosed
	}
	if desc.Size == 0 {
		return gpu.Buffer{}, fmt.Errorf("soft: create buffer %q: zero size: %w", desc.Label, gpu.ErrOutOfRange)
	}
	if limit := d.opts.MemoryLimit; limit > 0 && d.allocated+desc.Size > limit {
		return gpu.Buffer{}, fmt.Errorf("soft: create buffer %q (%d bytes): %w", desc.Label, desc.Size, gpu.ErrOutOfMemory)
	}
	d.allocated += desc.Size
	id := d.buffers.Insert(&buffer{desc: desc, data: make([]byte, desc.Size)})
	return gpu.Buffer{ID: id, Size: desc.Size}, nil
}

// DestroyBuffer implements gpu.Device.
func (d *Device) DestroyBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers.Remove(b.ID); ok {
		d.allocated -= buf.desc.Size
	}
}

// BufferAlive implements gpu.Device.
func (d *Device) BufferAlive(b gpu.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers.Live(b.ID)
}

// Map implements gpu.Device.
func (d *Device) Map(b gpu.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers.Get(b.ID)
	if !ok {
		return nil, fmt.Errorf("soft: map buffer %v: %w", b.ID, gpu.ErrStaleHandle)
	}
	if buf.desc.Memory != gpu.MemoryHost {
		return nil, fmt.Errorf("soft: map buffer %q: %w", buf.desc.Label, gpu.ErrNotMappable)
	}
	return buf.data, nil
}

// CreateImage implements gpu.Device.
func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.Image{}, gpu.ErrClosed
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpu.Image{}, fmt.Errorf("soft: create image %q %dx%d: %w", desc.Label, desc.Width, desc.Height, gpu.ErrOutOfRange)
	}
	im := &img{desc: desc}
	if desc.Format == gpu.FormatDepth32 {
		im.depth = make([]float32, desc.Width*desc.Height)
	} else {
		im.fb = render.NewFramebuffer(desc.Width, desc.Height)
	}
	id := d.images.Insert(im)
	return gpu.Image{ID: id, Width: desc.Width, Height: desc.Height, Format: desc.Format}, nil
}

// DestroyImage implements gpu.Device.
func (d *Device) DestroyImage(i gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images.Remove(i.ID)
}

// TransferToBuffer implements gpu.Device.
func (d *Device) TransferToBuffer(b gpu.Buffer, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers.Get(b.ID)
	if !ok {
		return fmt.Errorf("soft: transfer to buffer: %w", gpu.ErrStaleHandle)
	}
	if uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("soft: transfer %d bytes to %q (%d bytes): %w", len(data), buf.desc.Label, buf.desc.Size, gpu.ErrOutOfRange)
	}
	copy(buf.data, data)
	return nil
}

// TransferToImage implements gpu.Device.
func (d *Device) TransferToImage(i gpu.Image, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	im, ok := d.images.Get(i.ID)
	if !ok {
		return fmt.Errorf("soft: transfer to image: %w", gpu.ErrStaleHandle)
	}
	if im.fb == nil {
		return fmt.Errorf("soft: transfer to depth image %q: %w", im.desc.Label, gpu.ErrUsage)
	}
	if want := len(im.fb.Pixels) * 4; len(data) != want {
		return fmt.Errorf("soft: transfer %d bytes to image %q, want %d: %w", len(data), im.desc.Label, want, gpu.ErrOutOfRange)
	}
	for p := range im.fb.Pixels {
		o := p * 4
		im.fb.Pixels[p] = render.Color{R: data[o], G: data[o+1], B: data[o+2], A: data[o+3]}
	}
	return nil
}

// CreatePipeline implements gpu.Device.
func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prog, ok := programs[desc.Program]
	if !ok {
		return gpu.Pipeline{}, fmt.Errorf("soft: pipeline %q: %w %q", desc.Label, ErrUnknownProgram, desc.Program)
	}
	id := d.pipelines.Insert(&pipeline{desc: desc, program: prog})
	return gpu.Pipeline{ID: id}, nil
}

// DestroyPipeline implements gpu.Device.
func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelines.Remove(p.ID)
}

// checkEntries validates bind group entries against a layout. Called with
// d.mu held.
func (d *Device) checkEntries(label string, layout []gpu.BindingKind, entries []gpu.BindingEntry) error {
	for _, e := range entries {
		if int(e.Binding) >= len(layout) {
			return fmt.Errorf("soft: bind group %q: binding %d outside layout: %w", label, e.Binding, gpu.ErrOutOfRange)
		}
		switch kind := layout[e.Binding]; kind {
		case gpu.BindUniform, gpu.BindStorage:
			buf, ok := d.buffers.Get(e.Buffer.ID)
			if !ok {
				return fmt.Errorf("soft: bind group %q binding %d: %w", label, e.Binding, gpu.ErrStaleHandle)
			}
			want := gpu.UsageUniform
			if kind == gpu.BindStorage {
				want = gpu.UsageStorage
			}
			if !d.opts.SkipValidation && !buf.desc.Usage.Has(want) {
				return fmt.Errorf("soft: bind group %q binding %d needs %s usage: %w", label, e.Binding, kind, gpu.ErrUsage)
			}
		case gpu.BindTexture:
			if !d.images.Live(e.Image.ID) {
				return fmt.Errorf("soft: bind group %q binding %d: %w", label, e.Binding, gpu.ErrStaleHandle)
			}
		}
	}
	return nil
}

// CreateBindGroup implements gpu.Device.
func (d *Device) CreateBindGroup(desc gpu.BindGroupDesc) (gpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkEntries(desc.Label, desc.Layout, desc.Entries); err != nil {
		return gpu.BindGroup{}, err
	}
	g := &bindGroup{desc: desc, entries: make([]gpu.BindingEntry, len(desc.Layout))}
	for _, e := range desc.Entries {
		g.entries[e.Binding] = e
	}
	return gpu.BindGroup{ID: d.groups.Insert(g)}, nil
}

// UpdateBindGroup implements gpu.Device.
func (d *Device) UpdateBindGroup(bg gpu.BindGroup, entries []gpu.BindingEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups.Get(bg.ID)
	if !ok {
		return fmt.Errorf("soft: update bind group: %w", gpu.ErrStaleHandle)
	}
	if err := d.checkEntries(g.desc.Label, g.desc.Layout, entries); err != nil {
		return err
	}
	for _, e := range entries {
		g.entries[e.Binding] = e
	}
	logging.Logger().Debug("bind group updated", "label", g.desc.Label, "entries", len(entries))
	return nil
}

// DestroyBindGroup implements gpu.Device.
func (d *Device) DestroyBindGroup(bg gpu.BindGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups.Remove(bg.ID)
}

// CreateFence implements gpu.Device.
func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Fence{ID: d.fences.Insert(&fence{signaled: signaled})}, nil
}

// WaitFence implements gpu.Device. Work completes inside Submit, so a
// fence that is not yet signaled never will be.
func (d *Device) WaitFence(ctx context.Context, f gpu.Fence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	fc, ok := d.fences.Get(f.ID)
	if !ok {
		return fmt.Errorf("soft: wait fence: %w", gpu.ErrStaleHandle)
	}
	if !fc.signaled {
		return gpu.ErrDeadlock
	}
	return nil
}

// ResetFence implements gpu.Device.
func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fc, ok := d.fences.Get(f.ID)
	if !ok {
		return fmt.Errorf("soft: reset fence: %w", gpu.ErrStaleHandle)
	}
	fc.signaled = false
	return nil
}

// DestroyFence implements gpu.Device.
func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences.Remove(f.ID)
}

// CreateSemaphore implements gpu.Device.
func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore{ID: d.semaphores.Insert(&semaphore{})}, nil
}

// DestroySemaphore implements gpu.Device.
func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.semaphores.Remove(s.ID)
}

// Submit implements gpu.Device. The recording runs to completion before
// Submit returns; semaphores and the fence are signaled only on success.
func (d *Device) Submit(r *gpu.Recording, info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.ErrClosed
	}

	var fc *fence
	if !info.Fence.ID.IsZero() {
		var ok bool
		if fc, ok = d.fences.Get(info.Fence.ID); !ok {
			return fmt.Errorf("soft: submit fence: %w", gpu.ErrStaleHandle)
		}
		if fc.signaled && !d.opts.SkipValidation {
			return gpu.ErrFenceSignaled
		}
	}
	for _, s := range info.Wait {
		sem, ok := d.semaphores.Get(s.ID)
		if !ok {
			return fmt.Errorf("soft: submit wait semaphore: %w", gpu.ErrStaleHandle)
		}
		sem.signaled = false
	}

	ex := newExecutor(d)
	err := r.Playback(ex)
	ex.stats.Submits = 1
	d.last = ex.stats
	d.totals.add(ex.stats)
	d.trace = append(d.trace[:0], ex.trace...)
	if err != nil {
		return err
	}

	for _, s := range info.Signal {
		if sem, ok := d.semaphores.Get(s.ID); ok {
			sem.signaled = true
		}
	}
	if fc != nil {
		fc.signaled = true
	}
	return nil
}

// WaitIdle implements gpu.Device.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpu.ErrClosed
	}
	return nil
}

// Close implements gpu.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// ReadImage implements gpu.ImageReader.
func (d *Device) ReadImage(i gpu.Image) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	im, ok := d.images.Get(i.ID)
	if !ok {
		return nil, fmt.Errorf("soft: read image: %w", gpu.ErrStaleHandle)
	}
	if im.fb == nil {
		return nil, fmt.Errorf("soft: read depth image %q: %w", im.desc.Label, gpu.ErrUsage)
	}
	return im.fb.ToImage(), nil
}

// LastStats returns the counters of the most recent submission.
func (d *Device) LastStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// TotalStats returns the counters summed over every submission.
func (d *Device) TotalStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals
}

// Trace returns the command types executed by the most recent submission.
func (d *Device) Trace() []gpu.CommandType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.CommandType(nil), d.trace...)
}

// Allocated returns the bytes of live buffers.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Buffers returns the number of live buffers.
func (d *Device) Buffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers.Len()
}
