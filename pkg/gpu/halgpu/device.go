// Package halgpu implements gpu.Device on the gogpu wgpu hardware
// abstraction layer.
//
// Resources live in generation-tagged arenas like every other backend;
// each slot owns the hal object behind it. Bind group layouts are created
// once per distinct layout and cached. Hal bind groups are immutable, so
// UpdateBindGroup replaces the hal object behind a stable handle.
//
// The hal queue has no fence or semaphore objects of its own. A gpu.Fence
// records the submission index it was signaled by and is complete once the
// queue reports that index done. Semaphores are bookkeeping only: there is
// a single queue, so submission order is execution order.
//
// Backends register themselves with hal from init. Import
// github.com/gogpu/wgpu/hal/allbackends in the executable to make the
// platform's backends available.
package halgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
)

// Name is the backend name registered with gpu.Register.
const Name = "hal"

func init() {
	gpu.Register(Name, func(opts gpu.Options) (gpu.Device, error) {
		b, err := hal.SelectBestBackend()
		if err != nil {
			return nil, fmt.Errorf("halgpu: %w", err)
		}
		return Open(b, opts)
	})
}

// ErrNoAdapter is returned when the backend exposes no adapters.
var ErrNoAdapter = errors.New("halgpu: no adapters")

// pollInterval is how often WaitFence checks the queue.
const pollInterval = time.Millisecond

type buffer struct {
	desc   gpu.BufferDesc
	raw    hal.Buffer
	mapped []byte
}

type texture struct {
	desc gpu.ImageDesc
	raw  hal.Texture
	view hal.TextureView
}

type pipeline struct {
	desc    gpu.PipelineDesc
	layout  hal.PipelineLayout
	modules []hal.ShaderModule
	raw     hal.RenderPipeline

	// push backs the pipeline's push constants when it has any.
	push      hal.Buffer
	pushGroup hal.BindGroup
}

type bindGroup struct {
	desc    gpu.BindGroupDesc
	entries []gpu.BindingEntry
	layout  hal.BindGroupLayout
	raw     hal.BindGroup
}

type fence struct {
	signaled   bool
	submission uint64
}

// inflight is a finished command buffer waiting for its submission to
// complete before its encoder can be reclaimed.
type inflight struct {
	submission uint64
	encoder    hal.CommandEncoder
	cmd        hal.CommandBuffer
}

// Device is a gpu.Device on a hal device and queue. It is safe for
// concurrent use.
type Device struct {
	mu   sync.Mutex
	opts gpu.Options

	instance hal.Instance
	adapter  string
	dev      hal.Device
	queue    hal.Queue

	buffers    gpu.Arena[*buffer]
	textures   gpu.Arena[*texture]
	pipelines  gpu.Arena[*pipeline]
	groups     gpu.Arena[*bindGroup]
	fences     gpu.Arena[*fence]
	semaphores gpu.Arena[struct{}]

	layouts   map[string]hal.BindGroupLayout
	inflight  []inflight
	allocated uint64
	closed    bool
}

var (
	_ gpu.Device      = (*Device)(nil)
	_ gpu.ImageReader = (*Device)(nil)
)

// Open creates an instance of backend, opens its first hardware adapter
// (or the first adapter when there is no discrete or integrated GPU) and
// wraps the resulting device.
func Open(backend hal.Backend, opts gpu.Options) (*Device, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}

	logging.Logger().Info("gpu device opened",
		"backend", Name, "api", backend.Variant().String(), "adapter", selected.Info.Name,
		"validation", !opts.SkipValidation, "spirv", opts.CompileShaders)

	return &Device{
		opts:     opts,
		instance: instance,
		adapter:  selected.Info.Name,
		dev:      open.Device,
		queue:    open.Queue,
		layouts:  make(map[string]hal.BindGroupLayout),
	}, nil
}

// Name implements gpu.Device.
func (d *Device) Name() string { return Name }

// Adapter returns the name of the opened adapter.
func (d *Device) Adapter() string { return d.adapter }

func halBufferUsage(desc gpu.BufferDesc) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if desc.Usage.Has(gpu.UsageVertex) {
		u |= gputypes.BufferUsageVertex
	}
	if desc.Usage.Has(gpu.UsageUniform) {
		u |= gputypes.BufferUsageUniform
	}
	if desc.Usage.Has(gpu.UsageStorage) {
		u |= gputypes.BufferUsageStorage
	}
	if desc.Usage.Has(gpu.UsageTransferSrc) {
		u |= gputypes.BufferUsageCopySrc
	}
	if desc.Usage.Has(gpu.UsageTransferDst) {
		u |= gputypes.BufferUsageCopyDst
	}
	if desc.Memory == gpu.MemoryHost {
		u |= gputypes.BufferUsageMapWrite
	}
	return u
}

// CreateBuffer implements gpu.Device. Host buffers are mapped for their
// whole lifetime.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.Buffer{}, gpu.ErrClosed
	}
	if d.opts.MemoryLimit > 0 && d.allocated+desc.Size > d.opts.MemoryLimit {
		return gpu.Buffer{}, fmt.Errorf("halgpu: create buffer %q (%d bytes): %w", desc.Label, desc.Size, gpu.ErrOutOfMemory)
	}

	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: halBufferUsage(desc),
	})
	if err != nil {
		if errors.Is(err, hal.ErrDeviceOutOfMemory) {
			err = fmt.Errorf("%w: %w", gpu.ErrOutOfMemory, err)
		}
		return gpu.Buffer{}, fmt.Errorf("halgpu: create buffer %q: %w", desc.Label, err)
	}

	b := &buffer{desc: desc, raw: raw}
	if desc.Memory == gpu.MemoryHost && desc.Size > 0 {
		m, err := d.dev.MapBuffer(raw, 0, desc.Size)
		if err != nil {
			d.dev.DestroyBuffer(raw)
			return gpu.Buffer{}, fmt.Errorf("halgpu: map buffer %q: %w", desc.Label, err)
		}
		b.mapped = unsafeBytes(m.Ptr, desc.Size)
	}
	d.allocated += desc.Size
	return gpu.Buffer{ID: d.buffers.Insert(b), Size: desc.Size}, nil
}

// DestroyBuffer implements gpu.Device.
func (d *Device) DestroyBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers.Remove(b.ID)
	if !ok {
		return
	}
	if buf.mapped != nil {
		if err := d.dev.UnmapBuffer(buf.raw); err != nil {
			logging.Logger().Warn("unmap buffer", "label", buf.desc.Label, "err", err)
		}
	}
	d.dev.DestroyBuffer(buf.raw)
	d.allocated -= buf.desc.Size
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
		return nil, fmt.Errorf("halgpu: map: %w", gpu.ErrStaleHandle)
	}
	if buf.desc.Memory != gpu.MemoryHost {
		return nil, fmt.Errorf("halgpu: map %q: %w", buf.desc.Label, gpu.ErrNotMappable)
	}
	return buf.mapped, nil
}

func halFormat(f gpu.Format) gputypes.TextureFormat {
	if f == gpu.FormatDepth32 {
		return gputypes.TextureFormatDepth32Float
	}
	return gputypes.TextureFormatRGBA8Unorm
}

func halTextureUsage(desc gpu.ImageDesc) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if desc.Usage&gpu.ImageAttachment != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if desc.Usage&gpu.ImageSampled != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if desc.Usage&gpu.ImageTransferDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if desc.Format == gpu.FormatRGBA8 {
		// Color images can be read back by presenters.
		u |= gputypes.TextureUsageCopySrc
	}
	return u
}

// CreateImage implements gpu.Device.
func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.Image{}, gpu.ErrClosed
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpu.Image{}, fmt.Errorf("halgpu: create image %q %dx%d: %w", desc.Label, desc.Width, desc.Height, gpu.ErrOutOfRange)
	}

	raw, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        halFormat(desc.Format),
		Usage:         halTextureUsage(desc),
	})
	if err != nil {
		return gpu.Image{}, fmt.Errorf("halgpu: create image %q: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     desc.Label,
		Format:    halFormat(desc.Format),
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.dev.DestroyTexture(raw)
		return gpu.Image{}, fmt.Errorf("halgpu: create view of %q: %w", desc.Label, err)
	}

	id := d.textures.Insert(&texture{desc: desc, raw: raw, view: view})
	return gpu.Image{ID: id, Width: desc.Width, Height: desc.Height, Format: desc.Format}, nil
}

// DestroyImage implements gpu.Device.
func (d *Device) DestroyImage(img gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures.Remove(img.ID)
	if !ok {
		return
	}
	d.dev.DestroyTextureView(t.view)
	d.dev.DestroyTexture(t.raw)
}

// TransferToBuffer implements gpu.Device.
func (d *Device) TransferToBuffer(b gpu.Buffer, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers.Get(b.ID)
	if !ok {
		return fmt.Errorf("halgpu: transfer to buffer: %w", gpu.ErrStaleHandle)
	}
	if uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("halgpu: transfer %d bytes to %q (%d bytes): %w", len(data), buf.desc.Label, buf.desc.Size, gpu.ErrOutOfRange)
	}
	if err := d.queue.WriteBuffer(buf.raw, 0, data); err != nil {
		return fmt.Errorf("halgpu: transfer to %q: %w", buf.desc.Label, err)
	}
	return d.dev.WaitIdle()
}

// TransferToImage implements gpu.Device.
func (d *Device) TransferToImage(img gpu.Image, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures.Get(img.ID)
	if !ok {
		return fmt.Errorf("halgpu: transfer to image: %w", gpu.ErrStaleHandle)
	}
	if t.desc.Format != gpu.FormatRGBA8 {
		return fmt.Errorf("halgpu: transfer to depth image %q: %w", t.desc.Label, gpu.ErrUsage)
	}
	w, h := uint32(t.desc.Width), uint32(t.desc.Height)
	if want := int(w * h * 4); len(data) != want {
		return fmt.Errorf("halgpu: transfer %d bytes to image %q, want %d: %w", len(data), t.desc.Label, want, gpu.ErrOutOfRange)
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: w * 4, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("halgpu: transfer to %q: %w", t.desc.Label, err)
	}
	return d.dev.WaitIdle()
}

// CreateFence implements gpu.Device.
func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Fence{ID: d.fences.Insert(&fence{signaled: signaled})}, nil
}

// WaitFence implements gpu.Device. It polls the queue until the fence's
// submission completes.
func (d *Device) WaitFence(ctx context.Context, f gpu.Fence) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := d.fenceDone(f)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Device) fenceDone(f gpu.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fc, ok := d.fences.Get(f.ID)
	if !ok {
		return false, fmt.Errorf("halgpu: wait fence: %w", gpu.ErrStaleHandle)
	}
	if fc.signaled {
		return true, nil
	}
	if fc.submission == 0 {
		return false, gpu.ErrDeadlock
	}
	if d.queue.PollCompleted() >= fc.submission {
		fc.signaled = true
		d.reclaim()
		return true, nil
	}
	return false, nil
}

// ResetFence implements gpu.Device.
func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fc, ok := d.fences.Get(f.ID)
	if !ok {
		return fmt.Errorf("halgpu: reset fence: %w", gpu.ErrStaleHandle)
	}
	*fc = fence{}
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
	return gpu.Semaphore{ID: d.semaphores.Insert(struct{}{})}, nil
}

// DestroySemaphore implements gpu.Device.
func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.semaphores.Remove(s.ID)
}

// reclaim frees encoders whose submissions are complete. Called with d.mu
// held.
func (d *Device) reclaim() {
	done := d.queue.PollCompleted()
	keep := d.inflight[:0]
	for _, f := range d.inflight {
		if f.submission > done {
			keep = append(keep, f)
			continue
		}
		d.dev.FreeCommandBuffer(f.cmd)
		f.encoder.Destroy()
	}
	clear(d.inflight[len(keep):])
	d.inflight = keep
}

// WaitIdle implements gpu.Device.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.ErrClosed
	}
	if err := d.dev.WaitIdle(); err != nil {
		return fmt.Errorf("halgpu: wait idle: %w", err)
	}
	d.reclaim()
	return nil
}

// Close implements gpu.Device. Resources still alive are destroyed with
// the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	err := d.dev.WaitIdle()
	d.reclaim()

	for _, g := range d.groups.All() {
		d.dev.DestroyBindGroup(g.raw)
	}
	for _, p := range d.pipelines.All() {
		d.destroyPipeline(p)
	}
	for _, t := range d.textures.All() {
		d.dev.DestroyTextureView(t.view)
		d.dev.DestroyTexture(t.raw)
	}
	for _, b := range d.buffers.All() {
		d.dev.DestroyBuffer(b.raw)
	}
	for _, l := range d.layouts {
		d.dev.DestroyBindGroupLayout(l)
	}
	d.dev.Destroy()
	d.instance.Destroy()
	d.allocated = 0
	d.closed = true
	return err
}

// compile turns WGSL into SPIR-V words with naga.
func compile(label, source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", label, err)
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}

// unsafeBytes views n bytes of mapped memory at p.
func unsafeBytes(p unsafe.Pointer, n uint64) []byte {
	return unsafe.Slice((*byte)(p), n)
}
