package halgpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/taigrr/lumen/pkg/gpu"
)

const maxBindGroups = 4

// encoder translates a Recording into hal commands. It runs with d.mu
// held and applies the same ordering and binding checks as the software
// device.
type encoder struct {
	d    *Device
	enc  hal.CommandEncoder
	pass hal.RenderPassEncoder

	pipeline *pipeline
	groups   [maxBindGroups]*bindGroup
	vertex   *buffer
	vertexID gpu.Handle

	// pending holds transfer destinations not yet covered by a barrier.
	pending map[gpu.Handle]*buffer
}

func (e *encoder) validate() bool { return !e.d.opts.SkipValidation }

func (e *encoder) CopyBuffer(c gpu.CopyBufferCommand) error {
	src, ok := e.d.buffers.Get(c.Src.ID)
	if !ok {
		return fmt.Errorf("copy source %v: %w", c.Src.ID, gpu.ErrStaleHandle)
	}
	dst, ok := e.d.buffers.Get(c.Dst.ID)
	if !ok {
		return fmt.Errorf("copy destination %v: %w", c.Dst.ID, gpu.ErrStaleHandle)
	}
	if e.validate() {
		if !src.desc.Usage.Has(gpu.UsageTransferSrc) || !dst.desc.Usage.Has(gpu.UsageTransferDst) {
			return fmt.Errorf("copy %q to %q: %w", src.desc.Label, dst.desc.Label, gpu.ErrUsage)
		}
	}
	if c.Size > src.desc.Size || c.Size > dst.desc.Size {
		return fmt.Errorf("copy %d bytes from %q (%d) to %q (%d): %w",
			c.Size, src.desc.Label, src.desc.Size, dst.desc.Label, dst.desc.Size, gpu.ErrOutOfRange)
	}
	e.enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{Size: c.Size}})
	e.pending[c.Dst.ID] = dst
	return nil
}

func (e *encoder) Barrier(c gpu.BarrierCommand) error {
	if c.Src&gpu.StageTransfer == 0 || c.Dst&(gpu.StageVertexInput|gpu.StageShaderRead) == 0 {
		return nil
	}
	barriers := make([]hal.BufferBarrier, 0, len(e.pending))
	for _, b := range e.pending {
		barriers = append(barriers, hal.BufferBarrier{
			Buffer: b.raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: gputypes.BufferUsageCopyDst,
				NewUsage: halBufferUsage(b.desc) &^ gputypes.BufferUsageCopyDst,
			},
		})
	}
	e.enc.TransitionBuffers(barriers)
	clear(e.pending)
	return nil
}

func (e *encoder) BeginPass(c gpu.BeginPassCommand) error {
	color, ok := e.d.textures.Get(c.Target.Color.ID)
	if !ok || color.desc.Format != gpu.FormatRGBA8 {
		return fmt.Errorf("pass color target %v: %w", c.Target.Color.ID, gpu.ErrStaleHandle)
	}
	desc := &hal.RenderPassDescriptor{
		Label: color.desc.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       color.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: c.Clear.R, G: c.Clear.G, B: c.Clear.B, A: c.Clear.A},
		}},
	}
	if !c.Target.Depth.IsZero() {
		depth, ok := e.d.textures.Get(c.Target.Depth.ID)
		if !ok || depth.desc.Format != gpu.FormatDepth32 {
			return fmt.Errorf("pass depth target %v: %w", c.Target.Depth.ID, gpu.ErrStaleHandle)
		}
		if depth.desc.Width != color.desc.Width || depth.desc.Height != color.desc.Height {
			return fmt.Errorf("depth %dx%d does not match color %dx%d: %w",
				depth.desc.Width, depth.desc.Height, color.desc.Width, color.desc.Height, gpu.ErrOutOfRange)
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            depth.view,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: c.ClearDepth,
		}
	}
	e.pass = e.enc.BeginRenderPass(desc)
	return nil
}

func (e *encoder) SetViewport(c gpu.SetViewportCommand) error {
	e.pass.SetViewport(0, 0, float32(c.Width), float32(c.Height), 0, 1)
	return nil
}

func (e *encoder) SetPipeline(c gpu.SetPipelineCommand) error {
	p, ok := e.d.pipelines.Get(c.Pipeline.ID)
	if !ok {
		return fmt.Errorf("pipeline %v: %w", c.Pipeline.ID, gpu.ErrStaleHandle)
	}
	e.pipeline = p
	e.pass.SetPipeline(p.raw)
	if p.pushGroup != nil {
		e.pass.SetBindGroup(uint32(len(p.desc.Groups)), p.pushGroup, nil)
	}
	return nil
}

func (e *encoder) SetBindGroup(c gpu.SetBindGroupCommand) error {
	if c.Index >= maxBindGroups {
		return fmt.Errorf("bind group index %d: %w", c.Index, gpu.ErrOutOfRange)
	}
	g, ok := e.d.groups.Get(c.Group.ID)
	if !ok {
		return fmt.Errorf("bind group %v: %w", c.Group.ID, gpu.ErrStaleBinding)
	}
	e.groups[c.Index] = g
	e.pass.SetBindGroup(c.Index, g.raw, nil)
	return nil
}

func (e *encoder) SetVertexBuffer(c gpu.SetVertexBufferCommand) error {
	b, ok := e.d.buffers.Get(c.Buffer.ID)
	if !ok {
		return fmt.Errorf("vertex buffer %v: %w", c.Buffer.ID, gpu.ErrStaleBinding)
	}
	e.vertex, e.vertexID = b, c.Buffer.ID
	e.pass.SetVertexBuffer(0, b.raw, c.Offset)
	return nil
}

// PushConstants writes the bytes to the bound pipeline's push buffer. The
// write lands before the submission executes, so only the last value
// pushed to a pipeline in one recording is seen by its draws.
// TODO: suballocate push data per draw from a ring buffer to lift this.
func (e *encoder) PushConstants(c gpu.PushConstantsCommand) error {
	if e.pipeline == nil {
		return gpu.ErrNoPipeline
	}
	if e.pipeline.push == nil || len(c.Data) > int(e.pipeline.desc.PushConstants) {
		return fmt.Errorf("%d push constant bytes for pipeline %q: %w", len(c.Data), e.pipeline.desc.Label, gpu.ErrOutOfRange)
	}
	return e.d.queue.WriteBuffer(e.pipeline.push, 0, c.Data)
}

// checkReads reports a stale or unsynchronized resource the draw would
// read.
func (e *encoder) checkReads() error {
	p := e.pipeline
	if p.desc.Vertex != nil {
		if e.vertex == nil {
			return fmt.Errorf("pipeline %q draws without a vertex buffer: %w", p.desc.Label, gpu.ErrOutOfRange)
		}
		if _, ok := e.pending[e.vertexID]; ok && e.validate() {
			return fmt.Errorf("vertex buffer %q: %w", e.vertex.desc.Label, gpu.ErrMissingBarrier)
		}
	}
	for i := range p.desc.Groups {
		g := e.groups[i]
		if g == nil {
			return fmt.Errorf("pipeline %q: bind group %d not set: %w", p.desc.Label, i, gpu.ErrStaleBinding)
		}
		for _, entry := range g.entries {
			switch {
			case !entry.Buffer.IsZero():
				if !e.d.buffers.Live(entry.Buffer.ID) {
					return fmt.Errorf("bind group %q binding %d: %w", g.desc.Label, entry.Binding, gpu.ErrStaleBinding)
				}
				if _, ok := e.pending[entry.Buffer.ID]; ok && e.validate() {
					return fmt.Errorf("bind group %q binding %d: %w", g.desc.Label, entry.Binding, gpu.ErrMissingBarrier)
				}
			case !entry.Image.IsZero():
				if !e.d.textures.Live(entry.Image.ID) {
					return fmt.Errorf("bind group %q binding %d: %w", g.desc.Label, entry.Binding, gpu.ErrStaleBinding)
				}
			}
		}
	}
	return nil
}

func (e *encoder) Draw(c gpu.DrawCommand) error {
	if e.pipeline == nil {
		return gpu.ErrNoPipeline
	}
	if err := e.checkReads(); err != nil {
		return err
	}
	e.pass.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
	return nil
}

func (e *encoder) EndPass() error {
	e.pass.End()
	e.pass = nil
	e.pipeline = nil
	e.vertex, e.vertexID = nil, gpu.Handle{}
	e.groups = [maxBindGroups]*bindGroup{}
	return nil
}

// Submit implements gpu.Device. The recording is encoded and queued; the
// fence is signaled once the queue reports the submission complete.
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
			return fmt.Errorf("halgpu: submit fence: %w", gpu.ErrStaleHandle)
		}
		if fc.signaled && !d.opts.SkipValidation {
			return gpu.ErrFenceSignaled
		}
	}
	for _, sems := range [][]gpu.Semaphore{info.Wait, info.Signal} {
		for _, s := range sems {
			if !d.semaphores.Live(s.ID) {
				return fmt.Errorf("halgpu: submit semaphore: %w", gpu.ErrStaleHandle)
			}
		}
	}
	d.reclaim()

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: r.Label()})
	if err != nil {
		return fmt.Errorf("halgpu: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(r.Label()); err != nil {
		enc.Destroy()
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}

	ex := &encoder{d: d, enc: enc, pending: make(map[gpu.Handle]*buffer)}
	if err := r.Playback(ex); err != nil {
		if ex.pass != nil {
			ex.pass.End()
		}
		enc.DiscardEncoding()
		enc.Destroy()
		return err
	}

	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return fmt.Errorf("halgpu: end encoding: %w", err)
	}
	idx, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		enc.Destroy()
		return fmt.Errorf("halgpu: submit: %w", err)
	}
	d.inflight = append(d.inflight, inflight{submission: idx, encoder: enc, cmd: cmd})
	if fc != nil {
		fc.submission = idx
	}
	return nil
}

// ReadImage implements gpu.ImageReader. It copies the image into a
// mappable buffer and waits for the copy.
func (d *Device) ReadImage(img gpu.Image) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures.Get(img.ID)
	if !ok {
		return nil, fmt.Errorf("halgpu: read image: %w", gpu.ErrStaleHandle)
	}
	if t.desc.Format != gpu.FormatRGBA8 {
		return nil, fmt.Errorf("halgpu: read depth image %q: %w", t.desc.Label, gpu.ErrUsage)
	}

	w, h := t.desc.Width, t.desc.Height
	// Copy rows must be 256 byte aligned.
	stride := (uint32(w)*4 + 255) &^ 255
	size := uint64(stride) * uint64(h)
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: t.desc.Label + " readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: readback buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(buf)

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create encoder: %w", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	enc.CopyTextureToBuffer(t.raw, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: stride, RowsPerImage: uint32(h)},
		TextureBase:  hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("halgpu: end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmd)
	if _, err := d.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return nil, fmt.Errorf("halgpu: submit readback: %w", err)
	}
	if err := d.dev.WaitIdle(); err != nil {
		return nil, fmt.Errorf("halgpu: wait readback: %w", err)
	}

	m, err := d.dev.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("halgpu: map readback: %w", err)
	}
	defer d.dev.UnmapBuffer(buf)
	src := unsafeBytes(m.Ptr, size)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], src[uint64(y)*uint64(stride):])
	}
	return out, nil
}
