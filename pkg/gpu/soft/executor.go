package soft

import (
	"fmt"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/render"
)

const maxBindGroups = 4

// executor replays one recording against the device's resources. It runs
// with the device mutex held.
type executor struct {
	d     *Device
	stats Stats
	trace []gpu.CommandType

	// pending holds buffers written by a transfer since the last barrier.
	pending map[gpu.Handle]bool

	target   *img
	depth    *img
	raster   *render.Rasterizer
	pipeline *pipeline
	groups   [maxBindGroups]gpu.BindGroup
	vertex   gpu.Buffer
	vOffset  uint64
	push     []byte
}

func newExecutor(d *Device) *executor {
	return &executor{d: d, pending: make(map[gpu.Handle]bool)}
}

func (e *executor) validate() bool { return !e.d.opts.SkipValidation }

func (e *executor) CopyBuffer(c gpu.CopyBufferCommand) error {
	e.trace = append(e.trace, gpu.CmdCopyBuffer)
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
	copy(dst.data[:c.Size], src.data[:c.Size])
	e.pending[c.Dst.ID] = true
	e.stats.Copies++
	e.stats.Bytes += c.Size
	return nil
}

func (e *executor) Barrier(c gpu.BarrierCommand) error {
	e.trace = append(e.trace, gpu.CmdBarrier)
	e.stats.Barriers++
	if c.Src&gpu.StageTransfer != 0 && c.Dst&(gpu.StageVertexInput|gpu.StageShaderRead) != 0 {
		clear(e.pending)
	}
	return nil
}

func (e *executor) BeginPass(c gpu.BeginPassCommand) error {
	e.trace = append(e.trace, gpu.CmdBeginPass)
	target, ok := e.d.images.Get(c.Target.Color.ID)
	if !ok || target.fb == nil {
		return fmt.Errorf("pass color target %v: %w", c.Target.Color.ID, gpu.ErrStaleHandle)
	}
	e.target = target
	e.depth = nil

	var depth []float32
	if !c.Target.Depth.IsZero() {
		dimg, ok := e.d.images.Get(c.Target.Depth.ID)
		if !ok || dimg.depth == nil {
			return fmt.Errorf("pass depth target %v: %w", c.Target.Depth.ID, gpu.ErrStaleHandle)
		}
		if dimg.desc.Width != target.desc.Width || dimg.desc.Height != target.desc.Height {
			return fmt.Errorf("depth %dx%d does not match color %dx%d: %w",
				dimg.desc.Width, dimg.desc.Height, target.desc.Width, target.desc.Height, gpu.ErrOutOfRange)
		}
		e.depth = dimg
		depth = dimg.depth
	}

	target.fb.Clear(render.FromLinear(c.Clear.R, c.Clear.G, c.Clear.B, c.Clear.A))
	e.raster = render.NewRasterizer(target.fb, depth)
	e.raster.ClearDepth(c.ClearDepth)
	e.stats.Passes++
	return nil
}

func (e *executor) SetViewport(c gpu.SetViewportCommand) error {
	e.trace = append(e.trace, gpu.CmdSetViewport)
	if c.Width != e.target.desc.Width || c.Height != e.target.desc.Height {
		return fmt.Errorf("viewport %dx%d must cover the %dx%d target: %w",
			c.Width, c.Height, e.target.desc.Width, e.target.desc.Height, gpu.ErrOutOfRange)
	}
	return nil
}

func (e *executor) SetPipeline(c gpu.SetPipelineCommand) error {
	e.trace = append(e.trace, gpu.CmdSetPipeline)
	p, ok := e.d.pipelines.Get(c.Pipeline.ID)
	if !ok {
		return fmt.Errorf("pipeline %v: %w", c.Pipeline.ID, gpu.ErrStaleHandle)
	}
	e.pipeline = p
	return nil
}

func (e *executor) SetBindGroup(c gpu.SetBindGroupCommand) error {
	e.trace = append(e.trace, gpu.CmdSetBindGroup)
	if c.Index >= maxBindGroups {
		return fmt.Errorf("bind group index %d: %w", c.Index, gpu.ErrOutOfRange)
	}
	e.groups[c.Index] = c.Group
	return nil
}

func (e *executor) SetVertexBuffer(c gpu.SetVertexBufferCommand) error {
	e.trace = append(e.trace, gpu.CmdSetVertexBuffer)
	e.vertex = c.Buffer
	e.vOffset = c.Offset
	return nil
}

func (e *executor) PushConstants(c gpu.PushConstantsCommand) error {
	e.trace = append(e.trace, gpu.CmdPushConstants)
	e.push = c.Data
	return nil
}

// readBuffer resolves a buffer read by a draw, enforcing that the handle
// is live and that no transfer into it is still unordered.
func (e *executor) readBuffer(b gpu.Buffer, what string) (*buffer, error) {
	buf, ok := e.d.buffers.Get(b.ID)
	if !ok {
		return nil, fmt.Errorf("%s buffer %v: %w", what, b.ID, gpu.ErrStaleBinding)
	}
	if e.validate() && e.pending[b.ID] {
		return nil, fmt.Errorf("%s buffer %q: %w", what, buf.desc.Label, gpu.ErrMissingBarrier)
	}
	return buf, nil
}

func (e *executor) Draw(c gpu.DrawCommand) error {
	e.trace = append(e.trace, gpu.CmdDraw)
	p := e.pipeline
	if p == nil {
		return gpu.ErrNoPipeline
	}

	dc := &drawContext{
		raster: e.raster,
		cmd:    c,
		push:   e.push,
		sets:   make([][]resource, len(p.desc.Groups)),
	}
	for set, layout := range p.desc.Groups {
		g, ok := e.d.groups.Get(e.groups[set].ID)
		if !ok {
			return fmt.Errorf("set %d: %w", set, gpu.ErrStaleBinding)
		}
		res := make([]resource, len(layout))
		for i, kind := range layout {
			if i >= len(g.entries) {
				return fmt.Errorf("set %d binding %d missing: %w", set, i, gpu.ErrStaleBinding)
			}
			entry := g.entries[i]
			if kind == gpu.BindTexture {
				im, ok := e.d.images.Get(entry.Image.ID)
				if !ok || im.fb == nil {
					return fmt.Errorf("set %d binding %d texture: %w", set, i, gpu.ErrStaleBinding)
				}
				res[i].tex = im.texture()
				continue
			}
			buf, err := e.readBuffer(entry.Buffer, fmt.Sprintf("set %d binding %d", set, i))
			if err != nil {
				return err
			}
			res[i].data = buf.data
		}
		dc.sets[set] = res
	}

	if p.desc.Vertex != nil {
		buf, err := e.readBuffer(e.vertex, "vertex")
		if err != nil {
			return err
		}
		if e.vOffset > uint64(len(buf.data)) {
			return fmt.Errorf("vertex offset %d: %w", e.vOffset, gpu.ErrOutOfRange)
		}
		dc.vertices = buf.data[e.vOffset:]
		dc.stride = int(p.desc.Vertex.Stride)
	}

	e.raster.DepthTest = p.desc.DepthTest && e.depth != nil
	before := e.raster.Fragments
	if err := p.program(dc); err != nil {
		return fmt.Errorf("program %q: %w", p.desc.Program, err)
	}
	e.stats.Fragments += e.raster.Fragments - before
	e.stats.Draws++
	return nil
}

func (e *executor) EndPass() error {
	e.trace = append(e.trace, gpu.CmdEndPass)
	e.target, e.depth, e.raster = nil, nil, nil
	e.pipeline = nil
	e.groups = [maxBindGroups]gpu.BindGroup{}
	return nil
}
