package halgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
)

const (
	vertexEntry   = "vs_main"
	fragmentEntry = "fs_main"
)

var pushLayout = []gpu.BindingKind{gpu.BindUniform}

func layoutKey(kinds []gpu.BindingKind) string {
	var sb strings.Builder
	for i, k := range kinds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k.String())
	}
	return sb.String()
}

// layout returns the cached hal layout for kinds, creating it on first
// use. Called with d.mu held.
func (d *Device) layout(kinds []gpu.BindingKind) (hal.BindGroupLayout, error) {
	key := layoutKey(kinds)
	if l, ok := d.layouts[key]; ok {
		return l, nil
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(kinds))
	for i, k := range kinds {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		}
		switch k {
		case gpu.BindUniform:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case gpu.BindStorage:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case gpu.BindTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		}
		entries[i] = e
	}

	l, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: key, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout [%s]: %w", key, err)
	}
	d.layouts[key] = l
	logging.Logger().Debug("bind group layout created", "layout", key)
	return l, nil
}

// halEntries resolves entries to hal bindings. Called with d.mu held.
func (d *Device) halEntries(label string, layout []gpu.BindingKind, entries []gpu.BindingEntry) ([]gputypes.BindGroupEntry, error) {
	out := make([]gputypes.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		if int(e.Binding) >= len(layout) {
			return nil, fmt.Errorf("halgpu: bind group %q: binding %d outside layout: %w", label, e.Binding, gpu.ErrOutOfRange)
		}
		switch kind := layout[e.Binding]; kind {
		case gpu.BindUniform, gpu.BindStorage:
			buf, ok := d.buffers.Get(e.Buffer.ID)
			if !ok {
				return nil, fmt.Errorf("halgpu: bind group %q binding %d: %w", label, e.Binding, gpu.ErrStaleHandle)
			}
			want := gpu.UsageUniform
			if kind == gpu.BindStorage {
				want = gpu.UsageStorage
			}
			if !d.opts.SkipValidation && !buf.desc.Usage.Has(want) {
				return nil, fmt.Errorf("halgpu: bind group %q binding %d needs %s usage: %w", label, e.Binding, kind, gpu.ErrUsage)
			}
			out = append(out, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Size: buf.desc.Size},
			})
		case gpu.BindTexture:
			t, ok := d.textures.Get(e.Image.ID)
			if !ok {
				return nil, fmt.Errorf("halgpu: bind group %q binding %d: %w", label, e.Binding, gpu.ErrStaleHandle)
			}
			out = append(out, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			})
		}
	}
	return out, nil
}

// CreateBindGroup implements gpu.Device.
func (d *Device) CreateBindGroup(desc gpu.BindGroupDesc) (gpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.BindGroup{}, gpu.ErrClosed
	}
	layout, err := d.layout(desc.Layout)
	if err != nil {
		return gpu.BindGroup{}, fmt.Errorf("halgpu: bind group %q: %w", desc.Label, err)
	}
	g := &bindGroup{desc: desc, layout: layout, entries: make([]gpu.BindingEntry, len(desc.Layout))}
	for _, e := range desc.Entries {
		if int(e.Binding) < len(g.entries) {
			g.entries[e.Binding] = e
		}
	}
	if err := d.build(g); err != nil {
		return gpu.BindGroup{}, err
	}
	return gpu.BindGroup{ID: d.groups.Insert(g)}, nil
}

// build creates the hal bind group for g's current entries. Called with
// d.mu held.
func (d *Device) build(g *bindGroup) error {
	entries, err := d.halEntries(g.desc.Label, g.desc.Layout, g.entries)
	if err != nil {
		return err
	}
	raw, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   g.desc.Label,
		Layout:  g.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create bind group %q: %w", g.desc.Label, err)
	}
	g.raw = raw
	return nil
}

// UpdateBindGroup implements gpu.Device. The hal bind group is rebuilt;
// the caller must not have submissions in flight that use it.
func (d *Device) UpdateBindGroup(bg gpu.BindGroup, entries []gpu.BindingEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups.Get(bg.ID)
	if !ok {
		return fmt.Errorf("halgpu: update bind group: %w", gpu.ErrStaleHandle)
	}
	next := append([]gpu.BindingEntry(nil), g.entries...)
	for _, e := range entries {
		if int(e.Binding) >= len(next) {
			return fmt.Errorf("halgpu: bind group %q: binding %d outside layout: %w", g.desc.Label, e.Binding, gpu.ErrOutOfRange)
		}
		next[e.Binding] = e
	}

	old := g.raw
	prev := g.entries
	g.entries = next
	if err := d.build(g); err != nil {
		g.entries, g.raw = prev, old
		return err
	}
	d.dev.DestroyBindGroup(old)
	logging.Logger().Debug("bind group updated", "label", g.desc.Label, "entries", len(entries))
	return nil
}

// DestroyBindGroup implements gpu.Device.
func (d *Device) DestroyBindGroup(bg gpu.BindGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if g, ok := d.groups.Remove(bg.ID); ok {
		d.dev.DestroyBindGroup(g.raw)
	}
}

var vertexFormats = [...]gputypes.VertexFormat{
	gpu.Float32x2: gputypes.VertexFormatFloat32x2,
	gpu.Float32x3: gputypes.VertexFormatFloat32x3,
	gpu.Float32x4: gputypes.VertexFormatFloat32x4,
	gpu.Unorm8x4:  gputypes.VertexFormatUnorm8x4,
}

func vertexBuffers(v *gpu.VertexLayout) []gputypes.VertexBufferLayout {
	if v == nil {
		return nil
	}
	attrs := make([]gputypes.VertexAttribute, len(v.Attrs))
	for i, a := range v.Attrs {
		attrs[i] = gputypes.VertexAttribute{
			Format:         vertexFormats[a.Format],
			Offset:         uint64(a.Offset),
			ShaderLocation: uint32(i),
		}
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(v.Stride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}

func topology(t gpu.Topology) gputypes.PrimitiveTopology {
	if t == gpu.LineList {
		return gputypes.PrimitiveTopologyLineList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// depthState returns the pipeline's depth state. Every pass has a depth
// attachment, so pipelines without a depth test still declare the format.
func depthState(test bool) *hal.DepthStencilState {
	s := &hal.DepthStencilState{
		Format:       gputypes.TextureFormatDepth32Float,
		DepthCompare: gputypes.CompareFunctionAlways,
	}
	if test {
		s.DepthWriteEnabled = true
		s.DepthCompare = gputypes.CompareFunctionLess
	}
	return s
}

// CreatePipeline implements gpu.Device.
func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.Pipeline{}, gpu.ErrClosed
	}
	p := &pipeline{desc: desc}
	if err := d.createPipeline(p); err != nil {
		d.destroyPipeline(p)
		return gpu.Pipeline{}, fmt.Errorf("halgpu: pipeline %q: %w", desc.Label, err)
	}
	return gpu.Pipeline{ID: d.pipelines.Insert(p)}, nil
}

// createPipeline fills in p's hal objects. On error the caller destroys
// whatever was created. Called with d.mu held.
func (d *Device) createPipeline(p *pipeline) error {
	desc := p.desc
	if desc.Source == "" {
		return fmt.Errorf("no shader source for program %q: %w", desc.Program, gpu.ErrUsage)
	}

	groups := desc.Groups
	if desc.PushConstants > 0 {
		groups = append(append([][]gpu.BindingKind(nil), groups...), pushLayout)
	}
	layouts := make([]hal.BindGroupLayout, len(groups))
	for i, kinds := range groups {
		l, err := d.layout(kinds)
		if err != nil {
			return err
		}
		layouts[i] = l
	}

	if desc.PushConstants > 0 {
		if err := d.createPush(p, layouts[len(layouts)-1]); err != nil {
			return err
		}
	}

	var err error
	p.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return fmt.Errorf("create layout: %w", err)
	}

	src := hal.ShaderSource{WGSL: desc.Source}
	if d.opts.CompileShaders {
		if src.SPIRV, err = compile(desc.Label, desc.Source); err != nil {
			return err
		}
		src.WGSL = ""
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	p.modules = append(p.modules, module)

	p.raw, err = d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: vertexEntry,
			Buffers:    vertexBuffers(desc.Vertex),
		},
		Primitive: gputypes.PrimitiveState{
			Topology: topology(desc.Topology),
			CullMode: gputypes.CullModeNone,
		},
		DepthStencil: depthState(desc.DepthTest),
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: fragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	return nil
}

// createPush allocates the uniform buffer and bind group that carry p's
// push constants. Called with d.mu held.
func (d *Device) createPush(p *pipeline, layout hal.BindGroupLayout) error {
	size := (uint64(p.desc.PushConstants) + 15) &^ 15
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: p.desc.Label + " push constants",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create push buffer: %w", err)
	}
	p.push = buf
	p.pushGroup, err = d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  p.desc.Label + " push constants",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: size},
		}},
	})
	if err != nil {
		return fmt.Errorf("create push bind group: %w", err)
	}
	return nil
}

// destroyPipeline releases whatever hal objects p holds. Called with d.mu
// held.
func (d *Device) destroyPipeline(p *pipeline) {
	if p.raw != nil {
		d.dev.DestroyRenderPipeline(p.raw)
	}
	for _, m := range p.modules {
		d.dev.DestroyShaderModule(m)
	}
	if p.layout != nil {
		d.dev.DestroyPipelineLayout(p.layout)
	}
	if p.pushGroup != nil {
		d.dev.DestroyBindGroup(p.pushGroup)
	}
	if p.push != nil {
		d.dev.DestroyBuffer(p.push)
	}
}

// DestroyPipeline implements gpu.Device.
func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pl, ok := d.pipelines.Remove(p.ID); ok {
		d.destroyPipeline(pl)
	}
}
