package gpu

// Buffer is a handle to a device buffer of a fixed size.
type Buffer struct {
	ID   Handle
	Size uint64
}

// IsZero reports whether b refers to no buffer.
func (b Buffer) IsZero() bool { return b.ID.IsZero() }

// Image is a handle to a 2D image.
type Image struct {
	ID     Handle
	Width  int
	Height int
	Format Format
}

// IsZero reports whether img refers to no image.
func (img Image) IsZero() bool { return img.ID.IsZero() }

// Pipeline is a handle to a compiled graphics pipeline.
type Pipeline struct{ ID Handle }

// BindGroup is a handle to a set of resource bindings.
type BindGroup struct{ ID Handle }

// IsZero reports whether g refers to no bind group.
func (g BindGroup) IsZero() bool { return g.ID.IsZero() }

// Fence is a host-visible completion signal for a submission.
type Fence struct{ ID Handle }

// Semaphore orders submissions against presentation on the device.
type Semaphore struct{ ID Handle }

// BufferUsage describes how a buffer may be used.
type BufferUsage uint32

const (
	UsageVertex BufferUsage = 1 << iota
	UsageUniform
	UsageStorage
	UsageTransferSrc
	UsageTransferDst
)

// Has reports whether all bits of f are set in u.
func (u BufferUsage) Has(f BufferUsage) bool { return u&f == f }

// MemoryKind selects where a buffer lives.
type MemoryKind uint8

const (
	// MemoryDevice is fast for the device and not mappable.
	MemoryDevice MemoryKind = iota
	// MemoryHost is host visible and coherent; it can be mapped.
	MemoryHost
)

func (k MemoryKind) String() string {
	if k == MemoryHost {
		return "host"
	}
	return "device"
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

// Format is an image pixel format.
type Format uint8

const (
	FormatRGBA8 Format = iota
	FormatDepth32
)

// BytesPerPixel returns the size of one texel.
func (f Format) BytesPerPixel() int { return 4 }

// ImageUsage describes how an image may be used.
type ImageUsage uint32

const (
	ImageAttachment ImageUsage = 1 << iota
	ImageSampled
	ImageTransferDst
)

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label  string
	Width  int
	Height int
	Format Format
	Usage  ImageUsage
}

// BindingKind is the type of resource a binding slot accepts.
type BindingKind uint8

const (
	BindUniform BindingKind = iota
	BindStorage
	BindTexture
)

func (k BindingKind) String() string {
	switch k {
	case BindUniform:
		return "uniform"
	case BindStorage:
		return "storage"
	case BindTexture:
		return "texture"
	}
	return "unknown"
}

// BindingEntry fills one slot of a bind group. Buffer is used for uniform
// and storage slots and Image for texture slots.
type BindingEntry struct {
	Binding uint32
	Buffer  Buffer
	Image   Image
}

// BindGroupDesc describes a bind group. Layout[i] is the kind of binding i.
type BindGroupDesc struct {
	Label   string
	Layout  []BindingKind
	Entries []BindingEntry
}

// Topology is the primitive assembly mode.
type Topology uint8

const (
	TriangleList Topology = iota
	LineList
)

// VertexFormat is the format of one vertex attribute.
type VertexFormat uint8

const (
	Float32x2 VertexFormat = iota
	Float32x3
	Float32x4
	Unorm8x4
)

// VertexAttr is one attribute of a vertex layout. Location is its index.
type VertexAttr struct {
	Format VertexFormat
	Offset uint32
}

// VertexLayout describes the single interleaved vertex buffer a pipeline
// reads.
type VertexLayout struct {
	Stride uint32
	Attrs  []VertexAttr
}

// PipelineDesc describes a graphics pipeline.
//
// Program names the pipeline's shading behavior so software backends can
// dispatch on it; Source carries the WGSL that hardware backends compile.
// Push constant bytes are visible to the shader as a uniform buffer at
// binding 0 of group len(Groups).
type PipelineDesc struct {
	Label         string
	Program       string
	Source        string
	Vertex        *VertexLayout
	Topology      Topology
	Groups        [][]BindingKind
	PushConstants uint32
	DepthTest     bool
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float64
}

// Target is the color and depth attachment set of a render pass.
type Target struct {
	Color Image
	Depth Image
}

// Stage is a set of pipeline stages used to scope a barrier.
type Stage uint8

const (
	StageTransfer Stage = 1 << iota
	StageVertexInput
	StageShaderRead
)

// SubmitInfo carries the synchronization for one submission. The device
// waits on Wait before executing, signals Signal when done, and signals
// Fence so the host can tell the submission has completed.
type SubmitInfo struct {
	Wait   []Semaphore
	Signal []Semaphore
	Fence  Fence
}
