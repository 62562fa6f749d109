package gpu

// CommandType identifies the type of a recorded command.
type CommandType uint8

const (
	// Transfer commands
	CmdCopyBuffer CommandType = iota // Copy bytes between buffers
	CmdBarrier                       // Order transfers before later reads

	// Pass commands
	CmdBeginPass       // Begin a render pass and clear its target
	CmdSetViewport     // Set the viewport size
	CmdSetPipeline     // Bind a graphics pipeline
	CmdSetBindGroup    // Bind a resource set
	CmdSetVertexBuffer // Bind the vertex buffer
	CmdPushConstants   // Set push constant bytes
	CmdDraw            // Draw primitives
	CmdEndPass         // End the render pass
)

var commandTypeNames = [...]string{
	CmdCopyBuffer:      "CopyBuffer",
	CmdBarrier:         "Barrier",
	CmdBeginPass:       "BeginPass",
	CmdSetViewport:     "SetViewport",
	CmdSetPipeline:     "SetPipeline",
	CmdSetBindGroup:    "SetBindGroup",
	CmdSetVertexBuffer: "SetVertexBuffer",
	CmdPushConstants:   "PushConstants",
	CmdDraw:            "Draw",
	CmdEndPass:         "EndPass",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all command types.
type Command interface {
	Type() CommandType
}

// CopyBufferCommand copies Size bytes from the start of Src to the start of Dst.
type CopyBufferCommand struct {
	Src, Dst Buffer
	Size     uint64
}

func (CopyBufferCommand) Type() CommandType { return CmdCopyBuffer }

// BarrierCommand makes writes from the Src stages visible to the Dst stages.
type BarrierCommand struct {
	Src, Dst Stage
}

func (BarrierCommand) Type() CommandType { return CmdBarrier }

// BeginPassCommand begins a render pass, clearing color and depth.
type BeginPassCommand struct {
	Target     Target
	Clear      Color
	ClearDepth float32
}

func (BeginPassCommand) Type() CommandType { return CmdBeginPass }

// SetViewportCommand sets the viewport to cover Width by Height pixels.
type SetViewportCommand struct {
	Width, Height int
}

func (SetViewportCommand) Type() CommandType { return CmdSetViewport }

// SetPipelineCommand binds a pipeline.
type SetPipelineCommand struct {
	Pipeline Pipeline
}

func (SetPipelineCommand) Type() CommandType { return CmdSetPipeline }

// SetBindGroupCommand binds Group at set Index.
type SetBindGroupCommand struct {
	Index uint32
	Group BindGroup
}

func (SetBindGroupCommand) Type() CommandType { return CmdSetBindGroup }

// SetVertexBufferCommand binds the vertex buffer.
type SetVertexBufferCommand struct {
	Buffer Buffer
	Offset uint64
}

func (SetVertexBufferCommand) Type() CommandType { return CmdSetVertexBuffer }

// PushConstantsCommand sets push constant bytes starting at offset zero.
type PushConstantsCommand struct {
	Data []byte
}

func (PushConstantsCommand) Type() CommandType { return CmdPushConstants }

// DrawCommand draws VertexCount vertices starting at FirstVertex.
// FirstInstance selects the per-instance data the shader reads.
type DrawCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (DrawCommand) Type() CommandType { return CmdDraw }

// EndPassCommand ends the current render pass.
type EndPassCommand struct{}

func (EndPassCommand) Type() CommandType { return CmdEndPass }
